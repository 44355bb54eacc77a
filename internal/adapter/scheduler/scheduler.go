package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Parser разбирает выражения из 5 или 6 полей (секунды необязательны) и дескрипторы (@hourly, @every 5m).
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSpec проверяет cron-выражение.
func ParseSpec(spec string) error {
	_, err := Parser.Parse(spec)
	return err
}

// JobFunc тело задачи. Ошибки задача обрабатывает сама.
type JobFunc func(ctx context.Context)

// JobHooks содержит необязательные хуки для наблюдаемости.
type JobHooks struct {
	OnJobStart  func(name string)
	OnJobFinish func(name string, duration time.Duration)
	OnJobPanic  func(name string, err error)
}

// Config содержит конфигурацию планировщика.
type Config struct {
	Logger *slog.Logger
	// Location часовой пояс расписаний, по умолчанию time.Local.
	Location *time.Location
	JobHooks JobHooks
}

// cronLogger адаптер cron.Logger поверх slog. Info у cron шумный, пишем его в debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, kvAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	attrs := append([]slog.Attr{slog.Any("error", err)}, kvAttrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func kvAttrs(kv []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		attrs = append(attrs, slog.Any(key, kv[i+1]))
	}
	return attrs
}

// Scheduler владеет одним cron и выдаёт независимые Entry для каждой задачи.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	hooks  JobHooks
	ctx    context.Context
	cancel context.CancelFunc

	inflight  sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	stopped   atomic.Bool
}

// New создает планировщик. Таймеры запускаются после Start.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}),
		),
		logger: logger,
		hooks:  cfg.JobHooks,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start запускает таймеры cron.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()
	})
}

// Stop останавливает таймеры и ждёт завершения выполняющихся задач,
// включая запущенные вручную через Trigger. При истечении ctx возвращает
// ctx.Err(), задачи при этом не прерываются.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.logger.Info("stopping scheduler")
		<-s.cron.Stop().Done()

		done := make(chan struct{})
		go func() {
			s.inflight.Wait()
			close(done)
		}()
		select {
		case <-done:
			s.logger.Info("scheduler stopped")
		case <-ctx.Done():
			s.logger.Warn("scheduler stop deadline exceeded, jobs still running")
			err = ctx.Err()
		}
		s.cancel()
	})
	return err
}

// NewEntry разбирает расписание и создаёт неактивную запись. Таймер
// появляется только после Entry.Start.
func (s *Scheduler) NewEntry(name, spec string, fn JobFunc) (*Entry, error) {
	sched, err := Parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Entry{s: s, name: name, spec: spec, sched: sched, fn: fn}, nil
}

// Entry одно расписание с телом задачи.
type Entry struct {
	s     *Scheduler
	name  string
	spec  string
	sched cron.Schedule
	fn    JobFunc

	mu     sync.Mutex
	id     cron.EntryID
	active bool
	busy   atomic.Int32
}

// Start ставит запись в cron. Повторный вызов ничего не делает.
func (e *Entry) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active || e.s.stopped.Load() {
		return
	}
	e.id = e.s.cron.Schedule(e.sched, cron.FuncJob(e.run))
	e.active = true
	e.s.logger.Debug("entry armed", "name", e.name, "schedule", e.spec, "id", e.id)
}

// Stop снимает запись с cron. Уже выполняющееся тело продолжает работу.
func (e *Entry) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.s.cron.Remove(e.id)
	e.active = false
	e.s.logger.Debug("entry stopped", "name", e.name, "id", e.id)
}

// Active сообщает, стоит ли запись в cron.
func (e *Entry) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// IsBusy возвращает true, пока хотя бы одно тело выполняется.
func (e *Entry) IsBusy() bool { return e.busy.Load() > 0 }

// Trigger выполняет тело немедленно в текущей горутине.
func (e *Entry) Trigger() { e.run() }

// Next время следующего срабатывания; нулевое для неактивной записи.
func (e *Entry) Next() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return time.Time{}
	}
	return e.s.cron.Entry(e.id).Next
}

func (e *Entry) Spec() string { return e.spec }

func (e *Entry) run() {
	s := e.s
	s.inflight.Add(1)
	defer s.inflight.Done()
	e.busy.Add(1)
	defer e.busy.Add(-1)

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(e.name)
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.logger.Error("job panicked", "name", e.name, "panic", r)
			if s.hooks.OnJobPanic != nil {
				s.hooks.OnJobPanic(e.name, err)
			}
			return
		}
		if s.hooks.OnJobFinish != nil {
			s.hooks.OnJobFinish(e.name, time.Since(start))
		}
	}()

	e.fn(s.ctx)
}
