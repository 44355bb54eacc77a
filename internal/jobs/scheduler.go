package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hotcron/internal/shared"
)

// Trigger watches for an external reload signal and calls fire for each one
// until ctx is done.
type Trigger interface {
	Name() string
	Watch(ctx context.Context, fire func()) error
}

// Snapshot is a read-only view of one job.
type Snapshot struct {
	Index            int        `json:"index"`
	ScheduleParams   string     `json:"scheduleParams"`
	CommandToExecute string     `json:"commandToExecute"`
	IsRunning        bool       `json:"isRunning"`
	Armed            bool       `json:"armed"`
	LastResultOutput string     `json:"lastResultOutput"`
	Next             *time.Time `json:"next,omitempty"`
}

// Scheduler is the facade the application talks to.
type Scheduler struct {
	reg *Registry
	log *slog.Logger

	mu       sync.Mutex
	watchCtx context.Context
	cancel   context.CancelFunc
	triggers sync.WaitGroup
}

func NewScheduler(reg *Registry, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{reg: reg, log: log}
}

// Init performs the first reload.
func (s *Scheduler) Init(ctx context.Context) error {
	return s.reg.Reload(ctx)
}

// Reload re-reads the crontab and re-arms every job.
func (s *Scheduler) Reload(ctx context.Context) error {
	return s.reg.Reload(ctx)
}

// RegisterExternalTriggers starts each trigger in its own goroutine. Every
// fire reloads the registry. Shutdown detaches them.
func (s *Scheduler) RegisterExternalTriggers(ctx context.Context, triggers ...Trigger) {
	s.mu.Lock()
	if s.watchCtx == nil {
		s.watchCtx, s.cancel = context.WithCancel(ctx)
	}
	ctx = s.watchCtx
	s.mu.Unlock()

	for _, t := range triggers {
		s.triggers.Add(1)
		go func() {
			defer s.triggers.Done()
			log := s.log.With("trigger", t.Name())
			log.Info("reload trigger registered")

			err := t.Watch(ctx, func() {
				log.Info("reload requested")
				if err := s.reg.Reload(ctx); err != nil && !shared.IsCanceled(err) {
					log.Warn("reload failed", "err", err)
				}
			})
			if err != nil && !shared.IsCanceled(err) {
				log.Error("reload trigger stopped", "err", err)
			}
		}()
	}
}

// Jobs returns the current ordered job list.
func (s *Scheduler) Jobs() []*Job {
	return s.reg.Jobs()
}

// Snapshots describes the current job list.
func (s *Scheduler) Snapshots() []Snapshot {
	jobs := s.reg.Jobs()
	out := make([]Snapshot, len(jobs))
	for i, j := range jobs {
		out[i] = Snapshot{
			Index:            i,
			ScheduleParams:   j.Schedule(),
			CommandToExecute: j.Command(),
			IsRunning:        j.IsRunning(),
			Armed:            j.Evaluator() != nil,
			LastResultOutput: j.LastResult(),
		}
		if next := j.Next(); !next.IsZero() {
			out[i].Next = &next
		}
	}
	return out
}

// TriggerJob runs the job at index now, in the background. The overlap
// guard still applies.
func (s *Scheduler) TriggerJob(index int) error {
	job, err := s.reg.Job(index)
	if err != nil {
		return err
	}
	ev := job.Evaluator()
	if ev == nil {
		return shared.MarkKind(fmt.Errorf("job %d has an invalid schedule: %s", index, job.LastResult()), shared.KindValidation)
	}
	go ev.Trigger()
	return nil
}

// Reset kills running jobs and empties the registry.
func (s *Scheduler) Reset() {
	s.reg.Reset()
}

// Shutdown detaches triggers and disarms every job. Running processes are
// left to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.watchCtx, s.cancel = nil, nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.triggers.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.log.Warn("reload triggers did not stop in time")
	}
	s.reg.StopAll(false)
	s.log.Info("scheduler shut down")
	return err
}
