// Package app wires hotcron's components and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"hotcron/internal/adapter/httpapi"
	"hotcron/internal/adapter/scheduler"
	"hotcron/internal/adapter/telegram"
	"hotcron/internal/config"
	"hotcron/internal/crontab"
	"hotcron/internal/jobs"
	"hotcron/internal/platform/logger"
	"hotcron/internal/runner"
	"hotcron/internal/telemetry"
	"hotcron/internal/watch"
)

const shutdownTimeout = 15 * time.Second

// App wires application components.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	closeLog func() error
	commands atomic.Pointer[telegram.Dispatcher]
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return FromConfig(cfg), nil
}

// FromConfig builds an App around an already loaded configuration.
func FromConfig(cfg config.Config) *App {
	log, closeLog := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "hotcron",
	})
	return &App{cfg: cfg, log: log, closeLog: closeLog}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) (err error) {
	defer func() {
		if cerr := a.closeLog(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	a.log.Info("starting",
		"crontab", a.cfg.Crontab.Path,
		"timezone", a.cfg.Location().String(),
		"telegram", a.cfg.TelegramEnabled(),
		"email", a.cfg.EmailEnabled(),
		"webhook", a.cfg.Webhook.URL != "",
	)

	tg, err := a.telegramBot()
	if err != nil {
		return err
	}
	notifier, err := a.notifier(tg)
	if err != nil {
		return err
	}

	cron := scheduler.New(scheduler.Config{
		Logger:   a.log,
		Location: a.cfg.Location(),
		JobHooks: scheduler.JobHooks{
			OnJobPanic: func(name string, err error) {
				a.log.Error("job callback panicked", "job", name, "err", err)
			},
		},
	})
	cron.Start()

	exec := jobs.NewExecutor(runner.Local{Log: a.log}, notifier, jobs.ExecContext{
		Dir: a.cfg.Exec.WorkDir,
		UID: a.cfg.Exec.UID,
		GID: a.cfg.Exec.GID,
	}, a.log)
	reg := jobs.NewRegistry(jobs.RegistryOptions{
		Source:     crontab.FileSource{Path: a.cfg.Crontab.Path},
		Evaluators: Evaluators(cron),
		Executor:   exec,
		Logger:     a.log,
	})
	svc := jobs.NewScheduler(reg, a.log.With("component", "scheduler"))

	if err := svc.Init(ctx); err != nil {
		a.log.Warn("initial load interrupted", "err", err)
	}
	svc.RegisterExternalTriggers(ctx,
		&watch.File{Path: a.cfg.Crontab.Path, PollInterval: a.cfg.Crontab.PollInterval, Log: a.log},
		&watch.Signal{},
	)

	srv, err := a.adminServer(svc, notifier.ChannelStates)
	if err != nil {
		return errors.Join(err, a.shutdown(svc, cron, notifier, nil, nil))
	}
	commands := a.commandBot(ctx, tg, svc)

	<-ctx.Done()
	a.log.Info("shutting down")
	return a.shutdown(svc, cron, notifier, srv, commands)
}

// shutdown stops intake first (admin API, bot, triggers), then lets running
// jobs and queued notifications drain within shutdownTimeout.
func (a *App) shutdown(svc *jobs.Scheduler, cron *scheduler.Scheduler, notifier *telemetry.Dispatcher, srv *http.Server, commands *telegram.Dispatcher) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		errs = append(errs, srv.Shutdown(ctx))
	}
	if commands != nil {
		commands.Close()
	}
	errs = append(errs,
		svc.Shutdown(ctx),
		cron.Stop(ctx),
		notifier.Close(ctx),
	)
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("shutdown incomplete", "err", err)
		return err
	}
	a.log.Info("stopped")
	return nil
}

// Evaluators adapts the cron adapter to the registry's factory. A failed
// parse yields a nil interface, never a typed nil.
func Evaluators(s *scheduler.Scheduler) jobs.EvaluatorFunc {
	return func(name, spec string, fn func(ctx context.Context)) (jobs.Evaluator, error) {
		e, err := s.NewEntry(name, spec, fn)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

func (a *App) adminServer(svc *jobs.Scheduler, states httpapi.ChannelStates) (*http.Server, error) {
	if a.cfg.Admin.Addr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", a.cfg.Admin.Addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           httpapi.New(svc, states, a.log).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("admin server", slog.Any("err", err))
		}
	}()
	a.log.Info("admin api listening", "addr", ln.Addr().String())
	return srv, nil
}
