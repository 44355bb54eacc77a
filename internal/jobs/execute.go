package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	shellquote "github.com/kballard/go-shellquote"

	"hotcron/internal/runner"
	"hotcron/internal/shared"
	"hotcron/internal/telemetry"
)

// Telemetry receives lifecycle events and raw output lines. Implementations
// must not block on delivery.
type Telemetry interface {
	Emit(ctx context.Context, ev telemetry.Event)
	PrintLine(executionID, stream, text string)
}

// Runner starts child processes.
type Runner interface {
	Start(ctx context.Context, spec runner.Spec) (*runner.Process, error)
}

// ExecContext is the process-wide identity every job runs with.
type ExecContext struct {
	Dir string
	UID *uint32
	GID *uint32
}

// schedulerStream tags lines produced by hotcron itself rather than the child.
const schedulerStream = "scheduler"

// Executor runs one tick of a job.
type Executor struct {
	runner Runner
	tel    Telemetry
	ec     ExecContext
	log    *slog.Logger
	now    func() time.Time
}

func NewExecutor(r Runner, tel Telemetry, ec ExecContext, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{runner: r, tel: tel, ec: ec, log: log, now: time.Now}
}

// Run executes job once. A tick that arrives while the previous run is still
// in flight is dropped and reported as StillRunning. Any exit code or signal
// is a success outcome; only a spawn failure is reported as Failed.
func (e *Executor) Run(ctx context.Context, job *Job) {
	started := e.now()
	x := telemetry.NewExecution(job.Command(), job.Schedule(), started)

	if inFlight, ok := job.acquire(x); !ok {
		e.tel.Emit(ctx, x.Skipped(inFlight, started))
		return
	}
	defer job.running.Store(false)

	e.tel.Emit(ctx, x.Started())

	p, err := e.spawn(ctx, job.Command())
	if err != nil {
		e.fail(ctx, job, x, err)
		return
	}
	job.setProcess(p)
	defer job.setProcess(nil)

	for line := range p.Lines() {
		e.tel.PrintLine(x.ID, string(line.Stream), line.Text)
	}
	outcome, err := p.Wait()
	if err != nil {
		e.fail(ctx, job, x, err)
		return
	}

	e.tel.PrintLine(x.ID, schedulerStream, signaling(outcome))
	status := outcome.String()
	job.setLastResult(status)
	e.tel.Emit(ctx, x.Succeeded(e.now(), status))
}

func (e *Executor) spawn(ctx context.Context, command string) (*runner.Process, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("parse command: %w", err), shared.KindSpawnFailure)
	}
	if len(argv) == 0 {
		return nil, shared.MarkKind(errors.New("empty command"), shared.KindSpawnFailure)
	}
	return e.runner.Start(ctx, runner.Spec{
		Program: argv[0],
		Args:    argv[1:],
		Dir:     e.ec.Dir,
		UID:     e.ec.UID,
		GID:     e.ec.GID,
	})
}

func (e *Executor) fail(ctx context.Context, job *Job, x telemetry.Execution, err error) {
	reason := "Process returned an error: " + err.Error()
	job.setLastResult(reason)
	e.log.Debug("job spawn failed", "execution_id", x.ID, "command", x.Command, "err", err)
	e.tel.Emit(ctx, x.Failed(e.now(), reason))
}

func signaling(o runner.Outcome) string {
	code, sig := strconv.Itoa(o.ExitCode), "null"
	if o.Signaled() {
		code, sig = "null", o.Signal
	}
	return fmt.Sprintf("PROCESS SIGNALING: status: %s, signal: %s", code, sig)
}
