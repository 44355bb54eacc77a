package jobs

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotcron/internal/crontab"
	"hotcron/internal/platform/logger"
	"hotcron/internal/runner"
	"hotcron/internal/shared"
	"hotcron/internal/telemetry"
)

const echoCiao = `[{"scheduleParams": "* * * * *", "commandToExecute": "echo ciao"}]`

func TestReload_BuildsAndArmsJobs(t *testing.T) {
	f := newFixture(t, echoCiao)

	require.NoError(t, f.reg.Reload(context.Background()))

	jobs := f.reg.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "* * * * *", jobs[0].Schedule())
	assert.Equal(t, "echo ciao", jobs[0].Command())
	assert.False(t, jobs[0].IsRunning())
	assert.Empty(t, jobs[0].LastResult())
	assert.Equal(t, 1, f.factory.active())
}

func TestTrigger_RecordsExitCodeZero(t *testing.T) {
	f := newFixture(t, echoCiao)
	require.NoError(t, f.reg.Reload(context.Background()))

	f.job(t, 0).Evaluator().Trigger()

	assert.Equal(t, "Child process exited with code 0", f.job(t, 0).LastResult())
	assert.False(t, f.job(t, 0).IsRunning())
	assert.Equal(t, []telemetry.Kind{telemetry.Started, telemetry.Succeeded}, f.tel.kinds())
	assert.Equal(t, []string{
		"[stdout] ciao",
		"[scheduler] PROCESS SIGNALING: status: 0, signal: null",
	}, f.tel.output())
	assert.Equal(t, "Child process exited with code 0", f.tel.last().Detail)
}

func TestTrigger_NonZeroExitIsStillSuccess(t *testing.T) {
	f := newFixture(t, `[{"scheduleParams": "* * * * *", "commandToExecute": "sh -c 'exit 1'"}]`)
	require.NoError(t, f.reg.Reload(context.Background()))

	f.job(t, 0).Evaluator().Trigger()

	assert.Equal(t, "Child process exited with code 1", f.job(t, 0).LastResult())
	assert.Equal(t, telemetry.Succeeded, f.tel.last().Kind)

	require.NoError(t, f.reg.Reload(context.Background()))
	require.Len(t, f.reg.Jobs(), 1)
	assert.Equal(t, 1, f.factory.active())
	assert.Empty(t, f.job(t, 0).LastResult(), "reload starts from fresh runtime state")
}

func TestReload_ReplacesInsteadOfAppending(t *testing.T) {
	f := newFixture(t, echoCiao)
	require.NoError(t, f.reg.Reload(context.Background()))
	first := f.job(t, 0)

	f.write(t, `[
		{"scheduleParams": "* * * * *", "commandToExecute": "echo one"},
		{"scheduleParams": "*/2 * * * *", "commandToExecute": "echo two"}
	]`)
	require.NoError(t, f.reg.Reload(context.Background()))

	jobs := f.reg.Jobs()
	require.Len(t, jobs, 2)
	assert.NotSame(t, first, jobs[0])
	assert.Equal(t, 2, f.factory.active(), "old evaluators must be stopped")

	for i, job := range jobs {
		job.Evaluator().Trigger()
		assert.Equal(t, "Child process exited with code 0", job.LastResult(), "job %d", i)
	}
}

func TestReload_MissingOrMalformedFileYieldsEmptyList(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.reg.Reload(context.Background()))
	assert.Empty(t, f.reg.Jobs())

	f.write(t, echoCiao)
	require.NoError(t, f.reg.Reload(context.Background()))
	require.Len(t, f.reg.Jobs(), 1)

	f.write(t, `[{"scheduleParams": `)
	require.NoError(t, f.reg.Reload(context.Background()))
	assert.Empty(t, f.reg.Jobs())
	assert.Zero(t, f.factory.active())
}

func TestReload_InvalidScheduleKeepsJobUnarmed(t *testing.T) {
	f := newFixture(t, `[
		{"scheduleParams": "bogus", "commandToExecute": "echo never"},
		{"scheduleParams": "* * * * *", "commandToExecute": "echo ok"}
	]`)
	require.NoError(t, f.reg.Reload(context.Background()))

	jobs := f.reg.Jobs()
	require.Len(t, jobs, 2)
	assert.Nil(t, jobs[0].Evaluator())
	assert.Contains(t, jobs[0].LastResult(), `invalid schedule "bogus"`)
	assert.True(t, jobs[0].Next().IsZero())
	assert.NotNil(t, jobs[1].Evaluator())
}

func TestReload_CanceledContextKeepsJobsArmed(t *testing.T) {
	f := newFixture(t, echoCiao)
	require.NoError(t, f.reg.Reload(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = f.reg.Reload(ctx)

	require.Len(t, f.reg.Jobs(), 1)
	assert.Equal(t, len(f.reg.Jobs()), f.factory.active())
	assert.NotNil(t, f.job(t, 0).Evaluator())
}

func TestReload_GivingUpOnSectionRearmsPublishedJobs(t *testing.T) {
	released := make(chan struct{})
	close(released)
	src := &blockingSource{entered: make(chan struct{}, 1), release: released}
	factory := &fakeFactory{}
	reg := NewRegistry(RegistryOptions{
		Source:     src,
		Evaluators: factory,
		Executor:   NewExecutor(runner.Local{}, &recorder{}, ExecContext{}, logger.Discard()),
		Logger:     logger.Discard(),
	})
	t.Cleanup(reg.Reset)

	require.NoError(t, reg.Reload(context.Background()))
	<-src.entered
	require.Equal(t, 1, factory.active())

	src.release = make(chan struct{})
	holder := make(chan error, 1)
	go func() { holder <- reg.Reload(context.Background()) }()
	<-src.entered

	ctx, cancel := context.WithCancel(context.Background())
	waiter := make(chan error, 1)
	go func() { waiter <- reg.Reload(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-waiter:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting reload ignored cancellation")
	}
	assert.Equal(t, 1, factory.active(), "published jobs are armed again")

	close(src.release)
	require.NoError(t, <-holder)
	assert.Len(t, reg.Jobs(), 1)
	assert.Equal(t, 1, factory.active(), "the superseded generation is disarmed on publish")
}

func TestReload_CancelAfterEnteringStillPublishes(t *testing.T) {
	src := &blockingSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
	factory := &fakeFactory{}
	reg := NewRegistry(RegistryOptions{
		Source:     src,
		Evaluators: factory,
		Executor:   NewExecutor(runner.Local{}, &recorder{}, ExecContext{}, logger.Discard()),
		Logger:     logger.Discard(),
	})
	t.Cleanup(reg.Reset)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Reload(ctx) }()
	<-src.entered
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(src.release)

	require.NoError(t, <-done)
	assert.Len(t, reg.Jobs(), 1)
	assert.Equal(t, 1, factory.active())
}

func TestOverlapGuard_EmitsStillRunning(t *testing.T) {
	f := newFixture(t, `[{"scheduleParams": "* * * * *", "commandToExecute": "sleep 0.5"}]`)
	require.NoError(t, f.reg.Reload(context.Background()))
	job := f.job(t, 0)

	done := make(chan struct{})
	go func() {
		job.Evaluator().Trigger()
		close(done)
	}()
	require.Eventually(t, func() bool { return len(f.tel.kinds()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, job.IsRunning())

	job.Evaluator().Trigger()

	kinds := f.tel.kinds()
	require.Equal(t, []telemetry.Kind{telemetry.Started, telemetry.StillRunning}, kinds)
	skipped := f.tel.last()
	assert.Equal(t, f.tel.first().ExecutionID, skipped.RunningExecutionID)
	assert.NotEqual(t, skipped.RunningExecutionID, skipped.ExecutionID)
	assert.GreaterOrEqual(t, skipped.Elapsed, time.Duration(0))

	<-done
	assert.False(t, job.IsRunning())
	assert.Equal(t, telemetry.Succeeded, f.tel.last().Kind)

	f.tel.reset()
	job.Evaluator().Trigger()
	assert.Equal(t, []telemetry.Kind{telemetry.Started, telemetry.Succeeded}, f.tel.kinds(), "guard is cleared after the run resolves")
}

func TestOverlapGuard_ReportsInFlightExecution(t *testing.T) {
	tel := &recorder{}
	exec := NewExecutor(runner.Local{}, tel, ExecContext{}, logger.Discard())
	job := newJob(crontab.Entry{ScheduleParams: "* * * * *", CommandToExecute: "true"})

	started := time.Now().Add(-3 * time.Second)
	first := telemetry.NewExecution(job.Command(), job.Schedule(), started)
	got, ok := job.acquire(first)
	require.True(t, ok)
	assert.Equal(t, first, got)
	require.True(t, job.IsRunning())

	exec.Run(context.Background(), job)

	ev := tel.last()
	assert.Equal(t, telemetry.StillRunning, ev.Kind)
	assert.Equal(t, first.ID, ev.RunningExecutionID)
	assert.True(t, started.Equal(ev.StartTime), "start time of the in-flight run, got %s", ev.StartTime)
	assert.GreaterOrEqual(t, ev.Elapsed, 3*time.Second)
	assert.Less(t, ev.Elapsed, time.Minute)

	inFlight, ok := job.acquire(telemetry.NewExecution(job.Command(), job.Schedule(), time.Now()))
	assert.False(t, ok)
	assert.Equal(t, first.ID, inFlight.ID)
}

func TestSpawnFailure_IsTheOnlyFailedOutcome(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{"missing binary", "definitely-not-a-real-binary-hotcron --flag"},
		{"unbalanced quote", "echo 'oops"},
		{"blank", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			f.reg = NewRegistry(RegistryOptions{
				Source:     crontab.Static{{ScheduleParams: "* * * * *", CommandToExecute: tt.command}},
				Evaluators: f.factory,
				Executor:   NewExecutor(runner.Local{}, f.tel, ExecContext{}, logger.Discard()),
				Logger:     logger.Discard(),
			})
			t.Cleanup(f.reg.Reset)
			require.NoError(t, f.reg.Reload(context.Background()))
			job := f.job(t, 0)

			job.Evaluator().Trigger()

			assert.True(t, strings.HasPrefix(job.LastResult(), "Process returned an error: "), job.LastResult())
			assert.Equal(t, []telemetry.Kind{telemetry.Started, telemetry.Failed}, f.tel.kinds())
			assert.Equal(t, job.LastResult(), f.tel.last().Detail)
			assert.False(t, job.IsRunning())
		})
	}
}

func TestExecContext_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	tel := &recorder{}
	factory := &fakeFactory{}
	reg := NewRegistry(RegistryOptions{
		Source:     crontab.Static{{ScheduleParams: "@daily", CommandToExecute: "pwd"}},
		Evaluators: factory,
		Executor:   NewExecutor(runner.Local{}, tel, ExecContext{Dir: dir}, logger.Discard()),
		Logger:     logger.Discard(),
	})
	t.Cleanup(reg.Reset)
	require.NoError(t, reg.Reload(context.Background()))

	reg.Jobs()[0].Evaluator().Trigger()
	require.NotEmpty(t, tel.output())
	assert.True(t, strings.HasSuffix(tel.output()[0], dir), tel.output()[0])
}

func TestStopAll_KillTerminatesRunningProcesses(t *testing.T) {
	f := newFixture(t, `[{"scheduleParams": "* * * * *", "commandToExecute": "sleep 30"}]`)
	require.NoError(t, f.reg.Reload(context.Background()))
	job := f.job(t, 0)

	done := make(chan struct{})
	go func() {
		job.Evaluator().Trigger()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.activeProcess() != nil }, 2*time.Second, 5*time.Millisecond)

	f.reg.StopAll(true)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("killed job did not settle")
	}
	assert.Equal(t, "Child process terminated by signal SIGTERM", job.LastResult())
	assert.Zero(t, f.factory.active())
	assert.False(t, job.IsRunning())
	assert.Nil(t, job.activeProcess())
}

func TestStopAll_WithoutKillLetsRunsFinish(t *testing.T) {
	f := newFixture(t, `[{"scheduleParams": "* * * * *", "commandToExecute": "sleep 0.2"}]`)
	require.NoError(t, f.reg.Reload(context.Background()))
	job := f.job(t, 0)

	done := make(chan struct{})
	go func() {
		job.Evaluator().Trigger()
		close(done)
	}()
	require.Eventually(t, job.IsRunning, 2*time.Second, 5*time.Millisecond)

	f.reg.StopAll(false)
	<-done
	assert.Equal(t, "Child process exited with code 0", job.LastResult())
	assert.Zero(t, f.factory.active())
}

func TestReset_IsIdempotent(t *testing.T) {
	f := newFixture(t, echoCiao)
	require.NoError(t, f.reg.Reload(context.Background()))

	f.reg.Reset()
	f.reg.Reset()
	assert.Empty(t, f.reg.Jobs())
	assert.Zero(t, f.factory.active())

	require.NoError(t, f.reg.Reload(context.Background()))
	assert.Len(t, f.reg.Jobs(), 1)
}

func TestReset_CancelsPendingReloads(t *testing.T) {
	src := &blockingSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
	reg := NewRegistry(RegistryOptions{
		Source:     src,
		Evaluators: &fakeFactory{},
		Executor:   NewExecutor(runner.Local{}, &recorder{}, ExecContext{}, logger.Discard()),
		Logger:     logger.Discard(),
	})

	holder := make(chan error, 1)
	go func() { holder <- reg.Reload(context.Background()) }()
	<-src.entered

	waiter := make(chan error, 1)
	go func() { waiter <- reg.Reload(context.Background()) }()
	// the waiter is either blocked on the section or about to be
	time.Sleep(50 * time.Millisecond)

	reg.Reset()
	select {
	case err := <-waiter:
		assert.ErrorIs(t, err, shared.ErrReloadCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pending reload was not canceled")
	}

	close(src.release)
	assert.ErrorIs(t, <-holder, shared.ErrReloadCanceled, "in-flight reload must not publish after reset")
	assert.Empty(t, reg.Jobs())

	src.entered = make(chan struct{}, 1)
	src.release = make(chan struct{})
	close(src.release)
	require.NoError(t, reg.Reload(context.Background()))
	assert.Len(t, reg.Jobs(), 1)
}

func TestStaleTickIsDropped(t *testing.T) {
	f := newFixture(t, echoCiao)
	require.NoError(t, f.reg.Reload(context.Background()))
	old := f.job(t, 0).Evaluator()

	require.NoError(t, f.reg.Reload(context.Background()))
	old.Trigger()

	assert.Empty(t, f.tel.kinds())
	assert.Empty(t, f.job(t, 0).LastResult())
}

func TestConcurrentReloadsLeaveOneGeneration(t *testing.T) {
	f := newFixture(t, `[
		{"scheduleParams": "* * * * *", "commandToExecute": "true"},
		{"scheduleParams": "@hourly", "commandToExecute": "true"}
	]`)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.reg.Reload(context.Background()))
		}()
	}
	wg.Wait()

	assert.Len(t, f.reg.Jobs(), 2)
	assert.Equal(t, 2, f.factory.active())
}

func TestJob_NotFound(t *testing.T) {
	f := newFixture(t, echoCiao)
	require.NoError(t, f.reg.Reload(context.Background()))

	_, err := f.reg.Job(5)
	assert.True(t, shared.IsNotFound(err))
	_, err = f.reg.Job(-1)
	assert.True(t, shared.IsNotFound(err))
}
