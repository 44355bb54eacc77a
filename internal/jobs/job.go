// Package jobs holds the job registry, the per-tick execution wrapper and the
// scheduler facade that ties them to reload triggers.
package jobs

import (
	"sync"
	"sync/atomic"
	"time"

	"hotcron/internal/crontab"
	"hotcron/internal/runner"
	"hotcron/internal/telemetry"
)

// Evaluator fires a job's callback according to its schedule.
type Evaluator interface {
	Start()
	Stop()
	IsBusy() bool
	Trigger()
	Next() time.Time
}

// Job is one crontab entry plus its runtime state. A Job belongs to exactly
// one registry generation and is discarded on reload.
type Job struct {
	spec crontab.Entry

	// running is the overlap guard: set when a run starts, cleared when it resolves.
	running atomic.Bool

	mu         sync.Mutex
	evaluator  Evaluator
	process    *runner.Process
	current    telemetry.Execution
	lastResult string
}

func newJob(spec crontab.Entry) *Job {
	return &Job{spec: spec}
}

func (j *Job) Schedule() string { return j.spec.ScheduleParams }
func (j *Job) Command() string  { return j.spec.CommandToExecute }
func (j *Job) Spec() crontab.Entry {
	return j.spec
}

// IsRunning reports whether a run is in flight.
func (j *Job) IsRunning() bool { return j.running.Load() }

// LastResult is the status string of the most recent terminal outcome, or
// the reason the job could not be armed.
func (j *Job) LastResult() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastResult
}

// Evaluator returns the job's schedule handle, nil when its expression was invalid.
func (j *Job) Evaluator() Evaluator {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.evaluator
}

// Next is the next scheduled fire time, zero when unarmed.
func (j *Job) Next() time.Time {
	if ev := j.Evaluator(); ev != nil {
		return ev.Next()
	}
	return time.Time{}
}

func (j *Job) setEvaluator(ev Evaluator) {
	j.mu.Lock()
	j.evaluator = ev
	j.mu.Unlock()
}

func (j *Job) setLastResult(s string) {
	j.mu.Lock()
	j.lastResult = s
	j.mu.Unlock()
}

// acquire takes the overlap guard for x. When the guard is already held it
// returns the in-flight execution and false. The guard and the in-flight
// execution change together under mu.
func (j *Job) acquire(x telemetry.Execution) (telemetry.Execution, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running.CompareAndSwap(false, true) {
		return j.current, false
	}
	j.current = x
	return x, true
}

func (j *Job) setProcess(p *runner.Process) {
	j.mu.Lock()
	j.process = p
	j.mu.Unlock()
}

func (j *Job) activeProcess() *runner.Process {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.process
}

// stop disarms the evaluator and, when kill is set, terminates the active process.
func (j *Job) stop(kill bool) error {
	if ev := j.Evaluator(); ev != nil {
		ev.Stop()
	}
	if !kill {
		return nil
	}
	if p := j.activeProcess(); p != nil {
		return p.Kill()
	}
	return nil
}
