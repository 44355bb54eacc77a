package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"hotcron/internal/crontab"
	"hotcron/internal/shared"
)

// EvaluatorFactory builds an unarmed evaluator that calls fn on every tick.
type EvaluatorFactory interface {
	NewEvaluator(name, spec string, fn func(ctx context.Context)) (Evaluator, error)
}

// EvaluatorFunc adapts a function to EvaluatorFactory.
type EvaluatorFunc func(name, spec string, fn func(ctx context.Context)) (Evaluator, error)

func (f EvaluatorFunc) NewEvaluator(name, spec string, fn func(ctx context.Context)) (Evaluator, error) {
	return f(name, spec, fn)
}

// RegistryOptions wires a Registry.
type RegistryOptions struct {
	Source     crontab.Source
	Evaluators EvaluatorFactory
	Executor   *Executor
	Logger     *slog.Logger
}

// generation is the job list produced by one reload. Evaluator callbacks
// address jobs by (generation id, index) and ignore stale generations.
type generation struct {
	id   uint64
	jobs []*Job
}

// section is the reload critical section. Reset cancels its waiters and
// replaces it.
type section struct {
	sem      chan struct{}
	canceled chan struct{}
	once     sync.Once
}

func newSection() *section {
	return &section{sem: make(chan struct{}, 1), canceled: make(chan struct{})}
}

func (s *section) acquire(ctx context.Context) error {
	select {
	case <-s.canceled:
		return shared.ErrReloadCanceled
	default:
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-s.canceled:
		return shared.ErrReloadCanceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *section) release() { <-s.sem }

func (s *section) cancel() { s.once.Do(func() { close(s.canceled) }) }

// Registry owns the current job list and serializes reloads.
type Registry struct {
	source     crontab.Source
	evaluators EvaluatorFactory
	exec       *Executor
	log        *slog.Logger

	// mu guards sec and publication of gen.
	mu     sync.Mutex
	sec    *section
	gen    atomic.Pointer[generation]
	nextID atomic.Uint64
}

func NewRegistry(o RegistryOptions) *Registry {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		source:     o.Source,
		evaluators: o.Evaluators,
		exec:       o.Executor,
		log:        log.With("component", "registry"),
		sec:        newSection(),
	}
	r.gen.Store(&generation{})
	return r
}

// Reload replaces the job list with a fresh one built from the source.
// An unreadable or malformed crontab yields an empty list. ctx only bounds
// the wait for the critical section: a reload that gives up there re-arms
// the published jobs, and once inside it always runs to completion.
func (r *Registry) Reload(ctx context.Context) error {
	r.StopAll(false)

	r.mu.Lock()
	sec := r.sec
	r.mu.Unlock()
	if err := sec.acquire(ctx); err != nil {
		r.rearm()
		return err
	}
	defer sec.release()

	// a reload that finished while we waited armed a newer generation
	r.stopGeneration(r.gen.Load(), false)

	entries, err := r.source.Load(context.WithoutCancel(ctx))
	if err != nil {
		r.log.Warn("crontab unavailable, continuing with no jobs", "err", err)
		entries = nil
	}

	gen := &generation{id: r.nextID.Add(1), jobs: make([]*Job, 0, len(entries))}
	for i, entry := range entries {
		job := newJob(entry)
		ev, err := r.evaluators.NewEvaluator(fmt.Sprintf("job-%d", i), entry.ScheduleParams, r.tick(gen.id, i))
		if err != nil {
			job.setLastResult(err.Error())
			r.log.Warn("job not armed", "index", i, "schedule", entry.ScheduleParams, "command", entry.CommandToExecute, "err", err)
		} else {
			job.setEvaluator(ev)
		}
		gen.jobs = append(gen.jobs, job)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sec != sec {
		return shared.ErrReloadCanceled
	}
	// a reload that gave up waiting may have re-armed the published jobs
	r.stopGeneration(r.gen.Load(), false)
	r.gen.Store(gen)
	for _, job := range gen.jobs {
		if ev := job.Evaluator(); ev != nil {
			ev.Start()
		}
	}
	r.log.Info("crontab loaded", "jobs", len(gen.jobs), "generation", gen.id)
	return nil
}

// rearm starts the evaluators of the published generation again. Publication
// stops the previous generation under the same lock, so nothing stale stays armed.
func (r *Registry) rearm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.gen.Load().jobs {
		if ev := job.Evaluator(); ev != nil {
			ev.Start()
		}
	}
}

// StopAll disarms every evaluator. With kill, active processes are
// terminated and their output detached.
func (r *Registry) StopAll(kill bool) {
	r.stopGeneration(r.gen.Load(), kill)
}

// Reset kills everything, cancels reloads waiting for the critical section
// and starts over with an empty job list. Safe to call repeatedly.
func (r *Registry) Reset() {
	r.mu.Lock()
	old := r.gen.Load()
	oldSec := r.sec
	r.sec = newSection()
	r.gen.Store(&generation{id: r.nextID.Add(1)})
	r.mu.Unlock()

	oldSec.cancel()
	r.stopGeneration(old, true)
	r.log.Info("registry reset")
}

// Jobs returns a snapshot of the current ordered job list.
func (r *Registry) Jobs() []*Job {
	jobs := r.gen.Load().jobs
	out := make([]*Job, len(jobs))
	copy(out, jobs)
	return out
}

// Job returns the job at index in the current list.
func (r *Registry) Job(index int) (*Job, error) {
	jobs := r.gen.Load().jobs
	if index < 0 || index >= len(jobs) {
		return nil, shared.MarkKind(fmt.Errorf("job %d", index), shared.KindNotFound)
	}
	return jobs[index], nil
}

func (r *Registry) stopGeneration(gen *generation, kill bool) {
	if gen == nil {
		return
	}
	for i, job := range gen.jobs {
		if err := job.stop(kill); err != nil {
			r.log.Warn("failed to stop job", "index", i, "command", job.Command(), "err", err)
		}
	}
}

func (r *Registry) tick(genID uint64, index int) func(ctx context.Context) {
	return func(ctx context.Context) {
		gen := r.gen.Load()
		if gen.id != genID || index >= len(gen.jobs) {
			r.log.Debug("stale tick dropped", "generation", genID, "index", index)
			return
		}
		r.exec.Run(ctx, gen.jobs[index])
	}
}
