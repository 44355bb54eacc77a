package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hotcron/internal/crontab"
	"hotcron/internal/platform/logger"
	"hotcron/internal/runner"
	"hotcron/internal/telemetry"
)

type fakeEvaluator struct {
	spec   string
	fn     func(ctx context.Context)
	active atomic.Bool
	starts atomic.Int32
	busy   atomic.Int32
}

func (f *fakeEvaluator) Start() {
	f.starts.Add(1)
	f.active.Store(true)
}
func (f *fakeEvaluator) Stop()           { f.active.Store(false) }
func (f *fakeEvaluator) IsBusy() bool    { return f.busy.Load() > 0 }
func (f *fakeEvaluator) Next() time.Time { return time.Time{} }
func (f *fakeEvaluator) Trigger() {
	f.busy.Add(1)
	defer f.busy.Add(-1)
	f.fn(context.Background())
}

type fakeFactory struct {
	mu    sync.Mutex
	evals []*fakeEvaluator
}

func (f *fakeFactory) NewEvaluator(_ string, spec string, fn func(ctx context.Context)) (Evaluator, error) {
	if spec == "bogus" {
		return nil, errors.New(`invalid schedule "bogus"`)
	}
	ev := &fakeEvaluator{spec: spec, fn: fn}
	f.mu.Lock()
	f.evals = append(f.evals, ev)
	f.mu.Unlock()
	return ev, nil
}

func (f *fakeFactory) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.evals {
		if ev.active.Load() {
			n++
		}
	}
	return n
}

type recorder struct {
	mu     sync.Mutex
	events []telemetry.Event
	lines  []string
}

func (r *recorder) Emit(_ context.Context, ev telemetry.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) PrintLine(id, stream, text string) {
	r.mu.Lock()
	r.lines = append(r.lines, "["+stream+"] "+text)
	r.mu.Unlock()
}

func (r *recorder) kinds() []telemetry.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]telemetry.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) first() telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[0]
}

func (r *recorder) last() telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) output() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events, r.lines = nil, nil
	r.mu.Unlock()
}

type fixture struct {
	path    string
	factory *fakeFactory
	tel     *recorder
	reg     *Registry
}

func newFixture(t *testing.T, content string) *fixture {
	t.Helper()
	f := &fixture{
		path:    filepath.Join(t.TempDir(), "crontab.json"),
		factory: &fakeFactory{},
		tel:     &recorder{},
	}
	if content != "" {
		f.write(t, content)
	}
	log := logger.Discard()
	f.reg = NewRegistry(RegistryOptions{
		Source:     crontab.FileSource{Path: f.path},
		Evaluators: f.factory,
		Executor:   NewExecutor(runner.Local{Log: log}, f.tel, ExecContext{}, log),
		Logger:     log,
	})
	t.Cleanup(f.reg.Reset)
	return f
}

func (f *fixture) write(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.path, []byte(content), 0o644))
}

func (f *fixture) job(t *testing.T, i int) *Job {
	t.Helper()
	j, err := f.reg.Job(i)
	require.NoError(t, err)
	return j
}

// blockingSource holds the reload critical section until released.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) Load(ctx context.Context) ([]crontab.Entry, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
		return []crontab.Entry{{ScheduleParams: "@daily", CommandToExecute: "true"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
