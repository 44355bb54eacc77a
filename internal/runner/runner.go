// Package runner starts child processes and streams their output line by line.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"hotcron/internal/shared"
)

// Stream names the origin of an output line.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Line is one newline-terminated chunk of child output, without the newline.
type Line struct {
	Stream Stream
	Text   string
}

// Spec describes what to start and under which identity.
type Spec struct {
	Program string
	Args    []string
	// Dir is the working directory; empty inherits ours.
	Dir string
	// UID and GID switch credentials when set. Unix only.
	UID *uint32
	GID *uint32
	// Env replaces the inherited environment when non-nil.
	Env []string
}

// Outcome is how a started process terminated.
type Outcome struct {
	// ExitCode is -1 when the process was terminated by a signal.
	ExitCode int
	// Signal is the signal name, e.g. "SIGTERM", or empty.
	Signal string
}

func (o Outcome) Signaled() bool { return o.Signal != "" }

// String is the human readable status stored as a job's last result.
func (o Outcome) String() string {
	if o.Signaled() {
		return fmt.Sprintf("Child process terminated by signal %s", o.Signal)
	}
	return fmt.Sprintf("Child process exited with code %d", o.ExitCode)
}

const maxLineSize = 1 << 20

// Local starts processes on this host.
type Local struct {
	Log *slog.Logger
}

// Start spawns spec. ctx only gates the spawn; a started process is not tied
// to it and ends through Kill or on its own. Spawn errors carry ErrSpawnFailure.
func (l Local) Start(ctx context.Context, spec Spec) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Program == "" {
		return nil, shared.MarkKind(errors.New("empty command"), shared.KindSpawnFailure)
	}

	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	if err := configure(cmd, spec); err != nil {
		return nil, shared.MarkKind(err, shared.KindSpawnFailure)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindSpawnFailure)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindSpawnFailure)
	}
	if err := cmd.Start(); err != nil {
		return nil, shared.MarkKind(err, shared.KindSpawnFailure)
	}

	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	p := &Process{
		cmd:   cmd,
		lines: make(chan Line, 64),
		log:   log.With(slog.Int("pid", cmd.Process.Pid)),
	}
	var readers sync.WaitGroup
	readers.Add(2)
	go p.scan(&readers, Stdout, stdout)
	go p.scan(&readers, Stderr, stderr)
	go func() {
		readers.Wait()
		close(p.lines)
	}()
	return p, nil
}

// Process is a running child.
type Process struct {
	cmd      *exec.Cmd
	lines    chan Line
	log      *slog.Logger
	detached atomic.Bool

	waitOnce sync.Once
	outcome  Outcome
	err      error
}

func (p *Process) Pid() int { return p.cmd.Process.Pid }

func (p *Process) scan(wg *sync.WaitGroup, stream Stream, r io.Reader) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		if p.detached.Load() {
			continue
		}
		p.lines <- Line{Stream: stream, Text: sc.Text()}
	}
	if err := sc.Err(); err != nil {
		p.log.Warn("output stream truncated", slog.String("stream", string(stream)), slog.Any("err", err))
		// keep the pipe drained so the child never blocks on write
		_, _ = io.Copy(io.Discard, r)
	}
}

// Lines yields output from both streams until they close or the process is
// killed. It may be consumed once; Wait drains whatever is left.
func (p *Process) Lines() iter.Seq[Line] {
	return func(yield func(Line) bool) {
		for l := range p.lines {
			if p.detached.Load() {
				continue
			}
			if !yield(l) {
				return
			}
		}
	}
}

// Wait blocks until the process terminates and both streams are drained.
// Any exit code or signal is an Outcome, not an error. Safe to call more than once.
func (p *Process) Wait() (Outcome, error) {
	p.waitOnce.Do(func() {
		for range p.lines {
		}
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.err = err
			return
		}
		p.outcome = outcomeOf(p.cmd.ProcessState)
	})
	return p.outcome, p.err
}

// Kill sends a termination signal to the process (group) and stops delivering
// its output. The pending Wait still resolves.
func (p *Process) Kill() error {
	p.detached.Store(true)
	err := terminate(p.cmd)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
