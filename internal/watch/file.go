// Package watch provides reload triggers: a crontab file watcher and an OS
// signal subscription.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"hotcron/pkg/retry"
)

const (
	DefaultDebounce = 250 * time.Millisecond

	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// File fires when the crontab at Path is created, written, renamed or
// removed. Events come from fsnotify on the parent directory, with a stat
// poll as fallback for filesystems that never deliver them. Bursts are
// collapsed by Debounce. The state at Watch time is the baseline and does
// not fire.
type File struct {
	Path         string
	PollInterval time.Duration // 0 disables polling
	Debounce     time.Duration
	Log          *slog.Logger
}

func (f *File) Name() string { return "file:" + f.Path }

// Watch blocks until ctx is done. fire is never called concurrently with itself.
func (f *File) Watch(ctx context.Context, fire func()) error {
	if f.Path == "" {
		return errors.New("watch: empty path")
	}
	log := f.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("path", f.Path)

	d := newDebouncer(f.debounce())
	defer d.stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.notify(ctx, log, d.poke)
	}()
	go func() {
		defer wg.Done()
		f.poll(ctx, log, d.poke)
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-d.C:
			log.Debug("crontab changed")
			fire()
		}
	}
}

func (f *File) debounce() time.Duration {
	if f.Debounce > 0 {
		return f.Debounce
	}
	return DefaultDebounce
}

// notify runs fsnotify and recreates the watcher with a jittered backoff
// whenever it fails or its channels close.
func (f *File) notify(ctx context.Context, log *slog.Logger, changed func()) {
	dir, file := filepath.Dir(f.Path), filepath.Base(f.Path)
	backoff := retry.Config{InitialDelay: restartBackoffBase, MaxDelay: restartBackoffMax, Multiplier: 2}
	failures := 0

	wait := func(reason string, err error) bool {
		failures++
		d := backoff.Delay(failures)
		d += rand.N(d/2 + 1)
		log.Warn("file watcher "+reason+", restarting", "err", err, "backoff", d)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			if !wait("init failed", err) {
				return
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			if !wait("add failed", err) {
				return
			}
			continue
		}
		failures = 0
		log.Debug("file watcher started", "dir", dir)

		err = f.loop(ctx, w, file, log, changed)
		_ = w.Close()
		if ctx.Err() != nil {
			return
		}
		if !wait("stopped", err) {
			return
		}
	}
}

// loop returns when ctx is done or the watcher is broken.
func (f *File) loop(ctx context.Context, w *fsnotify.Watcher, file string, log *slog.Logger, changed func()) error {
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("events channel closed")
			}
			if filepath.Base(ev.Name) == file && ev.Op&relevant != 0 {
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("errors channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn("file watcher overflow, forcing reload", "err", err)
				changed()
				continue
			}
			if err != nil && strings.Contains(strings.ToLower(err.Error()), "closed") {
				return err
			}
			log.Warn("file watcher error", "err", err)
		}
	}
}

type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

func stat(path string) (fileState, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{}, nil
	}
	if err != nil {
		return fileState{}, err
	}
	return fileState{exists: true, size: fi.Size(), modTime: fi.ModTime()}, nil
}

func (f *File) poll(ctx context.Context, log *slog.Logger, changed func()) {
	if f.PollInterval <= 0 {
		return
	}
	last, err := stat(f.Path)
	if err != nil {
		log.Warn("crontab stat failed", "err", err)
	}
	t := time.NewTicker(f.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cur, err := stat(f.Path)
			if err != nil {
				log.Warn("crontab stat failed", "err", err)
				continue
			}
			if cur != last {
				last = cur
				changed()
			}
		}
	}
}

// debouncer delivers at most one pending signal on C, Delay after the last poke.
type debouncer struct {
	C     chan struct{}
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{C: make(chan struct{}, 1), delay: delay}
}

func (d *debouncer) poke() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		select {
		case d.C <- struct{}{}:
		default:
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
