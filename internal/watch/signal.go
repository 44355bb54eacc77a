package watch

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Signal fires once per received OS signal, SIGHUP by default.
type Signal struct {
	Signals []os.Signal
}

func (s *Signal) Name() string { return "signal" }

func (s *Signal) Watch(ctx context.Context, fire func()) error {
	sigs := s.Signals
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGHUP}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			fire()
		}
	}
}
