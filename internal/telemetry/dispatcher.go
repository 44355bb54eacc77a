package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"hotcron/internal/shared"
	"hotcron/pkg/retry"
)

// Channel delivers rendered messages to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Route attaches a Channel to the dispatcher.
type Route struct {
	Channel Channel
	// AlertsOnly skips Started and Succeeded.
	AlertsOnly bool
}

// Options tunes the dispatcher. Zero values take defaults.
type Options struct {
	Logger      *slog.Logger
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
	Retry       retry.Config
	// BreakerFailures consecutive failures open a channel's circuit.
	BreakerFailures uint32
	// BreakerCooldown is how long an open circuit rejects deliveries.
	BreakerCooldown time.Duration
}

type route struct {
	Route
	cb *gobreaker.CircuitBreaker
}

// Dispatcher logs every event and fans notifications out asynchronously.
// Delivery failures are logged and never reach the caller.
type Dispatcher struct {
	log     *slog.Logger
	routes  []route
	queue   chan Message
	timeout time.Duration
	retry   retry.Config

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(o Options, routes ...Route) *Dispatcher {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 20 * time.Second
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = time.Minute
	}

	d := &Dispatcher{
		log:     o.Logger.With("component", "telemetry"),
		queue:   make(chan Message, o.QueueSize),
		timeout: o.SendTimeout,
		retry:   o.Retry,
	}
	for _, r := range routes {
		name := r.Channel.Name()
		d.routes = append(d.routes, route{
			Route: r,
			cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:    name,
				Timeout: o.BreakerCooldown,
				ReadyToTrip: func(c gobreaker.Counts) bool {
					return c.ConsecutiveFailures >= o.BreakerFailures
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					d.log.Warn("channel circuit state changed", "channel", name, "from", from.String(), "to", to.String())
				},
			}),
		})
	}
	if len(d.routes) > 0 {
		for i := 0; i < o.Workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
	}
	return d
}

// Emit logs ev and queues it for delivery. It never blocks on channels.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	msg := Render(ev)

	level := slog.LevelInfo
	if ev.Kind.Alert() {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("kind", ev.Kind.String()),
		slog.String("execution_id", ev.ExecutionID),
		slog.String("command", ev.Command),
		slog.String("schedule", ev.Schedule),
	}
	if ev.Kind != Started {
		attrs = append(attrs, slog.Float64("execution_time_sec", ev.Elapsed.Seconds()))
	}
	if ev.Detail != "" {
		attrs = append(attrs, slog.String("detail", ev.Detail))
	}
	if ev.RunningExecutionID != "" {
		attrs = append(attrs, slog.String("running_execution_id", ev.RunningExecutionID))
	}
	d.log.LogAttrs(ctx, level, Title(ev.Kind), attrs...)

	if len(d.routes) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("telemetry closed, event dropped", "execution_id", ev.ExecutionID, "kind", ev.Kind.String())
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.log.Warn("telemetry queue full, event dropped", "execution_id", ev.ExecutionID, "kind", ev.Kind.String())
	}
}

// PrintLine logs one line of job output.
func (d *Dispatcher) PrintLine(executionID, stream, text string) {
	d.log.Info("job output", "execution_id", executionID, "stream", stream, "line", text)
}

// ChannelStates reports the circuit state of every channel.
func (d *Dispatcher) ChannelStates() map[string]string {
	out := make(map[string]string, len(d.routes))
	for _, r := range d.routes {
		out[r.Channel.Name()] = r.cb.State().String()
	}
	return out
}

// Close stops accepting events and waits until queued ones are delivered or
// ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		for _, r := range d.routes {
			if r.AlertsOnly && !msg.Event.Kind.Alert() {
				continue
			}
			if err := d.deliver(r, msg); err != nil {
				d.log.Warn("telemetry delivery failed",
					"channel", r.Channel.Name(),
					"execution_id", msg.Event.ExecutionID,
					"kind", msg.Event.Kind.String(),
					"err", err,
				)
			}
		}
	}
}

func (d *Dispatcher) deliver(r route, msg Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := retry.Do(ctx, d.retry, func(ctx context.Context) error {
		_, err := r.cb.Execute(func() (any, error) {
			return nil, r.Channel.Send(ctx, msg)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return shared.MarkKind(err, shared.KindTelemetryDelivery)
	}
	return nil
}
