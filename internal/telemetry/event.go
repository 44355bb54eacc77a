// Package telemetry turns job lifecycle events into log records and
// notifications on the configured channels.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is a job lifecycle notification.
type Kind int

const (
	Started Kind = iota + 1
	StillRunning
	Succeeded
	Failed
)

func (k Kind) String() string {
	switch k {
	case Started:
		return "started"
	case StillRunning:
		return "still_running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Alert reports kinds that are always delivered, even to channels that
// skip routine notifications.
func (k Kind) Alert() bool { return k == StillRunning || k == Failed }

// Event is one lifecycle notification for one execution.
type Event struct {
	ExecutionID string    `json:"executionId"`
	Kind        Kind      `json:"kind"`
	Schedule    string    `json:"scheduleParams"`
	Command     string    `json:"commandToExecute"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime,omitzero"`
	// Elapsed is run time so far (StillRunning) or total (Succeeded, Failed).
	Elapsed time.Duration `json:"-"`
	// Detail is the outcome (Succeeded) or the error reason (Failed).
	Detail string `json:"detail,omitempty"`
	// RunningExecutionID is the in-flight execution a StillRunning tick collided with.
	RunningExecutionID string `json:"runningExecutionId,omitempty"`
}

// MarshalJSON adds executionTimeInSec for webhook consumers.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		plain
		ExecutionTimeInSec float64 `json:"executionTimeInSec"`
	}{plain(e), e.Elapsed.Seconds()})
}

// Execution identifies one attempt to run a job.
type Execution struct {
	ID       string
	Command  string
	Schedule string
	Start    time.Time
}

// NewExecution allocates a fresh execution id.
func NewExecution(command, schedule string, now time.Time) Execution {
	return Execution{ID: uuid.NewString(), Command: command, Schedule: schedule, Start: now}
}

// Started builds the Started event.
func (x Execution) Started() Event {
	return x.base(Started)
}

// Succeeded builds the terminal event for a process that exited or was signaled.
func (x Execution) Succeeded(at time.Time, outcome string) Event {
	ev := x.ended(Succeeded, at)
	ev.Detail = outcome
	return ev
}

// Failed builds the terminal event for a process that could not be spawned.
func (x Execution) Failed(at time.Time, reason string) Event {
	ev := x.ended(Failed, at)
	ev.Detail = reason
	return ev
}

// Skipped builds the StillRunning event for a tick dropped because running
// was still in flight at time at.
func (x Execution) Skipped(running Execution, at time.Time) Event {
	ev := x.base(StillRunning)
	ev.StartTime = running.Start
	ev.Elapsed = at.Sub(running.Start)
	ev.RunningExecutionID = running.ID
	return ev
}

func (x Execution) base(k Kind) Event {
	return Event{
		ExecutionID: x.ID,
		Kind:        k,
		Schedule:    x.Schedule,
		Command:     x.Command,
		StartTime:   x.Start,
	}
}

func (x Execution) ended(k Kind, at time.Time) Event {
	ev := x.base(k)
	ev.EndTime = at
	ev.Elapsed = at.Sub(x.Start)
	return ev
}
