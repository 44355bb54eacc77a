package telemetry

import (
	"fmt"
	"strings"
	"time"
)

const delimiter = "----------------------------"

// Message is a rendered Event, ready for a channel.
type Message struct {
	Event   Event
	Subject string
	Text    string
}

// Title is the headline used in logs and message bodies.
func Title(k Kind) string {
	switch k {
	case Started:
		return "Starting a new schedule job:"
	case StillRunning:
		return "[SKIP] SCHEDULE WITH SETTINGS IS STILL RUNNING, SKIPPING CURRENT SCHEDULE:"
	case Succeeded:
		return "Job ended with success - schedule settings:"
	case Failed:
		return "[ERROR] JOB ENDED - SCHEDULE SETTINGS:"
	default:
		return k.String()
	}
}

// Subject is the e-mail subject line.
func Subject(ev Event) string {
	switch ev.Kind {
	case Started:
		return "Starting job schedule, execution id: " + ev.ExecutionID
	case StillRunning:
		return "!!! SCHEDULE WITH SETTINGS IS STILL RUNNING, EXEC_ID: " + ev.ExecutionID
	case Succeeded:
		return "Ended with success, execution id: " + ev.ExecutionID
	case Failed:
		return "!!! ENDED WITH ERROR, EXEC_ID: " + ev.ExecutionID
	default:
		return ev.Kind.String() + ", execution id: " + ev.ExecutionID
	}
}

// Render builds the plain text body shared by all channels.
func Render(ev Event) Message {
	var b strings.Builder
	line := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteByte('\n')
	}

	b.WriteString(delimiter + "\n")
	b.WriteString(Title(ev.Kind) + "\n")
	line("executionId", ev.ExecutionID)
	line("commandToExecute", ev.Command)
	line("scheduleParams", ev.Schedule)
	if ev.Kind == Started || ev.Kind == StillRunning {
		line("startDateAndTime", ev.StartTime.Format(time.RFC1123))
	}
	if ev.RunningExecutionID != "" {
		line("runningExecutionId", ev.RunningExecutionID)
	}
	if ev.Kind != Started {
		line("executionTimeInSec", fmt.Sprintf("%.3f", ev.Elapsed.Seconds()))
	}
	switch {
	case ev.Kind == Succeeded && ev.Detail != "":
		line("outcome", ev.Detail)
	case ev.Kind == Failed && ev.Detail != "":
		line("errorReason", ev.Detail)
	}
	b.WriteString(delimiter)

	return Message{Event: ev, Subject: Subject(ev), Text: b.String()}
}
