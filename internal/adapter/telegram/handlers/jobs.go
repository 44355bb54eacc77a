package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hotcron/internal/shared"
)

const maxReply = 4000

// jobs handles /jobs.
func (c *Commands) jobs() string {
	snaps := c.svc.Snapshots()
	if len(snaps) == 0 {
		return "no jobs loaded"
	}
	var b strings.Builder
	for _, s := range snaps {
		state := "idle"
		switch {
		case !s.Armed:
			state = "unarmed"
		case s.IsRunning:
			state = "running"
		}
		line := fmt.Sprintf("#%d [%s] %s  %s", s.Index, state, s.ScheduleParams, s.CommandToExecute)
		if s.Next != nil {
			line += "\n    next: " + s.Next.Format(time.RFC3339)
		}
		if s.LastResultOutput != "" {
			line += "\n    last: " + s.LastResultOutput
		}
		if b.Len()+len(line)+1 > maxReply {
			b.WriteString("…")
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// reload handles /reload.
func (c *Commands) reload(ctx context.Context) string {
	if err := c.svc.Reload(ctx); err != nil {
		c.log.Warn("reload via telegram failed", "err", err)
		return "reload failed: " + err.Error()
	}
	return fmt.Sprintf("reloaded, %d job(s)", len(c.svc.Snapshots()))
}

// run handles /run N.
func (c *Commands) run(args []string) string {
	if len(args) != 1 {
		return "usage: /run N"
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return "usage: /run N"
	}
	switch err := c.svc.TriggerJob(index); {
	case err == nil:
		return fmt.Sprintf("job #%d started", index)
	case shared.IsNotFound(err):
		return fmt.Sprintf("no job #%d", index)
	default:
		return "cannot run: " + err.Error()
	}
}
