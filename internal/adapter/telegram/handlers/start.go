package handlers

import "fmt"

// start handles /start command.
func (c *Commands) start() string {
	return fmt.Sprintf("hotcron is running with %d job(s). Commands: /jobs, /reload, /run N, /ping", len(c.svc.Snapshots()))
}
