package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hotcron/internal/jobs"
	"hotcron/internal/platform/httpclient"
)

var errNoAddr = errors.New("admin address not set: pass --addr or set ADMIN_HTTP_ADDR")

func adminClient(cmd *cobra.Command) (*httpclient.Client, error) {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = os.Getenv("ADMIN_HTTP_ADDR")
	}
	if addr == "" {
		return nil, errNoAddr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return httpclient.New(
		httpclient.WithBaseURL(addr),
		httpclient.WithTimeout(10*time.Second),
		httpclient.WithRetries(2, 200*time.Millisecond),
	), nil
}

func withAddr(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String("addr", "", "admin API address of a running instance (default $ADMIN_HTTP_ADDR)")
	return cmd
}

func newJobsCmd() *cobra.Command {
	return withAddr(&cobra.Command{
		Use:   "jobs",
		Short: "List the jobs of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := adminClient(cmd)
			if err != nil {
				return err
			}
			var snaps []jobs.Snapshot
			if err := c.DoJSON(cmd.Context(), http.MethodGet, "/jobs", nil, &snaps); err != nil {
				return err
			}
			printJobs(cmd, snaps)
			return nil
		},
	})
}

func newReloadCmd() *cobra.Command {
	return withAddr(&cobra.Command{
		Use:   "reload",
		Short: "Ask a running instance to re-read its crontab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := adminClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			var resp struct {
				Jobs int `json:"jobs"`
			}
			if err := c.DoJSON(ctx, http.MethodPost, "/reload", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reloaded, %d job(s)\n", resp.Jobs)
			return nil
		},
	})
}

func printJobs(cmd *cobra.Command, snaps []jobs.Snapshot) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSCHEDULE\tCOMMAND\tSTATE\tNEXT\tLAST RESULT")
	for _, s := range snaps {
		state := "idle"
		switch {
		case !s.Armed:
			state = "unarmed"
		case s.IsRunning:
			state = "running"
		}
		next := "-"
		if s.Next != nil {
			next = s.Next.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", s.Index, s.ScheduleParams, s.CommandToExecute, state, next, s.LastResultOutput)
	}
	_ = w.Flush()
}
