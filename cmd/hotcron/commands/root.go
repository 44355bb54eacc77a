// Package commands defines the hotcron command line.
package commands

import (
	"github.com/spf13/cobra"

	"hotcron/internal/app"
)

// NewRoot builds the command tree. Without a subcommand it behaves like run.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "hotcron",
		Short: "Hot-reloadable cron job runner",
		Long: `hotcron runs shell commands on cron schedules read from a JSON or YAML
crontab file and re-reads that file whenever it changes or the process
receives SIGHUP.

Examples:
  hotcron                          # same as hotcron run
  hotcron validate crontab.json    # check a crontab without running it
  hotcron jobs --addr :8080        # list jobs of a running instance
  hotcron reload --addr :8080      # ask a running instance to reload`,
		SilenceUsage: true,
		RunE:         runScheduler,
	}
	root.AddCommand(newRunCmd(), newValidateCmd(), newJobsCmd(), newReloadCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler (configured from the environment and .env)",
		Args:  cobra.NoArgs,
		RunE:  runScheduler,
	}
}

func runScheduler(*cobra.Command, []string) error {
	a, err := app.New()
	if err != nil {
		return err
	}
	return a.Run()
}
