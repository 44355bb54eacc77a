package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"hotcron/internal/adapter/scheduler"
	"hotcron/internal/crontab"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a crontab file and its cron expressions",
		Long: `Parse the crontab (default: $CRONTAB_FILE_ABS_PATH, then ./crontab.json) and
check every schedule expression. Exits non-zero when any entry is unusable.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := crontabPath(args)
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			entries, err := crontab.Parse(path, data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			problems := crontab.Validate(entries, scheduler.ParseSpec)
			for _, p := range problems {
				fmt.Fprintln(out, "invalid:", p.Error())
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d of %d entries invalid", len(problems), len(entries))
			}
			fmt.Fprintf(out, "%s: %d entries ok\n", path, len(entries))
			return nil
		},
	}
}

func crontabPath(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	_ = godotenv.Load()
	if p := os.Getenv("CRONTAB_FILE_ABS_PATH"); p != "" {
		return p
	}
	return "crontab.json"
}
