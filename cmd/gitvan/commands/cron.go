package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitvan/gitvan/display"
	"github.com/gitvan/gitvan/job"
)

// CronCmd groups cron schedule inspection.
var CronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Inspect cron-scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs with a cron schedule and their next run",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		jobs, err := job.NewRegistry(rt).DiscoverJobs(rt.WorkDir)
		if err != nil {
			return exitWith(ExitError, err.Error())
		}

		now := time.Now()
		type entry struct {
			ID   string `json:"id"`
			Cron string `json:"cron"`
			Next string `json:"next"`
		}
		var entries []entry
		for _, j := range jobs {
			if j.CronSpec == nil {
				continue
			}
			entries = append(entries, entry{
				ID:   j.ID,
				Cron: j.Cron,
				Next: j.CronSpec.Next(now).Format(time.RFC3339),
			})
		}

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(entries)
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.ID, e.Cron, e.Next})
		}
		display.Table([]string{"JOB", "CRON", "NEXT RUN"}, rows)
		return nil
	},
}

var cronDryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Show the upcoming executions of every cron job",
	Long: `Show the upcoming executions of every cron job.

Walks each schedule forward from --from (default: now) and prints the
next --runs fire times. Nothing is executed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		jobs, err := job.NewRegistry(rt).DiscoverJobs(rt.WorkDir)
		if err != nil {
			return exitWith(ExitError, err.Error())
		}

		from := time.Now()
		if raw, _ := cmd.Flags().GetString("from"); raw != "" {
			from, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				return exitWith(ExitInvalidInput, fmt.Sprintf("invalid --from %q, want RFC3339", raw))
			}
		}
		runs, _ := cmd.Flags().GetInt("runs")

		schedule := map[string][]string{}
		var rows [][]string
		for _, j := range jobs {
			if j.CronSpec == nil {
				continue
			}
			at := from
			for i := 0; i < runs; i++ {
				at = j.CronSpec.Next(at)
				stamp := at.Format(time.RFC3339)
				schedule[j.ID] = append(schedule[j.ID], stamp)
				rows = append(rows, []string{j.ID, j.Cron, stamp})
			}
		}

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(schedule)
		}
		if len(rows) == 0 {
			display.Warning("no cron jobs discovered")
			return nil
		}
		display.Table([]string{"JOB", "CRON", "FIRES AT"}, rows)
		return nil
	},
}

func init() {
	cronDryRunCmd.Flags().String("from", "", "Walk schedules from this RFC3339 time (default: now)")
	cronDryRunCmd.Flags().Int("runs", 3, "Fire times to show per job")

	CronCmd.AddCommand(cronListCmd)
	CronCmd.AddCommand(cronDryRunCmd)
}
