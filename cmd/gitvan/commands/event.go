package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitvan/gitvan/display"
	"github.com/gitvan/gitvan/job"
)

// EventCmd groups event binding inspection.
var EventCmd = &cobra.Command{
	Use:   "event",
	Short: "List event bindings and simulate signals against them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered event bindings",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		bindings, err := job.NewRegistry(rt).DiscoverEvents(rt.WorkDir)
		if err != nil {
			return exitWith(ExitError, err.Error())
		}

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(bindings)
		}
		rows := make([][]string, 0, len(bindings))
		for _, b := range bindings {
			rows = append(rows, []string{b.Kind, b.Pattern, b.JobID})
		}
		display.Table([]string{"KIND", "PATTERN", "JOB"}, rows)
		return nil
	},
}

var eventSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Show which jobs a hypothetical signal would fire",
	Long: `Show which jobs a hypothetical signal would fire.

Builds a signal from the flags, evaluates every event binding and every
job predicate against it, and prints the jobs that would be invoked.
Nothing runs and no receipts are written.

Examples:
  gitvan event simulate --kind commit --branch main --message "release: v2"
  gitvan event simulate --kind tagCreate --tag v1.2.3
  gitvan event simulate --kind commit --path src/api/users.js --path docs/readme.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}

		kind, _ := cmd.Flags().GetString("kind")
		sig := job.Signal{Kind: job.SignalKind(kind)}
		sig.Branch, _ = cmd.Flags().GetString("branch")
		sig.Message, _ = cmd.Flags().GetString("message")
		sig.Tag, _ = cmd.Flags().GetString("tag")
		sig.ChangedPaths, _ = cmd.Flags().GetStringArray("path")

		registry := job.NewRegistry(rt)
		jobs, err := registry.DiscoverJobs(rt.WorkDir)
		if err != nil {
			return exitWith(ExitError, err.Error())
		}
		bindings, err := registry.DiscoverEvents(rt.WorkDir)
		if err != nil {
			return exitWith(ExitError, err.Error())
		}

		byID := map[string]*job.Job{}
		for _, j := range jobs {
			byID[j.ID] = j
		}
		fired := map[string][]string{}
		for _, b := range bindings {
			if b.Matches(sig) {
				reason := fmt.Sprintf("binding %s/%s", b.Kind, b.Pattern)
				fired[b.JobID] = append(fired[b.JobID], reason)
			}
		}
		for _, j := range jobs {
			if j.On != nil && j.On.Matches(sig) {
				fired[j.ID] = append(fired[j.ID], "job predicate")
			}
		}

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(fired)
		}
		if len(fired) == 0 {
			display.Warning("no job matches this signal")
			return nil
		}
		rows := make([][]string, 0, len(fired))
		for _, j := range jobs {
			if reasons, ok := fired[j.ID]; ok {
				rows = append(rows, []string{j.ID, strings.Join(reasons, ", ")})
			}
		}
		for id, reasons := range fired {
			if _, known := byID[id]; !known {
				rows = append(rows, []string{id + " (missing)", strings.Join(reasons, ", ")})
			}
		}
		display.Table([]string{"JOB", "MATCHED BY"}, rows)
		return nil
	},
}

func init() {
	eventSimulateCmd.Flags().String("kind", "commit", "Signal kind (commit, merge, tagCreate, cronTick)")
	eventSimulateCmd.Flags().String("branch", "", "Branch the signal occurred on")
	eventSimulateCmd.Flags().String("message", "", "Commit message")
	eventSimulateCmd.Flags().String("tag", "", "Created tag name")
	eventSimulateCmd.Flags().StringArray("path", nil, "Changed path (repeatable)")

	EventCmd.AddCommand(eventListCmd)
	EventCmd.AddCommand(eventSimulateCmd)
}
