package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitvan/gitvan/display"
	"github.com/gitvan/gitvan/git"
	"github.com/gitvan/gitvan/job"
)

// JobCmd groups job discovery and manual execution.
var JobCmd = &cobra.Command{
	Use:   "job",
	Short: "List and run jobs defined under jobs/",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		jobs, err := job.NewRegistry(rt).DiscoverJobs(rt.WorkDir)
		if err != nil {
			return exitWith(ExitError, err.Error())
		}

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(jobs)
		}
		rows := make([][]string, 0, len(jobs))
		for _, j := range jobs {
			handler := j.Handler
			if handler == "" {
				handler = job.DefaultHandler
			}
			cron := j.Cron
			if cron == "" {
				cron = "-"
			}
			rows = append(rows, []string{j.ID, handler, cron, j.Name})
		}
		display.Table([]string{"JOB", "HANDLER", "CRON", "NAME"}, rows)
		return nil
	},
}

var jobRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a job immediately with a manual signal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		registry := job.NewRegistry(rt)
		jobs, err := registry.DiscoverJobs(rt.WorkDir)
		if err != nil {
			return exitWith(ExitError, err.Error())
		}
		var target *job.Job
		for _, j := range jobs {
			if j.ID == args[0] {
				target = j
				break
			}
		}
		if target == nil {
			return exitWith(ExitInvalidInput, fmt.Sprintf("unknown job %q", args[0]))
		}

		runner := git.NewRunner(rt.Log)
		ec := git.Context{Dir: rt.WorkDir}
		sig := job.Signal{Kind: job.SignalManual}
		if head, err := runner.RevParse(cmd.Context(), ec, "HEAD"); err == nil {
			sig.Commit = head
		}
		if branch, err := runner.CurrentBranch(cmd.Context(), ec); err == nil {
			sig.Branch = branch
		}

		h, err := registry.Handler(target.Handler)
		if err != nil {
			return exitWith(ExitError, err.Error())
		}
		timeout := target.Timeout(time.Duration(rt.Config.Daemon.JobTimeoutSeconds) * time.Second)
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		out, err := h.Run(ctx, job.Invocation{Job: target, Signal: sig, WorkDir: rt.WorkDir})
		if out != "" {
			fmt.Print(out)
		}
		if err != nil {
			return exitWith(ExitError, err.Error())
		}
		display.Success("job %s completed", target.ID)
		return nil
	},
}

func init() {
	JobCmd.AddCommand(jobListCmd)
	JobCmd.AddCommand(jobRunCmd)
}
