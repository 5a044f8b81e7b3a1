package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gitvan/gitvan/daemon"
	"github.com/gitvan/gitvan/display"
	"github.com/gitvan/gitvan/git"
)

// DaemonCmd groups the automation daemon commands.
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run and inspect the automation daemon",
	Long: `Run and inspect the automation daemon.

The daemon watches the repository (HEAD and tags) and the clock, matches
signals against jobs under jobs/ and event bindings under events/, runs
the matching jobs on a bounded worker pool, and writes a receipt per run
into git notes.

Examples:
  gitvan daemon start              # run in the foreground until Ctrl+C
  gitvan daemon start --workers 8
  gitvan daemon status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
			rt.Config.Daemon.Workers = workers
		}

		d, err := daemon.New(rt, git.NewRunner(rt.Log))
		if err != nil {
			return exitWith(ExitError, err.Error())
		}
		if err := d.Start(cmd.Context()); err != nil {
			return exitWith(ExitError, err.Error())
		}

		fmt.Printf("gitvan daemon running (workers: %d, poll: %ds)\n",
			rt.Config.Daemon.Workers, rt.Config.Daemon.PollIntervalSeconds)
		fmt.Println("press Ctrl+C for graceful shutdown")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Println("\ndraining, in-flight jobs finish first...")
		if err := d.Stop(); err != nil {
			return exitWith(ExitError, err.Error())
		}
		fmt.Println("daemon stopped")
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show repository automation status and resource usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		d, err := daemon.New(rt, git.NewRunner(rt.Log))
		if err != nil {
			return exitWith(ExitError, err.Error())
		}
		s := d.Status(cmd.Context())

		jobs, _ := d.Registry().DiscoverJobs(rt.WorkDir)
		bindings, _ := d.Registry().DiscoverEvents(rt.WorkDir)

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(map[string]any{
				"status":   s,
				"jobs":     len(jobs),
				"bindings": len(bindings),
			})
		}

		display.Table([]string{"FIELD", "VALUE"}, [][]string{
			{"state", string(s.State)},
			{"head", s.Head},
			{"branch", s.Branch},
			{"jobs", fmt.Sprintf("%d", len(jobs))},
			{"event bindings", fmt.Sprintf("%d", len(bindings))},
			{"workers", fmt.Sprintf("%d", s.Workers.Workers)},
			{"jobs processed", fmt.Sprintf("%d", s.Workers.Processed)},
			{"cache memory", fmt.Sprintf("%d entries, %d bytes", s.Cache.MemoryCount, s.Cache.MemoryBytes)},
			{"cache hits", fmt.Sprintf("%d memory, %d disk, %d misses", s.Cache.MemoryHits, s.Cache.DiskHits, s.Cache.Misses)},
			{"memory", fmt.Sprintf("%.1f MB (%.1f%% of system)", s.MemoryUsedMB, s.MemoryPercent)},
			{"cpu", fmt.Sprintf("%.1f%%", s.CPUPercent)},
		})
		return nil
	},
}

func init() {
	daemonStartCmd.Flags().Int("workers", 0, "Concurrent job workers (default from config)")
	DaemonCmd.AddCommand(daemonStartCmd)
	DaemonCmd.AddCommand(daemonStatusCmd)
}
