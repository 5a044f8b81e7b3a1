package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitvan/gitvan/cmd/gitvan/commands"
	"github.com/gitvan/gitvan/logger"
)

var rootCmd = &cobra.Command{
	Use:   "gitvan",
	Short: "Git-native development automation",
	Long: `GitVan - Git-native development automation.

GitVan turns a repository into its own automation platform: packs of
templates, files, jobs and event bindings are resolved, composed and
applied idempotently, and a daemon reacts to commits, tags and cron
schedules by running jobs. Every action leaves a receipt in git notes.

Available commands:
  pack   - Resolve, preview and apply packs
  daemon - Run and inspect the automation daemon
  job    - List and run jobs defined under jobs/
  event  - List event bindings and simulate signals
  cron   - Inspect cron-scheduled jobs
  audit  - Inspect the receipt audit trail

Examples:
  gitvan pack apply starter/api --input projectName=demo
  gitvan daemon start
  gitvan audit list --prefix starter/`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Root().PersistentFlags().GetBool("json")
		return logger.Initialize(jsonOutput)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Emit machine-readable JSON output")
	rootCmd.PersistentFlags().String("dir", "", "Repository directory (default: current directory)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: <dir>/.gitvan/config.toml)")

	rootCmd.AddCommand(commands.PackCmd)
	rootCmd.AddCommand(commands.DaemonCmd)
	rootCmd.AddCommand(commands.JobCmd)
	rootCmd.AddCommand(commands.EventCmd)
	rootCmd.AddCommand(commands.CronCmd)
	rootCmd.AddCommand(commands.AuditCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exit *commands.ExitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		os.Exit(1)
	}
}
