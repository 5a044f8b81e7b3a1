package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitvan/gitvan/display"
	"github.com/gitvan/gitvan/version"
)

// VersionCmd prints build version information.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(map[string]string{
				"version": version.Version,
				"commit":  version.Commit,
				"date":    version.Date,
			})
		}
		fmt.Printf("gitvan %s\n", version.String())
		return nil
	},
}
