package display

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// ShouldOutputJSON reports whether a command should emit JSON instead of
// tables, honoring the command-local flag over the global one.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	if cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}
	globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json")
	return globalFlag
}

// Table renders rows under a header with the CLI's shared table style.
func Table(header []string, rows [][]string) {
	data := pterm.TableData{header}
	data = append(data, rows...)
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// Success, Warning and Error print one-line status messages.
func Success(format string, args ...any) { pterm.Success.Printfln(format, args...) }
func Warning(format string, args ...any) { pterm.Warning.Printfln(format, args...) }
func Error(format string, args ...any)   { pterm.Error.Printfln(format, args...) }
