package commands

import (
	"github.com/spf13/cobra"

	"github.com/gitvan/gitvan/display"
	"github.com/gitvan/gitvan/git"
	"github.com/gitvan/gitvan/receipt"
)

// AuditCmd groups receipt inspection. Receipts are the append-only audit
// trail GitVan writes into git notes for every pack application and job
// run.
var AuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the receipt audit trail in git notes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all receipts, optionally filtered by id prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		store := receipt.NewStore(git.NewRunner(rt.Log), git.Context{Dir: rt.WorkDir}, rt.Log)

		prefix, _ := cmd.Flags().GetString("prefix")
		receipts, err := store.List(cmd.Context(), prefix)
		if err != nil {
			return exitWith(ExitError, err.Error())
		}

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(receipts)
		}
		printReceipts(receipts)
		return nil
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show <commit>",
	Short: "Show the receipts attached to one commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		runner := git.NewRunner(rt.Log)
		ec := git.Context{Dir: rt.WorkDir}

		commit, err := runner.RevParse(cmd.Context(), ec, args[0])
		if err != nil {
			return exitWith(ExitInvalidInput, err.Error())
		}
		store := receipt.NewStore(runner, ec, rt.Log)
		receipts, err := store.ReadAll(cmd.Context(), commit)
		if err != nil {
			return exitWith(ExitError, err.Error())
		}

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(receipts)
		}
		if len(receipts) == 0 {
			display.Warning("no receipts on %s", commit)
			return nil
		}
		printReceipts(receipts)
		return nil
	},
}

func printReceipts(receipts []*receipt.Receipt) {
	rows := make([][]string, 0, len(receipts))
	for _, r := range receipts {
		detail := ""
		if r.Error != nil {
			detail = r.Error.Message
		}
		commit := r.Commit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		rows = append(rows, []string{r.Timestamp, r.ID, string(r.Action), string(r.Status), commit, detail})
	}
	display.Table([]string{"TIMESTAMP", "ID", "ACTION", "STATUS", "COMMIT", "DETAIL"}, rows)
}

func init() {
	auditListCmd.Flags().String("prefix", "", "Only receipts whose id starts with this prefix")
	AuditCmd.AddCommand(auditListCmd)
	AuditCmd.AddCommand(auditShowCmd)
}
