package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitvan/gitvan/display"
	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/pack"
	"github.com/gitvan/gitvan/pack/composer"
	"github.com/gitvan/gitvan/pack/resolver"
)

// PackCmd groups the pack lifecycle commands.
var PackCmd = &cobra.Command{
	Use:   "pack",
	Short: "Resolve, preview and apply packs",
	Long: `Resolve, preview and apply packs.

A pack is a directory with a pack.json manifest providing templates,
files, jobs and event bindings. Packs resolve from builtins, local
directories, the cache, forges (owner/repo[#ref][/subpath]) and the
registry, in that order.

Examples:
  gitvan pack apply starter/api --input projectName=demo
  gitvan pack preview starter/api features/admin --graph dot
  gitvan pack validate starter/api features/admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var packApplyCmd = &cobra.Command{
	Use:   "apply <pack-id>...",
	Short: "Resolve packs and apply them to the working tree",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		comp, _, err := newComposer(rt)
		if err != nil {
			return err
		}

		rawInputs, _ := cmd.Flags().GetStringArray("input")
		inputs, err := parseInputs(rawInputs)
		if err != nil {
			return exitWith(ExitInvalidInput, err.Error())
		}
		opts := composer.Options{Inputs: inputs}
		opts.IgnoreConflicts, _ = cmd.Flags().GetBool("ignore-conflicts")
		opts.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
		opts.AllowOverlap, _ = cmd.Flags().GetBool("allow-overlap")
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")

		target, _ := cmd.Flags().GetString("target")
		if target == "" {
			target = rt.WorkDir
		}

		layer, _ := cmd.Flags().GetBool("layer")
		run := comp.Compose
		if layer {
			run = comp.Layer
		}
		res, err := run(cmd.Context(), args, target, opts)
		if err != nil && res == nil {
			return composeError(err)
		}
		printComposeResult(cmd, res)
		return composeExit(res, err)
	},
}

func composeError(err error) error {
	var invalid *pack.InputValidationFailed
	if errors.As(err, &invalid) {
		return exitWith(ExitInvalidInput, err.Error())
	}
	return exitWith(ExitError, err.Error())
}

func composeExit(res *composer.Result, err error) error {
	for _, o := range res.Outcomes {
		var invalid *pack.InputValidationFailed
		if errors.As(o.Err, &invalid) {
			return exitWith(ExitInvalidInput, o.Err.Error())
		}
	}
	switch res.Status {
	case composer.StatusOK:
		return nil
	case composer.StatusPartial:
		return exitWith(ExitPartial, "some packs failed to apply")
	case composer.StatusConflict:
		msg := "plan has conflicts"
		if err != nil {
			msg = err.Error()
		}
		return exitWith(ExitConflict, msg)
	default:
		return exitWith(ExitError, "apply failed")
	}
}

func printComposeResult(cmd *cobra.Command, res *composer.Result) {
	if display.ShouldOutputJSON(cmd) {
		_ = display.OutputJSON(res)
		return
	}
	if len(res.Outcomes) == 0 && res.Status == composer.StatusOK {
		display.Success("nothing to apply")
		return
	}

	rows := make([][]string, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		status, detail := "ERROR", ""
		if o.Err != nil {
			detail = o.Err.Error()
		}
		if o.Result != nil {
			status = string(o.Result.Status)
			detail = fmt.Sprintf("%d items", len(o.Result.Applied))
			if len(o.Result.Errors) > 0 {
				detail += ", " + strings.Join(o.Result.Errors, "; ")
			}
		}
		rows = append(rows, []string{o.ID, status, detail})
	}
	display.Table([]string{"PACK", "STATUS", "DETAIL"}, rows)

	switch res.Status {
	case composer.StatusOK:
		display.Success("applied %d pack(s)", len(res.Outcomes))
	case composer.StatusConflict:
		display.Error("conflicts detected, nothing applied")
	default:
		display.Warning("compose finished with status %s", res.Status)
	}
}

var packPreviewCmd = &cobra.Command{
	Use:   "preview <pack-id>...",
	Short: "Show the resolved plan without touching the working tree",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		comp, _, err := newComposer(rt)
		if err != nil {
			return err
		}

		plan, err := comp.Preview(cmd.Context(), args, composer.Options{})
		if err != nil {
			return exitWith(ExitError, err.Error())
		}

		format, _ := cmd.Flags().GetString("graph")
		switch format {
		case "":
			printPlan(cmd, plan)
		case "text":
			fmt.Print(plan.Graph.EmitText())
		case "dot":
			fmt.Print(plan.Graph.EmitDOT())
		case "json":
			out, err := plan.Graph.EmitJSON()
			if err != nil {
				return exitWith(ExitError, err.Error())
			}
			fmt.Println(string(out))
		default:
			return exitWith(ExitInvalidInput, fmt.Sprintf("unknown graph format %q (text, dot, json)", format))
		}
		return nil
	},
}

func printPlan(cmd *cobra.Command, plan *resolver.Plan) {
	if display.ShouldOutputJSON(cmd) {
		_ = display.OutputJSON(plan)
		return
	}
	rows := make([][]string, 0, len(plan.Packs))
	for i, p := range plan.Packs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			p.Manifest.ID,
			p.Manifest.Version,
			fmt.Sprintf("%d", p.Manifest.Compose.Order),
			string(p.Kind),
		})
	}
	display.Table([]string{"#", "PACK", "VERSION", "ORDER", "SOURCE"}, rows)
	if chain := plan.Graph.CriticalPath(); len(chain) > 1 {
		fmt.Printf("longest dependency chain: %s\n", strings.Join(chain, " -> "))
	}
	for _, cycle := range plan.Cycles {
		display.Warning("dependency cycle cut: %s", strings.Join(cycle, " -> "))
	}
	for _, c := range plan.Conflicts {
		display.Warning("conflict: %s <-> %s: %s", c.A, c.B, c.Reason)
	}
}

var packValidateCmd = &cobra.Command{
	Use:   "validate <pack-id>...",
	Short: "Resolve packs and report conflicts without applying",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		comp, _, err := newComposer(rt)
		if err != nil {
			return err
		}

		plan, err := comp.Validate(cmd.Context(), args, composer.Options{})
		if err != nil {
			var cs *resolver.ConflictSet
			if errors.As(err, &cs) {
				for _, c := range cs.Conflicts {
					display.Error("%s <-> %s: %s", c.A, c.B, c.Reason)
				}
				return exitWith(ExitConflict, cs.Error())
			}
			return exitWith(ExitError, err.Error())
		}
		printPlan(cmd, plan)
		display.Success("plan is valid: %d pack(s), no conflicts", len(plan.Packs))
		return nil
	},
}

func init() {
	packApplyCmd.Flags().StringArray("input", nil, "Pack input as key=value (repeatable)")
	packApplyCmd.Flags().String("target", "", "Target directory (default: working directory)")
	packApplyCmd.Flags().Bool("ignore-conflicts", false, "Apply even when the plan has conflicts")
	packApplyCmd.Flags().Bool("continue-on-error", false, "Keep applying remaining packs after a failure")
	packApplyCmd.Flags().Bool("allow-overlap", false, "Permit capability overlap between packs")
	packApplyCmd.Flags().Bool("dry-run", false, "Resolve and plan only, do not touch the tree")
	packApplyCmd.Flags().Bool("layer", false, "Order by compose.order only, later packs overwrite")
	packPreviewCmd.Flags().String("graph", "", "Emit the dependency graph (text, dot, json)")

	PackCmd.AddCommand(packApplyCmd)
	PackCmd.AddCommand(packPreviewCmd)
	PackCmd.AddCommand(packValidateCmd)
}
