// Package composer orchestrates resolution and application: compose runs
// the full pipeline onto a target tree, layer overlays packs by explicit
// order, preview and validate stop before any mutation.
package composer

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/git"
	"github.com/gitvan/gitvan/pack/applier"
	"github.com/gitvan/gitvan/pack/resolver"
	"github.com/gitvan/gitvan/receipt"
	"github.com/gitvan/gitvan/tmpl"
)

// Status is the aggregate outcome of a compose call.
type Status string

const (
	StatusOK       Status = "OK"
	StatusPartial  Status = "PARTIAL"
	StatusError    Status = "ERROR"
	StatusConflict Status = "CONFLICT"
)

// Options tunes a compose run.
type Options struct {
	// Inputs apply to every pack; PackInputs[packId] entries override them.
	Inputs     map[string]any
	PackInputs map[string]map[string]any

	IgnoreConflicts bool
	ContinueOnError bool
	AllowOverlap    bool
	DryRun          bool
}

// PackOutcome is the per-pack result within a compose.
type PackOutcome struct {
	ID     string
	Result *applier.Result
	Err    error
}

// Result aggregates a compose run.
type Result struct {
	Status   Status
	Plan     *resolver.Plan
	Outcomes []PackOutcome
}

// Composer wires the resolver and applier together for one repository.
type Composer struct {
	rt       *conf.Runtime
	loader   resolver.Loader
	renderer *tmpl.Renderer
	runner   *git.Runner
	log      *zap.SugaredLogger
}

// New creates a composer using loader as the pack source.
func New(rt *conf.Runtime, loader resolver.Loader, runner *git.Runner) *Composer {
	return &Composer{
		rt:       rt,
		loader:   loader,
		renderer: tmpl.New(rt),
		runner:   runner,
		log:      rt.Log.Named("composer"),
	}
}

// Compose resolves ids and applies every pack of the plan to targetDir in
// plan order. Per-pack failures stop the run unless ContinueOnError.
func (c *Composer) Compose(ctx context.Context, ids []string, targetDir string, opts Options) (*Result, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return &Result{Status: StatusOK, Plan: &resolver.Plan{}}, nil
	}

	plan, err := c.resolve(ctx, ids, opts)
	if err != nil {
		var cs *resolver.ConflictSet
		if errors.As(err, &cs) {
			return &Result{Status: StatusConflict, Plan: plan}, err
		}
		return nil, err
	}

	res := &Result{Plan: plan}
	if opts.DryRun {
		res.Status = StatusOK
		return res, nil
	}

	store := receipt.NewStore(c.runner, git.Context{Dir: targetDir}, c.rt.Log)
	app := applier.New(c.rt, c.renderer, store, c.runner, targetDir)

	var succeeded, failed int
	for _, p := range plan.Packs {
		inputs := mergeInputs(opts.Inputs, opts.PackInputs[p.Manifest.ID])
		r, err := app.Apply(ctx, p.Dir, inputs)
		res.Outcomes = append(res.Outcomes, PackOutcome{ID: p.Manifest.ID, Result: r, Err: err})

		if err != nil || r.Status == receipt.StatusError {
			failed++
			c.log.Errorw("pack application failed", "pack", p.Manifest.ID, "error", err)
			if !opts.ContinueOnError {
				break
			}
			continue
		}
		succeeded++
		if r.Status == receipt.StatusPartial {
			failed++
		}
	}

	switch {
	case failed == 0:
		res.Status = StatusOK
	case succeeded > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusError
	}
	return res, nil
}

// Layer applies packs to targetDir ordered purely by compose.order (then
// id), without dependency resolution. Later packs overwrite earlier ones;
// used for overlay scenarios.
func (c *Composer) Layer(ctx context.Context, ids []string, targetDir string, opts Options) (*Result, error) {
	ids = dedupe(ids)
	type loaded struct {
		id    string
		dir   string
		order int
	}
	var packs []loaded
	for _, id := range ids {
		res, err := c.loader.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		packs = append(packs, loaded{id: res.Manifest.ID, dir: res.Dir, order: res.Manifest.Compose.Order})
	}
	sort.SliceStable(packs, func(i, j int) bool {
		if packs[i].order != packs[j].order {
			return packs[i].order < packs[j].order
		}
		return packs[i].id < packs[j].id
	})

	store := receipt.NewStore(c.runner, git.Context{Dir: targetDir}, c.rt.Log)
	app := applier.New(c.rt, c.renderer, store, c.runner, targetDir)

	res := &Result{Plan: &resolver.Plan{}}
	var failed, succeeded int
	for _, p := range packs {
		inputs := mergeInputs(opts.Inputs, opts.PackInputs[p.id])
		r, err := app.Apply(ctx, p.dir, inputs)
		res.Outcomes = append(res.Outcomes, PackOutcome{ID: p.id, Result: r, Err: err})
		if err != nil || r.Status == receipt.StatusError {
			failed++
			if !opts.ContinueOnError {
				break
			}
			continue
		}
		succeeded++
	}
	switch {
	case failed == 0:
		res.Status = StatusOK
	case succeeded > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusError
	}
	return res, nil
}

// Preview resolves only; the target is never touched.
func (c *Composer) Preview(ctx context.Context, ids []string, opts Options) (*resolver.Plan, error) {
	opts.IgnoreConflicts = true
	return c.resolve(ctx, dedupe(ids), opts)
}

// Validate resolves and runs the pairwise compatibility checks without
// touching any target. A nil error means the set composes cleanly.
func (c *Composer) Validate(ctx context.Context, ids []string, opts Options) (*resolver.Plan, error) {
	return c.resolve(ctx, dedupe(ids), opts)
}

func (c *Composer) resolve(ctx context.Context, ids []string, opts Options) (*resolver.Plan, error) {
	r := resolver.New(c.rt, c.loader)
	return r.Resolve(ctx, ids, resolver.Options{
		IgnoreConflicts: opts.IgnoreConflicts,
		AllowOverlap:    opts.AllowOverlap,
	})
}

func mergeInputs(global, perPack map[string]any) map[string]any {
	out := make(map[string]any, len(global)+len(perPack))
	for k, v := range global {
		out[k] = v
	}
	for k, v := range perPack {
		out[k] = v
	}
	return out
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
