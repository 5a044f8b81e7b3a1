// Package resolver turns a set of requested pack ids into an ordered,
// conflict-checked application plan. Dependencies come first; ties break
// by compose order, then id. Cycles are cut and reported rather than
// failing the whole plan.
package resolver

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/pack"
	"github.com/gitvan/gitvan/pack/graph"
	"github.com/gitvan/gitvan/pack/source"
)

// Loader materializes a pack by id. *source.Fetcher is the production
// implementation; tests substitute an in-memory map.
type Loader interface {
	Resolve(ctx context.Context, id string) (*source.Resolved, error)
}

// Plan is the resolution result: packs in application order, the
// dependency graph they came from, and every conflict found between
// them. Conflicts are always populated so preview and validate can
// report them even when resolution is allowed to proceed.
type Plan struct {
	Packs     []*source.Resolved
	Order     []string
	Cycles    [][]string
	Conflicts []*Conflict
	Graph     *graph.Graph
}

// Manifest returns the resolved manifest for id, nil when absent.
func (p *Plan) Manifest(id string) *pack.Manifest {
	for _, r := range p.Packs {
		if r.Manifest.ID == id {
			return r.Manifest
		}
	}
	return nil
}

// Options tunes resolution.
type Options struct {
	// IgnoreConflicts keeps conflicting packs in the plan and suppresses
	// the ConflictSet error; the conflicts remain on Plan.Conflicts.
	IgnoreConflicts bool
	// AllowOverlap permits capability overlap plan-wide, as if every pack
	// declared allowOverlap.
	AllowOverlap bool
}

// Resolver resolves pack dependency closures. Not safe for concurrent use;
// create one per resolution.
type Resolver struct {
	loader Loader
	log    *zap.SugaredLogger

	// memo caches loads within one resolver so diamonds fetch once. The
	// first encountered version of an id wins plan-wide.
	memo map[string]*source.Resolved
}

// New creates a resolver backed by the given loader.
func New(rt *conf.Runtime, loader Loader) *Resolver {
	return &Resolver{
		loader: loader,
		log:    rt.Log.Named("resolver"),
		memo:   map[string]*source.Resolved{},
	}
}

// Resolve builds the plan for the requested ids. The returned error is a
// *ConflictSet when conflicts were found and opts.IgnoreConflicts is off;
// the plan is still populated so callers can report it.
func (r *Resolver) Resolve(ctx context.Context, ids []string, opts Options) (*Plan, error) {
	g := graph.New()
	var packs []*source.Resolved

	var visit func(parent, id string) error
	visiting := map[string]bool{}
	done := map[string]bool{}

	visit = func(parent, id string) error {
		if done[id] || visiting[id] {
			// Cycles surface through graph analysis below; revisits are
			// already in the plan.
			return nil
		}
		visiting[id] = true
		defer func() { visiting[id] = false }()

		res, err := r.load(ctx, id)
		if err != nil {
			if parent == "" {
				return err
			}
			return &DependencyFailed{Parent: parent, Dep: id, Err: err}
		}

		g.AddNode(res.Manifest.ID)
		for _, dep := range dependencyIDs(res.Manifest) {
			g.AddEdge(res.Manifest.ID, dep)
			if err := visit(res.Manifest.ID, dep); err != nil {
				return err
			}
		}

		done[id] = true
		packs = append(packs, res)
		return nil
	}

	for _, id := range ids {
		if err := visit("", id); err != nil {
			return nil, err
		}
	}

	cycles := g.DetectCycles()
	for _, c := range cycles {
		r.log.Warnw("dependency cycle cut", "cycle", c)
	}

	plan := &Plan{
		Packs:  packs,
		Cycles: cycles,
		Graph:  g,
	}
	plan.Order = orderPlan(g, plan)
	plan.sortPacks()

	plan.Conflicts = detectConflicts(plan, opts)
	if len(plan.Conflicts) > 0 {
		if opts.IgnoreConflicts {
			for _, c := range plan.Conflicts {
				r.log.Warnw("conflict ignored", "a", c.A, "b", c.B, "reason", c.Reason)
			}
			return plan, nil
		}
		return plan, &ConflictSet{Conflicts: plan.Conflicts}
	}
	return plan, nil
}

// load fetches id once per resolver. Duplicate encounters keep the first
// resolved version.
func (r *Resolver) load(ctx context.Context, id string) (*source.Resolved, error) {
	if res, ok := r.memo[id]; ok {
		return res, nil
	}
	res, err := r.loader.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	r.memo[id] = res
	// Forge and registry ids may differ from the manifest id; memo both.
	r.memo[res.Manifest.ID] = res
	return res, nil
}

// dependencyIDs merges dependsOn and the keys of the semver dependency
// map, deduplicated, in declaration order then sorted map keys.
func dependencyIDs(m *pack.Manifest) []string {
	seen := map[string]bool{}
	var out []string
	for _, dep := range m.Compose.DependsOn {
		if !seen[dep] {
			seen[dep] = true
			out = append(out, dep)
		}
	}
	versioned := make([]string, 0, len(m.Compose.Dependencies))
	for dep := range m.Compose.Dependencies {
		versioned = append(versioned, dep)
	}
	sort.Strings(versioned)
	for _, dep := range versioned {
		if !seen[dep] {
			seen[dep] = true
			out = append(out, dep)
		}
	}
	return out
}

// orderPlan runs Kahn's algorithm with the ready set prioritized by
// (compose order, id). Nodes trapped in cycles are appended afterwards in
// the same priority order, which is the "cut" part of cycle handling.
func orderPlan(g *graph.Graph, plan *Plan) []string {
	orderOf := func(id string) int {
		if m := plan.Manifest(id); m != nil {
			return m.Compose.Order
		}
		return pack.DefaultOrder
	}
	less := func(a, b string) bool {
		oa, ob := orderOf(a), orderOf(b)
		if oa != ob {
			return oa < ob
		}
		return a < b
	}

	// Edges point pack -> dependency; a node is ready when all its
	// dependencies have been emitted.
	pending := map[string]int{}
	for _, id := range g.Nodes() {
		pending[id] = len(g.Successors(id))
	}

	var ready []string
	for id, n := range pending {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	var order []string
	emitted := map[string]bool{}
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		emitted[id] = true
		for _, dependent := range g.Predecessors(id) {
			pending[dependent]--
			if pending[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	// Cycle members never reach zero pending; append them deterministically.
	var trapped []string
	for _, id := range g.Nodes() {
		if !emitted[id] {
			trapped = append(trapped, id)
		}
	}
	sort.Slice(trapped, func(i, j int) bool { return less(trapped[i], trapped[j]) })
	return append(order, trapped...)
}

// sortPacks aligns Packs with Order.
func (p *Plan) sortPacks() {
	pos := map[string]int{}
	for i, id := range p.Order {
		pos[id] = i
	}
	sort.SliceStable(p.Packs, func(i, j int) bool {
		return pos[p.Packs[i].Manifest.ID] < pos[p.Packs[j].Manifest.ID]
	})
}
