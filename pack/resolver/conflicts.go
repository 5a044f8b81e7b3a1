package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/gitvan/gitvan/pack"
)

// detectConflicts runs every pairwise check over the plan: declared
// conflictsWith, capability overlap, version-range incompatibilities, and
// unsatisfied semver dependency constraints. Results are deterministic.
func detectConflicts(plan *Plan, opts Options) []*Conflict {
	var out []*Conflict

	manifests := make([]*pack.Manifest, len(plan.Packs))
	for i, r := range plan.Packs {
		manifests[i] = r.Manifest
	}

	for i := 0; i < len(manifests); i++ {
		for j := i + 1; j < len(manifests); j++ {
			out = append(out, checkPair(manifests[i], manifests[j], opts)...)
		}
		out = append(out, checkDependencies(manifests[i], plan)...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		if out[i].B != out[j].B {
			return out[i].B < out[j].B
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

func checkPair(a, b *pack.Manifest, opts Options) []*Conflict {
	var out []*Conflict

	if contains(a.Compose.ConflictsWith, b.ID) {
		out = append(out, &Conflict{A: a.ID, B: b.ID, Reason: fmt.Sprintf("%s declares conflictsWith %s", a.ID, b.ID)})
	}
	if contains(b.Compose.ConflictsWith, a.ID) {
		out = append(out, &Conflict{A: a.ID, B: b.ID, Reason: fmt.Sprintf("%s declares conflictsWith %s", b.ID, a.ID)})
	}

	if !opts.AllowOverlap && !a.Compose.AllowOverlap && !b.Compose.AllowOverlap {
		if shared := overlap(a.Capabilities, b.Capabilities); len(shared) > 0 {
			out = append(out, &Conflict{
				A: a.ID, B: b.ID,
				Reason: "capability overlap: " + strings.Join(shared, ", "),
			})
		}
	}

	out = append(out, checkIncompatibility(a, b)...)
	out = append(out, checkIncompatibility(b, a)...)
	return out
}

// checkIncompatibility tests a's incompatibleWith entries against b's
// resolved version. Unparseable ranges or versions fail open; the
// manifest validator already rejects malformed versions.
func checkIncompatibility(a, b *pack.Manifest) []*Conflict {
	var out []*Conflict
	for _, inc := range a.Compose.IncompatibleWith {
		if inc.Pack != b.ID {
			continue
		}
		rng, err := semver.NewConstraint(inc.VersionRange)
		if err != nil {
			continue
		}
		v, err := semver.NewVersion(b.Version)
		if err != nil {
			continue
		}
		if rng.Check(v) {
			out = append(out, &Conflict{
				A: a.ID, B: b.ID,
				Reason: fmt.Sprintf("%s is incompatible with %s %s (resolved %s)", a.ID, b.ID, inc.VersionRange, b.Version),
			})
		}
	}
	return out
}

// checkDependencies verifies m's semver dependency ranges against the
// versions the plan resolved.
func checkDependencies(m *pack.Manifest, plan *Plan) []*Conflict {
	deps := make([]string, 0, len(m.Compose.Dependencies))
	for dep := range m.Compose.Dependencies {
		deps = append(deps, dep)
	}
	sort.Strings(deps)

	var out []*Conflict
	for _, dep := range deps {
		rangeStr := m.Compose.Dependencies[dep]
		resolved := plan.Manifest(dep)
		if resolved == nil {
			continue // resolution already failed or cycle-cut
		}
		rng, err := semver.NewConstraint(rangeStr)
		if err != nil {
			out = append(out, &Conflict{A: m.ID, B: dep, Reason: fmt.Sprintf("invalid version range %q", rangeStr)})
			continue
		}
		v, err := semver.NewVersion(resolved.Version)
		if err != nil {
			continue
		}
		if !rng.Check(v) {
			vcu := &VersionConstraintUnsatisfied{Pack: m.ID, Dep: dep, Range: rangeStr, Got: resolved.Version}
			out = append(out, &Conflict{A: m.ID, B: dep, Reason: vcu.Error()})
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func overlap(a, b []string) []string {
	set := map[string]bool{}
	for _, v := range a {
		set[v] = true
	}
	var shared []string
	for _, v := range b {
		if set[v] {
			shared = append(shared, v)
		}
	}
	sort.Strings(shared)
	return shared
}
