package resolver

import (
	"fmt"
	"strings"
)

// DependencyFailed is returned when a transitive dependency cannot be
// resolved. The parent chain names who asked for it.
type DependencyFailed struct {
	Parent string
	Dep    string
	Err    error
}

func (e *DependencyFailed) Error() string {
	return fmt.Sprintf("resolving dependency %s of %s: %v", e.Dep, e.Parent, e.Err)
}

func (e *DependencyFailed) Unwrap() error { return e.Err }

// Conflict is a pairwise incompatibility between two resolved packs.
type Conflict struct {
	A      string
	B      string
	Reason string
}

func (e *Conflict) Error() string {
	return fmt.Sprintf("packs %s and %s conflict: %s", e.A, e.B, e.Reason)
}

// ConflictSet aggregates every pairwise conflict found in a plan.
type ConflictSet struct {
	Conflicts []*Conflict
}

func (e *ConflictSet) Error() string {
	msgs := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		msgs[i] = c.Error()
	}
	return fmt.Sprintf("%d conflict(s): %s", len(e.Conflicts), strings.Join(msgs, "; "))
}

// VersionConstraintUnsatisfied reports a dependency whose resolved version
// falls outside the declared range.
type VersionConstraintUnsatisfied struct {
	Pack  string
	Dep   string
	Range string
	Got   string
}

func (e *VersionConstraintUnsatisfied) Error() string {
	return fmt.Sprintf("%s requires %s %s, resolved %s", e.Pack, e.Dep, e.Range, e.Got)
}
