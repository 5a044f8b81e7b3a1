package job

import (
	"regexp"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gitvan/gitvan/errors"
)

// SignalKind classifies what the daemon observed.
type SignalKind string

const (
	SignalCronTick  SignalKind = "cronTick"
	SignalCommit    SignalKind = "commit"
	SignalMerge     SignalKind = "merge"
	SignalTagCreate SignalKind = "tagCreate"
	SignalManual    SignalKind = "manual"
)

// Signal is one observed repository event, the unit predicates evaluate
// against.
type Signal struct {
	Kind         SignalKind
	Commit       string
	Branch       string
	Message      string
	Tag          string
	ChangedPaths []string
}

// Predicate is a composable condition over signals. Exactly one of the
// composition fields or leaf fields should be set per node.
type Predicate struct {
	All []*Predicate `yaml:"all,omitempty" json:"all,omitempty"`
	Any []*Predicate `yaml:"any,omitempty" json:"any,omitempty"`
	Not *Predicate   `yaml:"not,omitempty" json:"not,omitempty"`

	TagCreate   string `yaml:"tagCreate,omitempty" json:"tagCreate,omitempty"`     // regex on the tag name
	Message     string `yaml:"message,omitempty" json:"message,omitempty"`         // regex on the commit message
	PathChanged string `yaml:"pathChanged,omitempty" json:"pathChanged,omitempty"` // doublestar glob on changed paths
	Branch      string `yaml:"branch,omitempty" json:"branch,omitempty"`           // exact branch name
}

// Validate compiles every regex and glob in the tree so malformed
// bindings fail at discovery, not at match time.
func (p *Predicate) Validate() error {
	if p == nil {
		return nil
	}
	for _, child := range p.All {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	for _, child := range p.Any {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	if err := p.Not.Validate(); err != nil {
		return err
	}
	if p.TagCreate != "" {
		if _, err := regexp.Compile(p.TagCreate); err != nil {
			return errors.Wrapf(err, "tagCreate pattern %q", p.TagCreate)
		}
	}
	if p.Message != "" {
		if _, err := regexp.Compile(p.Message); err != nil {
			return errors.Wrapf(err, "message pattern %q", p.Message)
		}
	}
	if p.PathChanged != "" {
		if !doublestar.ValidatePattern(p.PathChanged) {
			return errors.Newf("invalid path glob %q", p.PathChanged)
		}
	}
	return nil
}

// Matches evaluates the predicate tree against a signal. A nil predicate
// matches everything.
func (p *Predicate) Matches(sig Signal) bool {
	if p == nil {
		return true
	}
	for _, child := range p.All {
		if !child.Matches(sig) {
			return false
		}
	}
	if len(p.Any) > 0 && !anyMatches(p.Any, sig) {
		return false
	}
	if p.Not != nil && p.Not.Matches(sig) {
		return false
	}

	if p.TagCreate != "" {
		re, err := regexp.Compile(p.TagCreate)
		if err != nil || sig.Kind != SignalTagCreate || !re.MatchString(sig.Tag) {
			return false
		}
	}
	if p.Message != "" {
		re, err := regexp.Compile(p.Message)
		if err != nil || !re.MatchString(sig.Message) {
			return false
		}
	}
	if p.PathChanged != "" {
		if !anyPathMatches(p.PathChanged, sig.ChangedPaths) {
			return false
		}
	}
	if p.Branch != "" && sig.Branch != p.Branch {
		return false
	}
	return true
}

func anyMatches(children []*Predicate, sig Signal) bool {
	for _, child := range children {
		if child.Matches(sig) {
			return true
		}
	}
	return false
}

func anyPathMatches(glob string, paths []string) bool {
	for _, path := range paths {
		if ok, err := doublestar.Match(glob, path); err == nil && ok {
			return true
		}
	}
	return false
}
