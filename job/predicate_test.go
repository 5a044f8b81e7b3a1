package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func commitSignal(branch, message string, paths ...string) Signal {
	return Signal{
		Kind:         SignalCommit,
		Commit:       "abc123",
		Branch:       branch,
		Message:      message,
		ChangedPaths: paths,
	}
}

func TestPredicate_NilMatchesEverything(t *testing.T) {
	var p *Predicate
	assert.True(t, p.Matches(commitSignal("main", "anything")))
}

func TestPredicate_Leaves(t *testing.T) {
	sig := commitSignal("main", "release: v2 shipped", "src/api/users.js", "docs/readme.md")

	assert.True(t, (&Predicate{Message: "^release:"}).Matches(sig))
	assert.False(t, (&Predicate{Message: "^fix:"}).Matches(sig))

	assert.True(t, (&Predicate{PathChanged: "src/**"}).Matches(sig))
	assert.True(t, (&Predicate{PathChanged: "**/*.md"}).Matches(sig))
	assert.False(t, (&Predicate{PathChanged: "test/**"}).Matches(sig))

	assert.True(t, (&Predicate{Branch: "main"}).Matches(sig))
	assert.False(t, (&Predicate{Branch: "develop"}).Matches(sig))
}

func TestPredicate_TagCreateRequiresTagSignal(t *testing.T) {
	p := &Predicate{TagCreate: `^v\d+\.\d+\.\d+$`}

	tag := Signal{Kind: SignalTagCreate, Tag: "v1.2.3"}
	assert.True(t, p.Matches(tag))

	assert.False(t, p.Matches(Signal{Kind: SignalTagCreate, Tag: "nightly"}))
	assert.False(t, p.Matches(commitSignal("main", "v1.2.3")), "commit signals never match tagCreate")
}

func TestPredicate_Composition(t *testing.T) {
	sig := commitSignal("main", "feat: new endpoint", "src/api/users.js")

	all := &Predicate{All: []*Predicate{
		{Branch: "main"},
		{PathChanged: "src/**"},
	}}
	assert.True(t, all.Matches(sig))

	all.All = append(all.All, &Predicate{Message: "^release:"})
	assert.False(t, all.Matches(sig))

	anyOf := &Predicate{Any: []*Predicate{
		{Message: "^release:"},
		{PathChanged: "src/**"},
	}}
	assert.True(t, anyOf.Matches(sig))

	not := &Predicate{Not: &Predicate{Branch: "main"}}
	assert.False(t, not.Matches(sig))
	assert.True(t, not.Matches(commitSignal("develop", "x")))
}

func TestPredicate_NestedComposition(t *testing.T) {
	// Fire on main for source changes, unless the commit opts out.
	p := &Predicate{All: []*Predicate{
		{Branch: "main"},
		{Any: []*Predicate{
			{PathChanged: "src/**"},
			{PathChanged: "lib/**"},
		}},
		{Not: &Predicate{Message: `\[skip-jobs\]`}},
	}}

	assert.True(t, p.Matches(commitSignal("main", "feat", "lib/util.js")))
	assert.False(t, p.Matches(commitSignal("main", "feat [skip-jobs]", "lib/util.js")))
	assert.False(t, p.Matches(commitSignal("main", "feat", "docs/x.md")))
	assert.False(t, p.Matches(commitSignal("develop", "feat", "src/a.js")))
}

func TestPredicate_Validate(t *testing.T) {
	assert.NoError(t, (&Predicate{Message: "^ok"}).Validate())
	assert.Error(t, (&Predicate{Message: "("}).Validate())
	assert.Error(t, (&Predicate{TagCreate: "["}).Validate())
	assert.Error(t, (&Predicate{All: []*Predicate{{Message: "("}}}).Validate())

	var nilPred *Predicate
	assert.NoError(t, nilPred.Validate())
}

func TestPredicate_YAMLRoundTrip(t *testing.T) {
	doc := `
all:
  - branch: main
  - any:
      - message: "^release:"
      - pathChanged: "src/**"
`
	var p Predicate
	require.NoError(t, yaml.Unmarshal([]byte(doc), &p))
	require.NoError(t, p.Validate())

	assert.True(t, p.Matches(commitSignal("main", "release: v2")))
	assert.True(t, p.Matches(commitSignal("main", "feat", "src/x.js")))
	assert.False(t, p.Matches(commitSignal("develop", "release: v2")))
}
