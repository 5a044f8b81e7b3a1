package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/pack"
	"github.com/gitvan/gitvan/pack/source"
)

// mapLoader serves manifests from memory and counts loads per id.
type mapLoader struct {
	packs map[string]*pack.Manifest
	loads map[string]int
}

func (l *mapLoader) Resolve(_ context.Context, id string) (*source.Resolved, error) {
	if l.loads == nil {
		l.loads = map[string]int{}
	}
	l.loads[id]++
	m, ok := l.packs[id]
	if !ok {
		return nil, &source.PackNotFound{ID: id}
	}
	return &source.Resolved{Kind: source.KindLocal, Dir: "/packs/" + id, Manifest: m}, nil
}

func mk(id string, order int, dependsOn ...string) *pack.Manifest {
	m := &pack.Manifest{
		ID:      id,
		Version: "1.0.0",
		Compose: pack.Compose{Order: order, DependsOn: dependsOn},
	}
	m.Normalize()
	return m
}

func newResolver(t *testing.T, loader Loader) *Resolver {
	t.Helper()
	return New(conf.TestRuntime(t.TempDir(), nil), loader)
}

func TestResolve_OrdersDependenciesFirst(t *testing.T) {
	loader := &mapLoader{packs: map[string]*pack.Manifest{
		"core/base":         mk("core/base", 1),
		"core/utils":        mk("core/utils", 2, "core/base"),
		"framework/express": mk("framework/express", 10, "core/base"),
		"database/postgres": mk("database/postgres", 20, "core/utils"),
		"auth/jwt":          mk("auth/jwt", 30, "core/base"),
		"auth/oauth":        mk("auth/oauth", 50, "auth/jwt"),
		"features/api":      mk("features/api", 40, "framework/express", "database/postgres", "auth/jwt"),
		"features/admin":    mk("features/admin", 60, "features/api", "auth/oauth"),
	}}

	plan, err := newResolver(t, loader).Resolve(context.Background(), []string{"features/admin"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"core/base",
		"core/utils",
		"framework/express",
		"database/postgres",
		"auth/jwt",
		"features/api",
		"auth/oauth",
		"features/admin",
	}, plan.Order)
	assert.Empty(t, plan.Cycles)

	ids := make([]string, len(plan.Packs))
	for i, r := range plan.Packs {
		ids[i] = r.Manifest.ID
	}
	assert.Equal(t, plan.Order, ids, "packs sorted like the order")
}

func TestResolve_DiamondLoadsOnce(t *testing.T) {
	loader := &mapLoader{packs: map[string]*pack.Manifest{
		"base":  mk("base", 1),
		"left":  mk("left", 10, "base"),
		"right": mk("right", 20, "base"),
		"top":   mk("top", 30, "left", "right"),
	}}

	plan, err := newResolver(t, loader).Resolve(context.Background(), []string{"top"}, Options{})
	require.NoError(t, err)
	assert.Len(t, plan.Packs, 4)
	assert.Equal(t, 1, loader.loads["base"], "diamond base fetched once")
}

func TestResolve_CycleIsCutAndReported(t *testing.T) {
	loader := &mapLoader{packs: map[string]*pack.Manifest{
		"a": mk("a", 1, "b"),
		"b": mk("b", 2, "a"),
		"c": mk("c", 3),
	}}

	plan, err := newResolver(t, loader).Resolve(context.Background(), []string{"a", "c"}, Options{})
	require.NoError(t, err)
	require.Len(t, plan.Cycles, 1)
	// All packs still appear in the order, cycle members appended
	// deterministically.
	assert.ElementsMatch(t, []string{"a", "b", "c"}, plan.Order)
	assert.Equal(t, []string{"c", "a", "b"}, plan.Order)
}

func TestResolve_MissingDependency(t *testing.T) {
	loader := &mapLoader{packs: map[string]*pack.Manifest{
		"app": mk("app", 1, "ghost"),
	}}

	_, err := newResolver(t, loader).Resolve(context.Background(), []string{"app"}, Options{})
	var df *DependencyFailed
	require.ErrorAs(t, err, &df)
	assert.Equal(t, "app", df.Parent)
	assert.Equal(t, "ghost", df.Dep)

	var nf *source.PackNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestResolve_MissingRoot(t *testing.T) {
	loader := &mapLoader{packs: map[string]*pack.Manifest{}}

	_, err := newResolver(t, loader).Resolve(context.Background(), []string{"ghost"}, Options{})
	var nf *source.PackNotFound
	require.ErrorAs(t, err, &nf)
	var df *DependencyFailed
	assert.False(t, errors.As(err, &df), "root failures are not dependency failures")
}

func TestConflicts_DeclaredConflictsWith(t *testing.T) {
	eslint := mk("linter/eslint", 10)
	eslint.Compose.ConflictsWith = []string{"linter/biome"}
	biome := mk("linter/biome", 20)

	loader := &mapLoader{packs: map[string]*pack.Manifest{
		"linter/eslint": eslint,
		"linter/biome":  biome,
	}}

	plan, err := newResolver(t, loader).Resolve(context.Background(), []string{"linter/eslint", "linter/biome"}, Options{})
	var cs *ConflictSet
	require.ErrorAs(t, err, &cs)
	require.Len(t, cs.Conflicts, 1)
	assert.Contains(t, cs.Conflicts[0].Reason, "conflictsWith")
	require.NotNil(t, plan, "plan returned alongside conflicts for reporting")
	assert.Equal(t, cs.Conflicts, plan.Conflicts, "plan carries the same conflicts")
}

func TestConflicts_CapabilityOverlap(t *testing.T) {
	a := mk("fmt/prettier", 10)
	a.Capabilities = []string{"formatting"}
	b := mk("fmt/biome", 20)
	b.Capabilities = []string{"formatting", "linting"}

	loader := &mapLoader{packs: map[string]*pack.Manifest{
		"fmt/prettier": a, "fmt/biome": b,
	}}

	_, err := newResolver(t, loader).Resolve(context.Background(), []string{"fmt/prettier", "fmt/biome"}, Options{})
	var cs *ConflictSet
	require.ErrorAs(t, err, &cs)
	assert.Contains(t, cs.Conflicts[0].Reason, "capability overlap: formatting")

	// allowOverlap on either side suppresses the conflict.
	b.Compose.AllowOverlap = true
	_, err = newResolver(t, loader).Resolve(context.Background(), []string{"fmt/prettier", "fmt/biome"}, Options{})
	assert.NoError(t, err)

	// So does the plan-wide option.
	b.Compose.AllowOverlap = false
	_, err = newResolver(t, loader).Resolve(context.Background(), []string{"fmt/prettier", "fmt/biome"}, Options{AllowOverlap: true})
	assert.NoError(t, err)
}

func TestConflicts_IncompatibleVersionRange(t *testing.T) {
	a := mk("framework/next", 10)
	a.Compose.IncompatibleWith = []pack.Incompatibility{
		{Pack: "framework/react", VersionRange: "< 2.0.0"},
	}
	react := mk("framework/react", 20)
	react.Version = "1.5.0"

	loader := &mapLoader{packs: map[string]*pack.Manifest{
		"framework/next": a, "framework/react": react,
	}}

	_, err := newResolver(t, loader).Resolve(context.Background(), []string{"framework/next", "framework/react"}, Options{})
	var cs *ConflictSet
	require.ErrorAs(t, err, &cs)
	assert.Contains(t, cs.Conflicts[0].Reason, "incompatible with")

	// A version outside the range is fine.
	react.Version = "2.1.0"
	_, err = newResolver(t, loader).Resolve(context.Background(), []string{"framework/next", "framework/react"}, Options{})
	assert.NoError(t, err)
}

func TestConflicts_SemverDependencyRange(t *testing.T) {
	app := mk("app", 10)
	app.Compose.Dependencies = map[string]string{"lib": "^2.0.0"}
	lib := mk("lib", 1)
	lib.Version = "1.2.0"

	loader := &mapLoader{packs: map[string]*pack.Manifest{"app": app, "lib": lib}}

	_, err := newResolver(t, loader).Resolve(context.Background(), []string{"app"}, Options{})
	var cs *ConflictSet
	require.ErrorAs(t, err, &cs)
	assert.Contains(t, cs.Conflicts[0].Reason, "requires lib ^2.0.0")

	lib.Version = "2.3.1"
	plan, err := newResolver(t, loader).Resolve(context.Background(), []string{"app"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "app"}, plan.Order)
}

func TestConflicts_IgnoreKeepsPlanAndReports(t *testing.T) {
	a := mk("framework/express", 10)
	a.Compose.ConflictsWith = []string{"framework/fastify"}
	b := mk("framework/fastify", 20)

	loader := &mapLoader{packs: map[string]*pack.Manifest{
		"framework/express": a, "framework/fastify": b,
	}}

	ids := []string{"framework/express", "framework/fastify"}
	plan, err := newResolver(t, loader).Resolve(context.Background(), ids, Options{IgnoreConflicts: true})
	require.NoError(t, err)
	assert.Equal(t, ids, plan.Order, "both packs stay in the plan")

	// Ignoring conflicts suppresses the error, not the report.
	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, "framework/express", plan.Conflicts[0].A)
	assert.Equal(t, "framework/fastify", plan.Conflicts[0].B)
	assert.Contains(t, plan.Conflicts[0].Reason, "conflictsWith")
}
