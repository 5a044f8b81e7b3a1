package composer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/git"
	gvtesting "github.com/gitvan/gitvan/internal/testing"
	"github.com/gitvan/gitvan/pack"
	"github.com/gitvan/gitvan/pack/resolver"
	"github.com/gitvan/gitvan/pack/source"
	"github.com/gitvan/gitvan/receipt"
)

// diskLoader serves packs from directories created by the test.
type diskLoader struct {
	dirs map[string]string
}

func (l *diskLoader) Resolve(_ context.Context, id string) (*source.Resolved, error) {
	dir, ok := l.dirs[id]
	if !ok {
		return nil, &source.PackNotFound{ID: id}
	}
	m, err := pack.Load(dir)
	if err != nil {
		return nil, err
	}
	return &source.Resolved{Kind: source.KindLocal, Dir: dir, Manifest: m}, nil
}

type harness struct {
	composer *Composer
	loader   *diskLoader
	target   string
	runner   *git.Runner
	ec       git.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	target, runner, ec := gvtesting.CreateTestRepo(t)
	rt := conf.TestRuntime(t.TempDir(), nil)
	loader := &diskLoader{dirs: map[string]string{}}
	return &harness{
		composer: New(rt, loader, runner),
		loader:   loader,
		target:   target,
		runner:   runner,
		ec:       ec,
	}
}

// addPack writes a pack dir with a manifest plus one template that
// renders a marker file named after the pack.
func (h *harness) addPack(t *testing.T, id string, order int, extraJSON string, deps ...string) {
	t.Helper()
	dir := t.TempDir()
	depsJSON, _ := json.Marshal(deps)
	marker := filepath.Base(id)
	manifest := `{
  "id": "` + id + `",
  "version": "1.0.0",
  "compose": {"order": ` + itoa(order) + `, "dependsOn": ` + string(depsJSON) + extraJSON + `},
  "provides": {"templates": [{"src": "m.t", "target": "` + marker + `.txt"}]}
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pack.json"), []byte(manifest), 0o644))
	gvtesting.WriteFile(t, dir, "templates/m.t", id+"\n")
	h.loader.dirs[id] = dir
}

func itoa(n int) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}

func TestCompose_AppliesPlanInOrder(t *testing.T) {
	h := newHarness(t)
	h.addPack(t, "core/base", 1, "")
	h.addPack(t, "features/api", 40, "", "core/base")

	res, err := h.composer.Compose(context.Background(), []string{"features/api"}, h.target, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, "core/base", res.Outcomes[0].ID)
	assert.Equal(t, "features/api", res.Outcomes[1].ID)

	for _, marker := range []string{"base.txt", "api.txt"} {
		_, err := os.Stat(filepath.Join(h.target, marker))
		assert.NoError(t, err, marker)
	}
}

func TestCompose_EmptyInput(t *testing.T) {
	h := newHarness(t)
	res, err := h.composer.Compose(context.Background(), nil, h.target, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Outcomes)
}

func TestCompose_DuplicateIdsDeduplicated(t *testing.T) {
	h := newHarness(t)
	h.addPack(t, "solo", 1, "")

	res, err := h.composer.Compose(context.Background(), []string{"solo", "solo"}, h.target, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 1)
}

func TestCompose_ConflictStopsBeforeApply(t *testing.T) {
	h := newHarness(t)
	h.addPack(t, "a", 1, `, "conflictsWith": ["b"]`)
	h.addPack(t, "b", 2, "")

	res, err := h.composer.Compose(context.Background(), []string{"a", "b"}, h.target, Options{})
	require.Error(t, err)
	var cs *resolver.ConflictSet
	require.ErrorAs(t, err, &cs)
	assert.Equal(t, StatusConflict, res.Status)

	_, statErr := os.Stat(filepath.Join(h.target, "a.txt"))
	assert.True(t, os.IsNotExist(statErr), "conflict must prevent any write")
}

func TestCompose_IgnoreConflictsApplies(t *testing.T) {
	h := newHarness(t)
	h.addPack(t, "a", 1, `, "conflictsWith": ["b"]`)
	h.addPack(t, "b", 2, "")

	res, err := h.composer.Compose(context.Background(), []string{"a", "b"}, h.target, Options{IgnoreConflicts: true})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Len(t, res.Outcomes, 2)
}

func TestPreview_ListsConflictingPacksAndConflicts(t *testing.T) {
	h := newHarness(t)
	h.addPack(t, "framework/express", 1, `, "conflictsWith": ["framework/fastify"]`)
	h.addPack(t, "framework/fastify", 2, "")

	ids := []string{"framework/express", "framework/fastify"}
	plan, err := h.composer.Preview(context.Background(), ids, Options{})
	require.NoError(t, err)

	// Preview never fails on conflicts, but the plan must still mark them.
	assert.Equal(t, ids, plan.Order)
	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, "framework/express", plan.Conflicts[0].A)
	assert.Equal(t, "framework/fastify", plan.Conflicts[0].B)
}

func TestCompose_ContinueOnError(t *testing.T) {
	h := newHarness(t)
	h.addPack(t, "broken", 1, "")
	// Break the pack by removing its template source.
	require.NoError(t, os.Remove(filepath.Join(h.loader.dirs["broken"], "templates", "m.t")))
	h.addPack(t, "fine", 2, "")

	// Default: stop at the first failure.
	res, err := h.composer.Compose(context.Background(), []string{"broken", "fine"}, h.target, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Len(t, res.Outcomes, 1)

	// With ContinueOnError the second pack still applies.
	res, err = h.composer.Compose(context.Background(), []string{"broken", "fine"}, h.target, Options{ContinueOnError: true})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Len(t, res.Outcomes, 2)
	_, statErr := os.Stat(filepath.Join(h.target, "fine.txt"))
	assert.NoError(t, statErr)
}

func TestCompose_DryRunTouchesNothing(t *testing.T) {
	h := newHarness(t)
	h.addPack(t, "solo", 1, "")

	res, err := h.composer.Compose(context.Background(), []string{"solo"}, h.target, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Outcomes)
	_, statErr := os.Stat(filepath.Join(h.target, "solo.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLayer_OrdersByExplicitOrder(t *testing.T) {
	h := newHarness(t)
	// Both write the same file; the later (higher order) pack wins.
	overlayManifest := func(id string, order int) {
		dir := t.TempDir()
		manifest := `{
  "id": "` + id + `",
  "version": "1.0.0",
  "compose": {"order": ` + itoa(order) + `},
  "provides": {"templates": [{"src": "m.t", "target": "shared.txt"}]}
}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pack.json"), []byte(manifest), 0o644))
		gvtesting.WriteFile(t, dir, "templates/m.t", id+"\n")
		h.loader.dirs[id] = dir
	}
	overlayManifest("overlay/high", 50)
	overlayManifest("overlay/low", 10)

	res, err := h.composer.Layer(context.Background(), []string{"overlay/high", "overlay/low"}, h.target, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)

	content, err := os.ReadFile(filepath.Join(h.target, "shared.txt"))
	require.NoError(t, err)
	assert.Equal(t, "overlay/high\n", string(content), "later pack overwrites")
}

func TestPreviewAndValidate_NeverTouchTarget(t *testing.T) {
	h := newHarness(t)
	h.addPack(t, "solo", 1, "")

	plan, err := h.composer.Preview(context.Background(), []string{"solo"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, plan.Order)

	_, err = h.composer.Validate(context.Background(), []string{"solo"}, Options{})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(h.target, "solo.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCompose_WritesReceipts(t *testing.T) {
	h := newHarness(t)
	h.addPack(t, "solo", 1, "")

	_, err := h.composer.Compose(context.Background(), []string{"solo"}, h.target, Options{})
	require.NoError(t, err)

	store := receipt.NewStore(h.runner, h.ec, conf.TestRuntime(t.TempDir(), nil).Log)
	head, err := h.runner.RevParse(context.Background(), h.ec, "HEAD")
	require.NoError(t, err)
	receipts, err := store.ReadAll(context.Background(), head)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "solo", receipts[0].ID)
	assert.Equal(t, receipt.StatusOK, receipts[0].Status)
}
