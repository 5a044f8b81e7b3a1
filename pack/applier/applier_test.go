package applier

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvan/gitvan/conf"
	gvtesting "github.com/gitvan/gitvan/internal/testing"
	"github.com/gitvan/gitvan/pack"
	"github.com/gitvan/gitvan/receipt"
	"github.com/gitvan/gitvan/tmpl"
)

// fixture builds an applier against a real git repo plus a pack directory.
type fixture struct {
	applier *Applier
	target  string
	packDir string
}

func newFixture(t *testing.T, manifest string) *fixture {
	t.Helper()

	target, runner, ec := gvtesting.CreateTestRepo(t)
	rt := conf.TestRuntime(t.TempDir(), nil)
	store := receipt.NewStore(runner, ec, rt.Log)
	renderer := tmpl.New(rt)

	packDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(packDir, "pack.json"), []byte(manifest), 0o644))

	return &fixture{
		applier: New(rt, renderer, store, runner, target),
		target:  target,
		packDir: packDir,
	}
}

func (f *fixture) writePackFile(t *testing.T, relpath, content string) {
	t.Helper()
	gvtesting.WriteFile(t, f.packDir, relpath, content)
}

const fullManifest = `{
  "id": "starter/api",
  "version": "1.0.0",
  "inputs": [
    {"key": "projectName", "type": "string", "required": true},
    {"key": "strict", "type": "boolean", "default": true}
  ],
  "provides": {
    "templates": [
      {"src": "index.js.t", "target": "src/index.js"},
      {"src": "readme.t", "target": "README.generated.md", "mode": "skip"}
    ],
    "files": [
      {"src": "gitignore", "target": ".gitignore"}
    ],
    "jobs": [
      {"src": "cleanup.yaml", "id": "cleanup"}
    ],
    "merges": [
      {"target": "package.json",
       "dependencies": {"express": "^4.18.0"},
       "scripts": {"start": "node src/index.js"}}
    ]
  }
}`

func setupFullPack(t *testing.T) *fixture {
	f := newFixture(t, fullManifest)
	f.writePackFile(t, "templates/index.js.t", "---\nbanner: generated\n---\n// {{ .frontMatter.banner }} for {{ .projectName }}\n")
	f.writePackFile(t, "templates/readme.t", "# {{ .projectName }}\n")
	f.writePackFile(t, "assets/gitignore", "node_modules/\n")
	f.writePackFile(t, "jobs/cleanup.yaml", "name: cleanup\nrun: echo clean\n")
	return f
}

func TestApply_MaterializesAllItemKinds(t *testing.T) {
	f := setupFullPack(t)

	res, err := f.applier.Apply(context.Background(), f.packDir, map[string]any{"projectName": "demo"})
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusOK, res.Status)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Applied, 5)

	rendered, err := os.ReadFile(filepath.Join(f.target, "src", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "// generated for demo\n", string(rendered))

	ignore, err := os.ReadFile(filepath.Join(f.target, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "node_modules/\n", string(ignore))

	_, err = os.Stat(filepath.Join(f.target, "jobs", "cleanup.yaml"))
	assert.NoError(t, err)

	pkg, err := os.ReadFile(filepath.Join(f.target, "package.json"))
	require.NoError(t, err)
	var doc map[string]map[string]string
	require.NoError(t, json.Unmarshal(pkg, &doc))
	assert.Equal(t, "^4.18.0", doc["dependencies"]["express"])
	assert.Equal(t, "node src/index.js", doc["scripts"]["start"])
	assert.Equal(t, byte('\n'), pkg[len(pkg)-1], "trailing newline")
}

func TestApply_SecondApplySkips(t *testing.T) {
	f := setupFullPack(t)
	inputs := map[string]any{"projectName": "demo"}

	first, err := f.applier.Apply(context.Background(), f.packDir, inputs)
	require.NoError(t, err)
	require.Equal(t, receipt.StatusOK, first.Status)

	// Remove a generated file so a second run would visibly re-apply.
	require.NoError(t, os.Remove(filepath.Join(f.target, "src", "index.js")))

	second, err := f.applier.Apply(context.Background(), f.packDir, inputs)
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusSkip, second.Status)
	assert.Empty(t, second.Applied)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	_, err = os.Stat(filepath.Join(f.target, "src", "index.js"))
	assert.True(t, os.IsNotExist(err), "skip must not re-materialize")
}

func TestApply_ContentChangeReapplies(t *testing.T) {
	f := setupFullPack(t)
	inputs := map[string]any{"projectName": "demo"}

	first, err := f.applier.Apply(context.Background(), f.packDir, inputs)
	require.NoError(t, err)

	f.writePackFile(t, "templates/index.js.t", "// changed {{ .projectName }}\n")

	second, err := f.applier.Apply(context.Background(), f.packDir, inputs)
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusOK, second.Status)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
}

func TestApply_SkipModePreservesExisting(t *testing.T) {
	f := setupFullPack(t)
	gvtesting.WriteFile(t, f.target, "README.generated.md", "existing\n")

	res, err := f.applier.Apply(context.Background(), f.packDir, map[string]any{"projectName": "demo"})
	require.NoError(t, err)
	require.Equal(t, receipt.StatusOK, res.Status)

	content, err := os.ReadFile(filepath.Join(f.target, "README.generated.md"))
	require.NoError(t, err)
	assert.Equal(t, "existing\n", string(content))
}

func TestApply_MergeIsAddOnly(t *testing.T) {
	f := setupFullPack(t)
	gvtesting.WriteFile(t, f.target, "package.json",
		`{"dependencies": {"express": "^3.0.0"}, "name": "existing"}`)

	_, err := f.applier.Apply(context.Background(), f.packDir, map[string]any{"projectName": "demo"})
	require.NoError(t, err)

	pkg, err := os.ReadFile(filepath.Join(f.target, "package.json"))
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(pkg, &doc))

	var deps map[string]string
	require.NoError(t, json.Unmarshal(doc["dependencies"], &deps))
	assert.Equal(t, "^3.0.0", deps["express"], "existing entry wins")

	var name string
	require.NoError(t, json.Unmarshal(doc["name"], &name))
	assert.Equal(t, "existing", name, "untouched keys survive")
}

func TestApply_RequiredInputMissing(t *testing.T) {
	f := setupFullPack(t)

	_, err := f.applier.Apply(context.Background(), f.packDir, nil)
	var ivf *pack.InputValidationFailed
	require.ErrorAs(t, err, &ivf)
	assert.Equal(t, "projectName", ivf.Key)
}

func TestApply_TraversalTargetRejected(t *testing.T) {
	manifest := `{
  "id": "evil/pack",
  "version": "1.0.0",
  "provides": {
    "templates": [{"src": "x.t", "target": "../outside.txt"}]
  }
}`
	f := newFixture(t, manifest)
	f.writePackFile(t, "templates/x.t", "boom")

	res, err := f.applier.Apply(context.Background(), f.packDir, nil)
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusError, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "escapes")

	_, statErr := os.Stat(filepath.Join(filepath.Dir(f.target), "outside.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestApply_PartialOnItemFailure(t *testing.T) {
	manifest := `{
  "id": "partial/pack",
  "version": "1.0.0",
  "provides": {
    "templates": [
      {"src": "good.t", "target": "good.txt"},
      {"src": "missing.t", "target": "bad.txt"}
    ]
  }
}`
	f := newFixture(t, manifest)
	f.writePackFile(t, "templates/good.t", "ok\n")

	res, err := f.applier.Apply(context.Background(), f.packDir, nil)
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusPartial, res.Status)
	assert.Len(t, res.Applied, 1)
	assert.Len(t, res.Errors, 1)
}

func TestApply_ConstraintToolMissing(t *testing.T) {
	manifest := `{
  "id": "needs/tool",
  "version": "1.0.0",
  "requires": {"tools": ["definitely-not-a-real-tool-xyz"]}
}`
	f := newFixture(t, manifest)

	_, err := f.applier.Apply(context.Background(), f.packDir, nil)
	var cu *ConstraintUnsatisfied
	require.ErrorAs(t, err, &cu)
	assert.Contains(t, cu.Reason, "not on PATH")
}

func TestApply_LockBlocksConcurrentApply(t *testing.T) {
	f := setupFullPack(t)

	lock, err := acquireLock(f.target)
	require.NoError(t, err)
	defer lock.release()

	_, err = f.applier.Apply(context.Background(), f.packDir, map[string]any{"projectName": "demo"})
	var held *LockHeld
	require.ErrorAs(t, err, &held)
}

func TestSecurePath(t *testing.T) {
	base := t.TempDir()

	good, err := securePath(base, "sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "sub", "file.txt"), good)

	for _, rel := range []string{"../escape", "a/../../escape", "/abs", "", "."} {
		_, err := securePath(base, rel)
		assert.Error(t, err, rel)
	}
}
