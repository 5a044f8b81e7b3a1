package pack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveInputs_DefaultsAndRequired(t *testing.T) {
	defs := []Input{
		{Key: "name", Type: "string", Required: true},
		{Key: "license", Type: "string", Default: "MIT"},
		{Key: "private", Type: "boolean", Default: false},
	}

	resolved, err := ResolveInputs(defs, map[string]any{"name": "demo"})
	require.NoError(t, err)
	assert.Equal(t, "demo", resolved["name"])
	assert.Equal(t, "MIT", resolved["license"])
	assert.Equal(t, false, resolved["private"])

	_, err = ResolveInputs(defs, nil)
	var vf *InputValidationFailed
	require.ErrorAs(t, err, &vf)
	assert.Equal(t, "name", vf.Key)
}

func TestResolveInputs_UnknownKeyRejected(t *testing.T) {
	_, err := ResolveInputs(nil, map[string]any{"mystery": 1})
	var vf *InputValidationFailed
	require.ErrorAs(t, err, &vf)
}

func TestResolveInputs_PatternAndOptions(t *testing.T) {
	defs := []Input{
		{Key: "slug", Type: "string", Pattern: "^[a-z-]+$"},
		{Key: "flavor", Type: "select", Options: []string{"basic", "full"}},
		{Key: "features", Type: "multiselect", Options: []string{"ci", "docs"}},
	}

	_, err := ResolveInputs(defs, map[string]any{"slug": "Has Caps"})
	var vf *InputValidationFailed
	require.ErrorAs(t, err, &vf)

	_, err = ResolveInputs(defs, map[string]any{"flavor": "deluxe"})
	require.ErrorAs(t, err, &vf)

	resolved, err := ResolveInputs(defs, map[string]any{
		"slug":     "my-pack",
		"flavor":   "basic",
		"features": []any{"ci"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ci"}, resolved["features"])
}

func TestResolveInputs_PathTraversalRejected(t *testing.T) {
	defs := []Input{{Key: "dir", Type: "string"}}

	for _, bad := range []string{"../etc", "a/../../b", "/absolute/path"} {
		_, err := ResolveInputs(defs, map[string]any{"dir": bad})
		var pt *PathTraversal
		require.ErrorAs(t, err, &pt, "value: %s", bad)
	}
}

func TestResolveInputs_TemplateInjectionRejected(t *testing.T) {
	defs := []Input{{Key: "title", Type: "string"}}

	for _, bad := range []string{"{{ evil }}", "${PATH}", "x${injected}y"} {
		_, err := ResolveInputs(defs, map[string]any{"title": bad})
		var ti *TemplateInjection
		require.ErrorAs(t, err, &ti, "value: %s", bad)
	}
}
