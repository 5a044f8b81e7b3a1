package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesIdentity(t *testing.T) {
	base := New("disk cache corrupt")
	wrapped := Wrap(base, "loading pack")

	assert.True(t, Is(wrapped, base))
	assert.Contains(t, wrapped.Error(), "loading pack")
	assert.Contains(t, wrapped.Error(), "disk cache corrupt")
}

func TestHintsAndDetails(t *testing.T) {
	err := New("registry unreachable")
	err = WithHint(err, "check your network connection")
	err = WithDetail(err, "registry: https://registry.gitvan.dev")

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "check your network connection", hints[0])

	details := GetAllDetails(err)
	require.Len(t, details, 1)
	assert.Contains(t, details[0], "registry.gitvan.dev")
}
