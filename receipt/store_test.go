package receipt_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gvtest "github.com/gitvan/gitvan/internal/testing"
	"github.com/gitvan/gitvan/logger"
	"github.com/gitvan/gitvan/receipt"
)

func newStore(t *testing.T) (*receipt.Store, string) {
	t.Helper()
	_, runner, ec := gvtest.CreateTestRepo(t)
	head, err := runner.RevParse(context.Background(), ec, "HEAD")
	require.NoError(t, err)
	return receipt.NewStore(runner, ec, logger.Logger), head
}

func mkReceipt(id string, status receipt.Status, fingerprint, commit string) *receipt.Receipt {
	return &receipt.Receipt{
		Role:        receipt.RoleReceipt,
		ID:          id,
		Status:      status,
		Action:      receipt.ActionJob,
		Fingerprint: fingerprint,
		Commit:      commit,
		Timestamp:   "2026-08-24T00:00:00Z",
	}
}

func TestWriteThenReadAll(t *testing.T) {
	store, head := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, head, mkReceipt("docs/changelog", receipt.StatusOK, "", head)))
	require.NoError(t, store.Write(ctx, head, mkReceipt("ci/lint", receipt.StatusError, "", head)))

	receipts, err := store.ReadAll(ctx, head)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, "docs/changelog", receipts[0].ID)
	assert.Equal(t, receipt.StatusOK, receipts[0].Status)
	assert.Equal(t, "ci/lint", receipts[1].ID)
}

func TestHas_IdempotencyKey(t *testing.T) {
	store, head := newStore(t)
	ctx := context.Background()

	ok, err := store.Has(ctx, head, "docs/changelog")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, head, mkReceipt("docs/changelog", receipt.StatusOK, "", head)))

	ok, err = store.Has(ctx, head, "docs/changelog")
	require.NoError(t, err)
	assert.True(t, ok)

	// ERROR receipts do not satisfy the idempotency key.
	require.NoError(t, store.Write(ctx, head, mkReceipt("ci/lint", receipt.StatusError, "", head)))
	ok, err = store.Has(ctx, head, "ci/lint")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasFingerprint(t *testing.T) {
	store, head := newStore(t)
	ctx := context.Background()

	fp := strings.Repeat("ab", 32)
	ok, err := store.HasFingerprint(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, head, mkReceipt("builtin/nodejs-basic", receipt.StatusOK, fp, head)))

	ok, err = store.HasFingerprint(ctx, fp)
	require.NoError(t, err)
	assert.True(t, ok)

	// SKIP receipts record a fingerprint but are not side-effectful applies.
	other := strings.Repeat("cd", 32)
	require.NoError(t, store.Write(ctx, head, mkReceipt("x", receipt.StatusSkip, other, head)))
	ok, err = store.HasFingerprint(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTombstoneHidesReceipts(t *testing.T) {
	store, head := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, head, mkReceipt("a", receipt.StatusOK, "", head)))
	require.NoError(t, store.Tombstone(ctx, head, "a"))

	receipts, err := store.ReadAll(ctx, head)
	require.NoError(t, err)
	assert.Empty(t, receipts)
}

func TestList_PrefixFilter(t *testing.T) {
	store, head := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, head, mkReceipt("docs/changelog", receipt.StatusOK, "", head)))
	require.NoError(t, store.Write(ctx, head, mkReceipt("ci/lint", receipt.StatusOK, "", head)))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	docs, err := store.List(ctx, "docs/")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "docs/changelog", docs[0].ID)
}

func TestReceiptRoundTrip(t *testing.T) {
	r := mkReceipt("docs/changelog", receipt.StatusOK, strings.Repeat("0f", 32), strings.Repeat("a", 40))
	r.Inputs = map[string]any{"name": "demo"}

	line, err := r.Marshal()
	require.NoError(t, err)
	assert.False(t, strings.Contains(line, "\n"))
	assert.Contains(t, line, `"role":"receipt"`)
	assert.Contains(t, line, `"status":"OK"`)
}
