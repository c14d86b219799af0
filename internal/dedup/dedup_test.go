package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byteowlz/hstry/internal/storage/sqlite"
	"github.com/byteowlz/hstry/internal/types"
)

func sameContentConv(sourceID, externalID string, createdAt int64) *types.Conversation {
	return &types.Conversation{
		ExternalID: externalID,
		SourceID:   sourceID,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "hello there"},
			{Role: types.RoleAssistant, Content: "hi!"},
		},
	}
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err, "open store")
	t.Cleanup(func() { _ = store.Close() })
	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, store.CreateSource(ctx, &types.Source{ID: id, Adapter: "fixture", Path: "/x", Enabled: true}), "create source %s", id)
	}
	return store
}

// Two sources emit the same content under different external ids;
// after dedup exactly one canonical conversation remains.
func TestRunAllCollapsesCrossSourceDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	r1, err := store.UpsertConversation(ctx, sameContentConv("s1", "a", 100))
	require.NoError(t, err, "upsert s1")
	r2, err := store.UpsertConversation(ctx, sameContentConv("s2", "b", 200))
	require.NoError(t, err, "upsert s2")

	eng := New(store, []string{"s1", "s2"})
	res, err := eng.RunAll(ctx)
	require.NoError(t, err, "RunAll")
	assert.Equal(t, 1, res.GroupsMerged)
	assert.Equal(t, 1, res.AliasesCreated)

	canonical, err := store.CanonicalID(ctx, r2.ID)
	require.NoError(t, err, "canonical id")
	assert.Equal(t, r1.ID, canonical, "earliest-created conversation should be canonical")
}

// Running dedup twice yields identical canonical choices and no new
// aliases the second time.
func TestRunAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.UpsertConversation(ctx, sameContentConv("s1", "a", 100))
	require.NoError(t, err, "upsert s1")
	_, err = store.UpsertConversation(ctx, sameContentConv("s2", "b", 200))
	require.NoError(t, err, "upsert s2")

	eng := New(store, []string{"s1", "s2"})
	first, err := eng.RunAll(ctx)
	require.NoError(t, err, "first RunAll")
	second, err := eng.RunAll(ctx)
	require.NoError(t, err, "second RunAll")
	assert.Equal(t, 0, second.GroupsMerged, "idempotent second pass should merge nothing new (first was %+v)", first)
	assert.Equal(t, 0, second.AliasesCreated, "idempotent second pass should create no new aliases (first was %+v)", first)
}
