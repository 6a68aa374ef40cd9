package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-market/internal/models"
)

func openIndex(t *testing.T) *TradeIndex {
	t.Helper()
	idx, err := OpenTradeIndex(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSearchMatchesTitleAndDescription(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(models.Trade{ID: 1, OwnerID: 5, Title: "Red bicycle", Description: "Barely used"}))
	require.NoError(t, idx.Index(models.Trade{ID: 2, OwnerID: 5, Title: "Guitar", Description: "Comes with a bicycle bell"}))
	require.NoError(t, idx.Index(models.Trade{ID: 3, OwnerID: 9, Title: "Lamp", Description: "Warm light"}))

	ids, err := idx.Search(ctx, "bicycle", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids)
	assert.Equal(t, int64(1), ids[0], "title matches rank first")

	ids, err = idx.Search(ctx, "submarine", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIndexReplacesAndRemoveDrops(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(models.Trade{ID: 7, Title: "Old camera"}))
	require.NoError(t, idx.Index(models.Trade{ID: 7, Title: "Vintage typewriter"}))

	ids, err := idx.Search(ctx, "camera", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = idx.Search(ctx, "typewriter", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ids)

	require.NoError(t, idx.Remove(7))
	ids, err = idx.Search(ctx, "typewriter", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
