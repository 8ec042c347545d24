package chunkstore

import (
	"context"
	"errors"
	"testing"

	"ragdocs/internal/models"
	"ragdocs/internal/util"

	"github.com/stretchr/testify/require"
)

func embedded(docID, text string, index int, page *int, vec ...float32) models.EmbeddedChunk {
	return models.EmbeddedChunk{
		Chunk:  models.DocumentChunk{Text: text, Source: docID + ".txt", DocumentID: docID, Page: page, Index: index},
		Vector: vec,
	}
}

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureSchema(context.Background(), 2, DistanceCosine))
	return s
}

func TestMemoryStoreSearchOrdersByScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch(ctx, []models.EmbeddedChunk{
		embedded("a", "far", 0, nil, 0, 1),
		embedded("a", "near", 1, nil, 1, 0),
		embedded("b", "middle", 0, nil, 1, 1),
	}))

	res, err := s.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "near", res[0].Text)
	require.Equal(t, "middle", res[1].Text)
	require.Equal(t, "far", res[2].Text)
	require.InDelta(t, 1.0, res[0].Score, 1e-6)
	require.NotNil(t, res[0].Index)
	require.Equal(t, 1, *res[0].Index)
}

func TestMemoryStoreThresholdAndTopK(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch(ctx, []models.EmbeddedChunk{
		embedded("a", "x", 0, nil, 1, 0),
		embedded("a", "y", 1, nil, 1, 0.1),
		embedded("a", "z", 2, nil, 0, 1),
	}))

	threshold := 0.7
	res, err := s.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 5, ScoreThreshold: &threshold})
	require.NoError(t, err)
	require.Len(t, res, 2)

	res, err = s.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "x", res[0].Text)
}

func TestMemoryStoreTiesPreferNewest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch(ctx, []models.EmbeddedChunk{embedded("a", "old", 0, nil, 1, 0)}))
	require.NoError(t, s.UpsertBatch(ctx, []models.EmbeddedChunk{embedded("b", "new", 0, nil, 1, 0)}))

	res, err := s.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 1})
	require.NoError(t, err)
	require.Equal(t, "new", res[0].Text)
}

func TestMemoryStoreRejectsWrongDimensionBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	err := s.UpsertBatch(ctx, []models.EmbeddedChunk{
		embedded("a", "ok", 0, nil, 1, 0),
		embedded("a", "bad", 1, nil, 1, 0, 0),
	})
	require.True(t, errors.Is(err, util.ErrStore))

	res, err := s.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestMemoryStoreEnsureSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.EnsureSchema(ctx, 2, DistanceCosine))
	require.ErrorIs(t, s.EnsureSchema(ctx, 3, DistanceCosine), util.ErrStore)
}

func TestMemoryStoreDeleteAndFind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch(ctx, []models.EmbeddedChunk{
		embedded("a", "p2-0", 0, models.IntPtr(2), 1, 0),
		embedded("a", "p1-1", 1, models.IntPtr(1), 1, 0),
		embedded("a", "p1-0", 0, models.IntPtr(1), 1, 0),
		embedded("b", "other", 0, nil, 0, 1),
	}))

	chunks, err := s.FindByDocumentID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, []string{"p1-0", "p1-1", "p2-0"}, []string{chunks[0].Text, chunks[1].Text, chunks[2].Text})

	require.NoError(t, s.DeleteByDocumentID(ctx, "a"))
	require.NoError(t, s.DeleteByDocumentID(ctx, "missing"))

	chunks, err = s.FindByDocumentID(ctx, "a")
	require.NoError(t, err)
	require.Empty(t, chunks)

	res, err := s.Search(ctx, []float32{0, 1}, SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "b", res[0].DocumentID)
}

func TestScoreMetrics(t *testing.T) {
	a, b := []float32{1, 0}, []float32{3, 4}
	require.InDelta(t, 0.6, score(DistanceCosine, a, b), 1e-9)
	require.InDelta(t, 3.0, score(DistanceDot, a, b), 1e-9)
	require.InDelta(t, -4.472135955, score(DistanceEuclid, a, b), 1e-6)
	require.Zero(t, score(DistanceCosine, []float32{0, 0}, b))
}

func TestParseDistance(t *testing.T) {
	d, err := ParseDistance("")
	require.NoError(t, err)
	require.Equal(t, DistanceCosine, d)
	_, err = ParseDistance("manhattan")
	require.Error(t, err)
}
