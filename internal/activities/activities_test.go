package activities

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ragdocs/internal/blob"
	"ragdocs/internal/chunking"
	"ragdocs/internal/chunkstore"
	"ragdocs/internal/indexing"
	"ragdocs/internal/models"
	"ragdocs/internal/storage"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
)

type dropSecond struct{}

func (dropSecond) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "bravo") {
			continue
		}
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

func TestChunkRangeActivities(t *testing.T) {
	ctx := context.Background()
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	registry := storage.NewMemoryRegistry()
	store := chunkstore.NewMemoryStore()
	require.NoError(t, store.EnsureSchema(ctx, 2, chunkstore.DistanceCosine))

	id, name, err := blobs.Save(ctx, []byte("alpha.\n\nbravo.\n\ncharlie."), "three.txt")
	require.NoError(t, err)
	_, err = registry.Save(ctx, models.Document{ID: id, Filename: name, UploadTime: time.Now().UTC()})
	require.NoError(t, err)

	p := indexing.NewPipeline(registry, blobs, chunking.New(8, 0), dropSecond{}, store, 10, indexing.NewMemoryTracker())
	a := New(p)

	count, err := a.ChunkDocumentActivity(ctx, DocumentInput{DocumentID: id})
	require.NoError(t, err)
	require.Equal(t, 3, count.Count)

	out, err := a.IndexChunkRangeActivity(ctx, ChunkRangeInput{DocumentID: id, Start: 0, End: 2})
	require.NoError(t, err)
	require.Equal(t, ChunkRangeOutput{Stored: 1, Dropped: 1}, out)

	out, err = a.IndexChunkRangeActivity(ctx, ChunkRangeInput{DocumentID: id, Start: 2, End: 3})
	require.NoError(t, err)
	require.Equal(t, 1, out.Stored)

	stored, err := store.FindByDocumentID(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	_, err = a.IndexChunkRangeActivity(ctx, ChunkRangeInput{DocumentID: id, Start: 2, End: 9})
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, string(indexing.CodeInternal), appErr.Type())
	require.True(t, appErr.NonRetryable())
}

func TestAsApplicationErrorCarriesCode(t *testing.T) {
	err := asApplicationError(&indexing.StageError{Stage: indexing.StageUploaded, Code: indexing.CodeFileNotFound, Err: errors.New("gone")})
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, string(indexing.CodeFileNotFound), appErr.Type())
	require.True(t, appErr.NonRetryable())

	err = asApplicationError(&indexing.StageError{Stage: indexing.StageStored, Code: indexing.CodeStoreError, Err: errors.New("down")})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, string(indexing.CodeStoreError), appErr.Type())
	require.False(t, appErr.NonRetryable())
}

func TestAsApplicationErrorPassesThrough(t *testing.T) {
	require.NoError(t, asApplicationError(nil))
	plain := errors.New("plain")
	require.Equal(t, plain, asApplicationError(plain))
}
