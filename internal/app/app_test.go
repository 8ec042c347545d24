package app

import (
	"context"
	"testing"
	"time"

	"ragdocs/internal/config"
	"ragdocs/internal/indexing"
	"ragdocs/internal/models"
	"ragdocs/internal/storage"

	"github.com/stretchr/testify/require"
)

func TestBuildInMemoryStack(t *testing.T) {
	cfg := config.Load()
	cfg.LocalBlobPath = t.TempDir()
	cfg.EmbedDim = 32

	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.Nil(t, c.DB)
	require.IsType(t, &storage.MemoryRegistry{}, c.Registry)
	require.Equal(t, 32, c.Models.Embedder.Dimension())

	ctx := context.Background()
	id, _, err := c.Blobs.Save(ctx, []byte("Go is expressive."), "intro.txt")
	require.NoError(t, err)
	_, err = c.Registry.Save(ctx, models.Document{ID: id, Filename: "intro.txt", UploadTime: time.Now()})
	require.NoError(t, err)

	res := c.Pipeline(indexing.NewMemoryTracker()).Run(ctx, id)
	require.True(t, res.Success, res.Detail)
	require.Equal(t, 1, res.ChunksCount)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := config.Load()
	cfg.ChunkOverlap = cfg.ChunkSize
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}

func TestNeedsPostgres(t *testing.T) {
	cfg := config.Load()
	require.False(t, needsPostgres(cfg))
	cfg.ChunkStoreBackend = "pgvector"
	require.True(t, needsPostgres(cfg))
	cfg.ChunkStoreBackend = "qdrant"
	cfg.RegistryBackend = "postgres"
	require.True(t, needsPostgres(cfg))
}
