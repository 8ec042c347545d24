package chunkstore

import (
	"context"
	"fmt"
	"log"

	"ragdocs/internal/config"
	"ragdocs/internal/storage"
)

// New builds the configured backend and ensures its schema. db may be nil
// unless the pgvector backend is selected.
func New(ctx context.Context, cfg config.Config, db *storage.DB) (Store, error) {
	var s Store
	switch cfg.ChunkStoreBackend {
	case "qdrant":
		qs, err := NewQdrantStore(QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		})
		if err != nil {
			return nil, err
		}
		s = qs
	case "pgvector":
		if db == nil || db.Pool == nil {
			return nil, fmt.Errorf("pgvector chunk store requires RAGDOCS_POSTGRES_URL")
		}
		s = NewPGVectorStore(db.Pool, cfg.PGVectorTable)
	case "memory", "":
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown chunk store backend %q", cfg.ChunkStoreBackend)
	}
	if err := s.EnsureSchema(ctx, cfg.EmbedDim, DistanceCosine); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Printf("chunkstore: backend=%s dim=%d", cfg.ChunkStoreBackend, cfg.EmbedDim)
	return s, nil
}
