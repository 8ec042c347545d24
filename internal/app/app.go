package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"ragdocs/internal/blob"
	"ragdocs/internal/chunking"
	"ragdocs/internal/chunkstore"
	"ragdocs/internal/config"
	"ragdocs/internal/gateway"
	"ragdocs/internal/indexing"
	"ragdocs/internal/storage"
)

const connectTimeout = 10 * time.Second

// Components are the long-lived handles shared by the api and worker binaries.
type Components struct {
	Config   config.Config
	DB       *storage.DB
	Registry storage.Registry
	Blobs    blob.Store
	Chunks   chunkstore.Store
	Models   *gateway.Set
}

func needsPostgres(cfg config.Config) bool {
	return cfg.RegistryBackend == "postgres" || cfg.ChunkStoreBackend == "pgvector"
}

func Build(ctx context.Context, cfg config.Config) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.QueueBackend != "local" && (cfg.RegistryBackend == "memory" || cfg.ChunkStoreBackend == "memory" || cfg.BlobBackend == "local") {
		log.Printf("app: queue=%s with process-local backends registry=%s chunk_store=%s storage=%s; api and worker must share a host",
			cfg.QueueBackend, cfg.RegistryBackend, cfg.ChunkStoreBackend, cfg.BlobBackend)
	}

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	c := &Components{Config: cfg}
	if needsPostgres(cfg) {
		db, err := storage.NewDB(cctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		c.DB = db
	}

	if cfg.RegistryBackend == "postgres" {
		repo := storage.NewDocumentRepo(c.DB)
		if err := repo.EnsureSchema(cctx); err != nil {
			c.Close()
			return nil, err
		}
		c.Registry = repo
	} else {
		c.Registry = storage.NewMemoryRegistry()
	}

	blobs, err := blob.New(cctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Blobs = blobs

	chunks, err := chunkstore.New(cctx, cfg, c.DB)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Chunks = chunks

	set, err := gateway.NewSet(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Models = set

	if c.DB != nil && cfg.AuditModelCalls {
		audit := storage.NewModelCallRepo(c.DB)
		if err := audit.EnsureSchema(cctx); err != nil {
			c.Close()
			return nil, err
		}
		set.SetAuditor(audit)
	}

	log.Printf("app: ready registry=%s chunk_store=%s storage=%s queue=%s embed_dim=%d llm_providers=%q embed_providers=%q",
		cfg.RegistryBackend, cfg.ChunkStoreBackend, cfg.BlobBackend, cfg.QueueBackend, cfg.EmbedDim, cfg.LLMProviders, cfg.EmbedProviders)
	return c, nil
}

func (c *Components) Pipeline(tracker indexing.Tracker) *indexing.Pipeline {
	chunker := chunking.New(c.Config.ChunkSize, c.Config.ChunkOverlap)
	return indexing.NewPipeline(c.Registry, c.Blobs, chunker, c.Models.Embedder, c.Chunks, c.Config.UpsertBatchSize, tracker)
}

func (c *Components) Close() {
	if c.Chunks != nil {
		if err := c.Chunks.Close(); err != nil {
			log.Printf("app: chunk store close failed err=%v", err)
		}
	}
	c.DB.Close()
}
