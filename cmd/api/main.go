package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ragdocs/internal/api"
	"ragdocs/internal/app"
	"ragdocs/internal/config"
	"ragdocs/internal/documents"
	"ragdocs/internal/indexing"
	"ragdocs/internal/jobs"
	"ragdocs/internal/rag"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	dispatcher, closeDispatcher, err := newDispatcher(ctx, c)
	if err != nil {
		log.Fatal(err)
	}
	defer closeDispatcher()

	docs := documents.NewService(c.Registry, c.Blobs, c.Chunks, dispatcher, cfg.MaxUploadBytes())
	composer := rag.NewComposer(c.Models.Embedder, c.Chunks, c.Models.Generator, rag.OptionsFromConfig(cfg))
	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewServer(docs, composer, cfg.MaxUploadBytes()).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("ragdocs api listening on %s queue=%s", cfg.APIAddr, cfg.QueueBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// newDispatcher picks the indexing queue. The local pool runs the pipeline
// in-process; redis and temporal hand work to cmd/worker.
func newDispatcher(ctx context.Context, c *app.Components) (jobs.Dispatcher, func(), error) {
	cfg := c.Config
	switch cfg.QueueBackend {
	case "redis":
		rdb, err := jobs.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return jobs.NewRedisQueue(rdb, cfg.RedisQueueKey), func() { _ = rdb.Close() }, nil
	case "temporal":
		tc, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			return nil, nil, err
		}
		return jobs.NewTemporalDispatcher(tc, cfg.TemporalTaskQueue, cfg.IndexTimeout, cfg.UpsertBatchSize), tc.Close, nil
	default:
		tracker := indexing.NewMemoryTracker()
		pool := jobs.NewPool(c.Pipeline(tracker), tracker, cfg.Workers, cfg.QueueSize, cfg.IndexTimeout)
		pool.Start(context.WithoutCancel(ctx))
		return pool, func() {
			if err := pool.Close(); err != nil {
				log.Printf("jobs: pool close err=%v", err)
			}
		}, nil
	}
}
