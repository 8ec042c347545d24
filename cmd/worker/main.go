package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"ragdocs/internal/activities"
	"ragdocs/internal/app"
	"ragdocs/internal/config"
	"ragdocs/internal/jobs"
	"ragdocs/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
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

	switch cfg.QueueBackend {
	case "temporal":
		runTemporal(c)
	case "redis":
		runRedis(ctx, c)
	default:
		log.Fatalf("worker: queue=%s runs indexing inside the api process; nothing to do", cfg.QueueBackend)
	}
}

func runTemporal(c *app.Components) {
	cfg := c.Config
	tc, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer tc.Close()

	w := worker.New(tc, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	// workflow queries report progress, so the pipeline needs no tracker here
	activities.Register(w, activities.New(c.Pipeline(nil)))

	log.Printf("ragdocs worker listening on %s queue=%s", cfg.TemporalAddress, cfg.TemporalTaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}

func runRedis(ctx context.Context, c *app.Components) {
	cfg := c.Config
	rdb, err := jobs.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal(err)
	}
	defer rdb.Close()

	q := jobs.NewRedisQueue(rdb, cfg.RedisQueueKey)
	log.Printf("ragdocs worker consuming %s key=%s workers=%d", cfg.RedisAddr, cfg.RedisQueueKey, cfg.Workers)
	if err := q.Consume(ctx, c.Pipeline(q.Tracker()), cfg.Workers, cfg.IndexTimeout); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
