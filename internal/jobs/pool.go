package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"ragdocs/internal/indexing"

	"golang.org/x/sync/errgroup"
)

// Pool runs indexing in-process on a fixed number of goroutines fed by a
// bounded queue.
type Pool struct {
	runner  Runner
	tracker indexing.Tracker
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	jobs   chan string
	closed bool
	g      errgroup.Group
}

func NewPool(runner Runner, tracker indexing.Tracker, workers, size int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 64
	}
	return &Pool{
		runner:  runner,
		tracker: tracker,
		workers: workers,
		timeout: timeout,
		jobs:    make(chan string, size),
	}
}

// Start launches the workers. ctx bounds every run; cancel it to abandon
// in-flight work on shutdown.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		worker := i
		p.g.Go(func() error {
			for id := range p.jobs {
				p.runOne(ctx, worker, id)
			}
			return nil
		})
	}
	log.Printf("jobs: local pool started workers=%d capacity=%d timeout=%s", p.workers, cap(p.jobs), p.timeout)
}

func (p *Pool) runOne(ctx context.Context, worker int, documentID string) {
	res := runGuarded(ctx, p.runner, p.tracker, documentID, p.timeout)
	log.Printf("jobs: worker=%d document_id=%s success=%t code=%s", worker, documentID, res.Success, res.Error)
}

func (p *Pool) Enqueue(ctx context.Context, documentID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	// recorded first so a fast worker's progress is never overwritten
	if err := p.tracker.Record(ctx, queued(documentID)); err != nil {
		log.Printf("jobs: record queued document_id=%s err=%v", documentID, err)
	}
	select {
	case p.jobs <- documentID:
		return nil
	default:
		_ = p.tracker.Record(ctx, indexing.Status{DocumentID: documentID, Stage: indexing.StageFailed, Detail: ErrQueueFull.Error()})
		return ErrQueueFull
	}
}

func (p *Pool) Status(ctx context.Context, documentID string) (indexing.Status, bool, error) {
	return p.tracker.Get(ctx, documentID)
}

// Close stops accepting work and waits for queued runs to finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	return p.g.Wait()
}
