package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ragdocs/internal/indexing"
)

var (
	ErrQueueFull = errors.New("indexing queue is full")
	ErrClosed    = errors.New("indexing queue is closed")
)

// Dispatcher schedules indexing runs outside the request that triggered them.
type Dispatcher interface {
	Enqueue(ctx context.Context, documentID string) error
	// Status reports false when the run is unknown to the backend.
	Status(ctx context.Context, documentID string) (indexing.Status, bool, error)
}

// Runner executes one indexing run to a terminal state.
type Runner interface {
	Run(ctx context.Context, documentID string) indexing.Result
}

// cleaner is implemented by runners that can drop a document's raw bytes
// when a run is aborted.
type cleaner interface {
	Cleanup(ctx context.Context, documentID string)
}

func queued(documentID string) indexing.Status {
	return indexing.Status{DocumentID: documentID, Stage: indexing.StageQueued}
}

func runWithTimeout(ctx context.Context, runner Runner, documentID string, timeout time.Duration) indexing.Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return runner.Run(ctx, documentID)
}

// runGuarded is runWithTimeout that turns a panic into a failed run: the raw
// bytes are cleaned up and the status records INTERNAL_ERROR.
func runGuarded(ctx context.Context, runner Runner, tracker indexing.Tracker, documentID string, timeout time.Duration) (res indexing.Result) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.Printf("jobs: run panicked document_id=%s panic=%v", documentID, r)
		bg := context.WithoutCancel(ctx)
		if c, ok := runner.(cleaner); ok {
			c.Cleanup(bg, documentID)
		}
		res = indexing.Result{
			DocumentID: documentID,
			Stage:      indexing.StageFailed,
			Error:      indexing.CodeInternal,
			Detail:     fmt.Sprint(r),
		}
		st := indexing.Status{DocumentID: documentID, Stage: res.Stage, Error: res.Error, Detail: res.Detail}
		if err := tracker.Record(bg, st); err != nil {
			log.Printf("jobs: record panic status document_id=%s err=%v", documentID, err)
		}
	}()
	return runWithTimeout(ctx, runner, documentID, timeout)
}
