package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"ragdocs/internal/indexing"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const popTimeout = 5 * time.Second

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisTracker keeps run status as JSON in one hash keyed by document id.
type RedisTracker struct {
	client *redis.Client
	key    string
}

func NewRedisTracker(client *redis.Client, queueKey string) *RedisTracker {
	return &RedisTracker{client: client, key: statusKey(queueKey)}
}

func statusKey(queueKey string) string {
	return queueKey + ":status"
}

func (t *RedisTracker) Record(ctx context.Context, st indexing.Status) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := t.client.HSet(ctx, t.key, st.DocumentID, raw).Err(); err != nil {
		return fmt.Errorf("record status %s: %w", st.DocumentID, err)
	}
	return nil
}

func (t *RedisTracker) Get(ctx context.Context, documentID string) (indexing.Status, bool, error) {
	raw, err := t.client.HGet(ctx, t.key, documentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return indexing.Status{}, false, nil
	}
	if err != nil {
		return indexing.Status{}, false, fmt.Errorf("get status %s: %w", documentID, err)
	}
	st, err := decodeStatus(raw)
	if err != nil {
		return indexing.Status{}, false, err
	}
	return st, true, nil
}

func decodeStatus(raw []byte) (indexing.Status, error) {
	var st indexing.Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return indexing.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// RedisQueue hands document ids to out-of-process workers through a list.
type RedisQueue struct {
	client  *redis.Client
	key     string
	tracker *RedisTracker
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key, tracker: NewRedisTracker(client, key)}
}

func (q *RedisQueue) Tracker() *RedisTracker {
	return q.tracker
}

func (q *RedisQueue) Enqueue(ctx context.Context, documentID string) error {
	if err := q.tracker.Record(ctx, queued(documentID)); err != nil {
		log.Printf("jobs: record queued document_id=%s err=%v", documentID, err)
	}
	if err := q.client.LPush(ctx, q.key, documentID).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", documentID, err)
	}
	return nil
}

func (q *RedisQueue) Status(ctx context.Context, documentID string) (indexing.Status, bool, error) {
	return q.tracker.Get(ctx, documentID)
}

// Consume pops ids until ctx is cancelled, running each with its own timeout.
func (q *RedisQueue) Consume(ctx context.Context, runner Runner, workers int, timeout time.Duration) error {
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			q.loop(ctx, runner, worker, timeout)
			return nil
		})
	}
	log.Printf("jobs: redis consumer started key=%s workers=%d", q.key, workers)
	return g.Wait()
}

func (q *RedisQueue) loop(ctx context.Context, runner Runner, worker int, timeout time.Duration) {
	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("jobs: worker=%d pop failed err=%v", worker, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}
		// BRPop replies with [key, value].
		documentID := res[1]
		out := runGuarded(ctx, runner, q.tracker, documentID, timeout)
		log.Printf("jobs: worker=%d document_id=%s success=%t code=%s", worker, documentID, out.Success, out.Error)
	}
}
