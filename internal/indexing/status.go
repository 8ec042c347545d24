package indexing

import (
	"context"
	"sync"
	"time"
)

type Stage string

const (
	StageQueued   Stage = "queued"
	StageUploaded Stage = "uploaded"
	StageChunked  Stage = "chunked"
	StageEmbedded Stage = "embedded"
	StageStored   Stage = "stored"
	StageIndexed  Stage = "indexed"
	StageFailed   Stage = "failed"
)

type Code string

const (
	CodeDocumentNotFound     Code = "DOCUMENT_NOT_FOUND"
	CodeFileNotFound         Code = "FILE_NOT_FOUND"
	CodeNoChunksCreated      Code = "NO_CHUNKS_CREATED"
	CodeEmbeddingUnavailable Code = "EMBEDDING_UNAVAILABLE"
	CodeStoreError           Code = "STORE_ERROR"
	CodeRegistryError        Code = "REGISTRY_ERROR"
	CodeTimeout              Code = "TIMEOUT"
	CodeNotScheduled         Code = "NOT_SCHEDULED"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Status is the latest observable state of one indexing run.
type Status struct {
	DocumentID  string    `json:"document_id"`
	Stage       Stage     `json:"stage"`
	Error       Code      `json:"error,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	ChunksCount int       `json:"chunks_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s Status) Terminal() bool {
	return s.Stage == StageIndexed || s.Stage == StageFailed
}

// Tracker records stage transitions. Get reports false for unknown runs.
type Tracker interface {
	Record(ctx context.Context, st Status) error
	Get(ctx context.Context, documentID string) (Status, bool, error)
}

type MemoryTracker struct {
	mu   sync.RWMutex
	runs map[string]Status
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{runs: make(map[string]Status)}
}

func (t *MemoryTracker) Record(_ context.Context, st Status) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	t.mu.Lock()
	t.runs[st.DocumentID] = st
	t.mu.Unlock()
	return nil
}

func (t *MemoryTracker) Get(_ context.Context, documentID string) (Status, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.runs[documentID]
	return st, ok, nil
}

type nopTracker struct{}

func (nopTracker) Record(context.Context, Status) error { return nil }

func (nopTracker) Get(context.Context, string) (Status, bool, error) {
	return Status{}, false, nil
}
