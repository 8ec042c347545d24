package chunkstore

import (
	"context"
	"fmt"
	"math"
	"sync"

	"ragdocs/internal/models"
	"ragdocs/internal/util"

	"github.com/google/uuid"
)

type memoryRecord struct {
	id     string
	seq    int64
	chunk  models.DocumentChunk
	vector []float32
}

// MemoryStore keeps chunks in process. It backs tests and single-node setups.
type MemoryStore struct {
	mu       sync.RWMutex
	dim      int
	distance Distance
	seq      int64
	records  []memoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{distance: DistanceCosine}
}

func (m *MemoryStore) EnsureSchema(_ context.Context, dim int, distance Distance) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive", util.ErrStore)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim != 0 && m.dim != dim {
		return fmt.Errorf("%w: collection exists with dimension %d, want %d", util.ErrStore, m.dim, dim)
	}
	m.dim = dim
	if distance != "" {
		m.distance = distance
	}
	return nil
}

func (m *MemoryStore) UpsertBatch(_ context.Context, chunks []models.EmbeddedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range chunks {
		if len(c.Vector) == 0 || (m.dim > 0 && len(c.Vector) != m.dim) {
			return fmt.Errorf("%w: chunk %d has vector length %d, want %d", util.ErrStore, i, len(c.Vector), m.dim)
		}
	}
	for _, c := range chunks {
		m.seq++
		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		m.records = append(m.records, memoryRecord{id: uuid.NewString(), seq: m.seq, chunk: c.Chunk, vector: vec})
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, vector []float32, opts SearchOptions) ([]models.RetrievalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]scored, 0, len(m.records))
	for _, r := range m.records {
		if len(r.vector) != len(vector) {
			return nil, fmt.Errorf("%w: query vector length %d, stored %d", util.ErrStore, len(vector), len(r.vector))
		}
		idx := r.chunk.Index
		items = append(items, scored{
			seq: r.seq,
			result: models.RetrievalResult{
				Text:       r.chunk.Text,
				Source:     r.chunk.Source,
				DocumentID: r.chunk.DocumentID,
				Page:       r.chunk.Page,
				Index:      &idx,
				Score:      score(m.distance, vector, r.vector),
			},
		})
	}
	return rank(items, opts), nil
}

func (m *MemoryStore) DeleteByDocumentID(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, r := range m.records {
		if r.chunk.DocumentID != documentID {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(m.records); i++ {
		m.records[i] = memoryRecord{}
	}
	m.records = kept
	return nil
}

func (m *MemoryStore) FindByDocumentID(_ context.Context, documentID string) ([]models.DocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DocumentChunk, 0)
	for _, r := range m.records {
		if r.chunk.DocumentID == documentID {
			out = append(out, r.chunk)
		}
	}
	sortForDisplay(out)
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func score(d Distance, a, b []float32) float64 {
	switch d {
	case DistanceDot:
		return dot(a, b)
	case DistanceEuclid:
		var sum float64
		for i := range a {
			diff := float64(a[i]) - float64(b[i])
			sum += diff * diff
		}
		return -math.Sqrt(sum)
	default:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
