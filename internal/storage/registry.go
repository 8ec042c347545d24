package storage

import (
	"context"
	"sort"
	"sync"

	"ragdocs/internal/models"
	"ragdocs/internal/util"
)

// Registry owns Document entities. FindByID returns util.ErrDocumentNotFound
// for unknown identifiers.
type Registry interface {
	Save(ctx context.Context, doc models.Document) (string, error)
	FindByID(ctx context.Context, id string) (models.Document, error)
	Update(ctx context.Context, doc models.Document) error
	FindAll(ctx context.Context) ([]models.Document, error)
}

// MemoryRegistry is an arena keyed by document id.
type MemoryRegistry struct {
	mu   sync.RWMutex
	docs map[string]models.Document
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{docs: make(map[string]models.Document)}
}

func (r *MemoryRegistry) Save(_ context.Context, doc models.Document) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = cloneDocument(doc)
	return doc.ID, nil
}

func (r *MemoryRegistry) FindByID(_ context.Context, id string) (models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return models.Document{}, util.ErrDocumentNotFound
	}
	return cloneDocument(doc), nil
}

func (r *MemoryRegistry) Update(_ context.Context, doc models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.docs[doc.ID]
	if !ok {
		return util.ErrDocumentNotFound
	}
	if prev.Indexed {
		doc.Indexed = true
	}
	r.docs[doc.ID] = cloneDocument(doc)
	return nil
}

// FindAll returns documents newest first.
func (r *MemoryRegistry) FindAll(_ context.Context) ([]models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, cloneDocument(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadTime.Equal(out[j].UploadTime) {
			return out[i].UploadTime.After(out[j].UploadTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneDocument(d models.Document) models.Document {
	if d.Metadata != nil {
		md := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			md[k] = v
		}
		d.Metadata = md
	}
	return d
}
