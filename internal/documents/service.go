package documents

import (
	"context"
	"fmt"
	"log"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"ragdocs/internal/blob"
	"ragdocs/internal/chunking"
	"ragdocs/internal/indexing"
	"ragdocs/internal/jobs"
	"ragdocs/internal/models"
	"ragdocs/internal/storage"
	"ragdocs/internal/util"
)

// allowedTypes maps each accepted extension to the content types it may
// arrive with.
var allowedTypes = map[string][]string{
	".pdf": {"application/pdf"},
	".txt": {"text/plain"},
	".md":  {"text/markdown", "text/x-markdown", "text/plain"},
}

// metaIndexError holds the failure code of a document that could not be
// scheduled for indexing.
const metaIndexError = "index_error"

type ChunkLister interface {
	FindByDocumentID(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
}

type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Detail struct {
	models.Document
	Status *indexing.Status `json:"status,omitempty"`
}

type Service struct {
	registry   storage.Registry
	blobs      blob.Store
	chunks     ChunkLister
	dispatcher jobs.Dispatcher
	maxBytes   int64
	now        func() time.Time
}

func NewService(registry storage.Registry, blobs blob.Store, chunks ChunkLister, dispatcher jobs.Dispatcher, maxBytes int64) *Service {
	return &Service{
		registry:   registry,
		blobs:      blobs,
		chunks:     chunks,
		dispatcher: dispatcher,
		maxBytes:   maxBytes,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ValidateUpload rejects files before anything is stored.
func ValidateUpload(filename, contentType string, size, maxBytes int64) error {
	if !chunking.SupportedExtension(filename) {
		return fmt.Errorf("%w: %q", util.ErrUnsupportedFileType, filepath.Ext(filename))
	}
	ext := strings.ToLower(filepath.Ext(filename))
	mediaType := allowedTypes[ext][0]
	if strings.TrimSpace(contentType) != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return fmt.Errorf("%w: content type %q", util.ErrUnsupportedFileType, contentType)
		}
		mediaType = mt
	}
	if !contains(allowedTypes[ext], mediaType) {
		return fmt.Errorf("%w: content type %q for %s", util.ErrUnsupportedFileType, mediaType, ext)
	}
	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", util.ErrFileTooLarge, size, maxBytes)
	}
	return nil
}

// Upload stores the bytes, registers the document and schedules indexing.
func (s *Service) Upload(ctx context.Context, in Upload) (models.Document, error) {
	if err := ValidateUpload(in.Filename, in.ContentType, int64(len(in.Data)), s.maxBytes); err != nil {
		return models.Document{}, err
	}
	id, original, err := s.blobs.Save(ctx, in.Data, in.Filename)
	if err != nil {
		return models.Document{}, fmt.Errorf("store upload: %w", err)
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = allowedTypes[strings.ToLower(filepath.Ext(original))][0]
	}
	doc := models.Document{
		ID:         id,
		Filename:   original,
		UploadTime: s.now(),
		Metadata: map[string]any{
			"content_type": contentType,
			"size":         len(in.Data),
			"sha256":       util.SHA256Hex(in.Data),
		},
	}
	if _, err := s.registry.Save(ctx, doc); err != nil {
		if _, derr := s.blobs.Delete(ctx, id); derr != nil {
			log.Printf("documents: orphaned blob id=%s err=%v", id, derr)
		}
		return models.Document{}, fmt.Errorf("register document: %w", err)
	}
	if err := s.dispatcher.Enqueue(ctx, id); err != nil {
		doc = s.abandon(ctx, doc, err)
		return doc, fmt.Errorf("schedule indexing: %w", err)
	}
	log.Printf("documents: uploaded id=%s filename=%q size=%d", id, original, len(in.Data))
	return doc, nil
}

// abandon drops the raw bytes of a document whose run was never scheduled and
// marks it failed so it does not read as pending.
func (s *Service) abandon(ctx context.Context, doc models.Document, cause error) models.Document {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.blobs.Delete(ctx, doc.ID); err != nil {
		log.Printf("documents: orphaned blob id=%s err=%v", doc.ID, err)
	}
	doc.Metadata[metaIndexError] = string(indexing.CodeNotScheduled)
	if err := s.registry.Update(ctx, doc); err != nil {
		log.Printf("documents: mark unscheduled failed id=%s err=%v", doc.ID, err)
	}
	log.Printf("documents: indexing not scheduled id=%s err=%v", doc.ID, cause)
	return doc
}

func (s *Service) List(ctx context.Context) ([]models.Document, error) {
	return s.registry.FindAll(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	doc, err := s.registry.FindByID(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Document: doc}
	st, ok, err := s.dispatcher.Status(ctx, id)
	if err != nil {
		log.Printf("documents: status lookup failed id=%s err=%v", id, err)
	} else if ok {
		d.Status = &st
	}
	if d.Status == nil {
		if code, ok := doc.Metadata[metaIndexError].(string); ok {
			d.Status = &indexing.Status{DocumentID: id, Stage: indexing.StageFailed, Error: indexing.Code(code)}
		}
	}
	return d, nil
}

func (s *Service) Chunks(ctx context.Context, id string) ([]models.DocumentChunk, error) {
	if _, err := s.registry.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.chunks.FindByDocumentID(ctx, id)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
