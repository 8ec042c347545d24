package indexing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ragdocs/internal/models"
	"ragdocs/internal/util"
)

type Registry interface {
	FindByID(ctx context.Context, id string) (models.Document, error)
	Update(ctx context.Context, doc models.Document) error
}

type BlobReader interface {
	Read(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type Chunker interface {
	BuildChunks(documentID, filename string, raw []byte) []models.DocumentChunk
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type ChunkWriter interface {
	UpsertBatch(ctx context.Context, chunks []models.EmbeddedChunk) error
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

// Result is the structured outcome of one run. Failures never surface as
// errors so a batch of documents can continue past a bad one.
type Result struct {
	DocumentID  string `json:"document_id"`
	Success     bool   `json:"success"`
	Stage       Stage  `json:"stage"`
	Error       Code   `json:"error,omitempty"`
	Detail      string `json:"detail,omitempty"`
	ChunksCount int    `json:"chunks_count"`
}

type Pipeline struct {
	registry  Registry
	blobs     BlobReader
	chunker   Chunker
	embedder  Embedder
	store     ChunkWriter
	batchSize int
	tracker   Tracker
}

func NewPipeline(registry Registry, blobs BlobReader, chunker Chunker, embedder Embedder, store ChunkWriter, batchSize int, tracker Tracker) *Pipeline {
	if batchSize <= 0 {
		batchSize = 100
	}
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &Pipeline{
		registry:  registry,
		blobs:     blobs,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
		tracker:   tracker,
	}
}

// Run drives one document to a terminal state. The raw bytes are removed
// afterwards whatever the outcome.
func (p *Pipeline) Run(ctx context.Context, documentID string) Result {
	start := time.Now()
	res := p.run(ctx, documentID)
	p.Cleanup(context.WithoutCancel(ctx), documentID)

	st := Status{DocumentID: documentID, Stage: res.Stage, Error: res.Error, Detail: res.Detail, ChunksCount: res.ChunksCount}
	p.record(ctx, st)
	if res.Success {
		log.Printf("indexing: completed document_id=%s chunks=%d duration=%s", documentID, res.ChunksCount, time.Since(start).Round(time.Millisecond))
	} else {
		log.Printf("indexing: failed document_id=%s code=%s detail=%q", documentID, res.Error, res.Detail)
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, documentID string) Result {
	failed := func(err error) Result {
		return Result{
			DocumentID: documentID,
			Stage:      StageFailed,
			Error:      CodeOf(err, CodeStoreError),
			Detail:     err.Error(),
		}
	}

	p.record(ctx, Status{DocumentID: documentID, Stage: StageUploaded})
	chunks, err := p.Chunk(ctx, documentID)
	if err != nil {
		return failed(err)
	}
	p.record(ctx, Status{DocumentID: documentID, Stage: StageChunked, ChunksCount: len(chunks)})

	embedded, err := p.Embed(ctx, chunks)
	if err != nil {
		return failed(err)
	}
	p.record(ctx, Status{DocumentID: documentID, Stage: StageEmbedded, ChunksCount: len(embedded)})

	stored, err := p.Store(ctx, documentID, embedded)
	if err != nil {
		res := failed(err)
		res.ChunksCount = stored
		return res
	}
	p.record(ctx, Status{DocumentID: documentID, Stage: StageStored, ChunksCount: stored})

	if err := p.MarkIndexed(ctx, documentID); err != nil {
		res := failed(err)
		res.ChunksCount = stored
		return res
	}
	return Result{DocumentID: documentID, Success: true, Stage: StageIndexed, ChunksCount: stored}
}

// Chunk loads the document and its raw bytes and splits them.
func (p *Pipeline) Chunk(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	doc, err := p.registry.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil, fail(ctx, StageUploaded, CodeDocumentNotFound, err)
		}
		return nil, fail(ctx, StageUploaded, CodeRegistryError, err)
	}
	raw, err := p.blobs.Read(ctx, documentID)
	if err != nil {
		return nil, fail(ctx, StageUploaded, CodeFileNotFound, fmt.Errorf("read raw bytes: %w", err))
	}
	chunks := p.chunker.BuildChunks(doc.ID, doc.Filename, raw)
	if len(chunks) == 0 {
		return nil, fail(ctx, StageChunked, CodeNoChunksCreated, fmt.Errorf("no chunks from %q", doc.Filename))
	}
	return chunks, nil
}

// ChunkRange re-derives the document's chunks and returns those in
// [start, end). Splitting is deterministic, so callers can pass offsets
// instead of chunk payloads.
func (p *Pipeline) ChunkRange(ctx context.Context, documentID string, start, end int) ([]models.DocumentChunk, error) {
	chunks, err := p.Chunk(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if start < 0 || start > end || end > len(chunks) {
		return nil, fail(ctx, StageChunked, CodeInternal, fmt.Errorf("chunk range %d-%d outside %d chunks", start, end, len(chunks)))
	}
	return chunks[start:end], nil
}

// Embed drops chunks whose embedding failed; an empty result is a failure.
func (p *Pipeline) Embed(ctx context.Context, chunks []models.DocumentChunk) ([]models.EmbeddedChunk, error) {
	out, err := p.EmbedPartial(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fail(ctx, StageEmbedded, CodeNoChunksCreated, errors.New("no chunk could be embedded"))
	}
	return out, nil
}

// EmbedPartial is Embed without the empty-result check, for callers that
// embed a document one slice at a time.
func (p *Pipeline) EmbedPartial(ctx context.Context, chunks []models.DocumentChunk) ([]models.EmbeddedChunk, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fail(ctx, StageEmbedded, CodeEmbeddingUnavailable, err)
	}
	out := make([]models.EmbeddedChunk, 0, len(chunks))
	for i, c := range chunks {
		if i >= len(vecs) || len(vecs[i]) == 0 {
			log.Printf("indexing: embedding missing document_id=%s index=%d page=%v", c.DocumentID, c.Index, pageLabel(c.Page))
			continue
		}
		out = append(out, models.EmbeddedChunk{Chunk: c, Vector: vecs[i]})
	}
	if dropped := len(chunks) - len(out); dropped > 0 {
		log.Printf("indexing: partial embedding kept=%d dropped=%d", len(out), dropped)
	}
	return out, nil
}

// Store replaces any earlier chunks of the document and writes the new ones
// in batches. It returns how many chunks were committed before any failure.
func (p *Pipeline) Store(ctx context.Context, documentID string, chunks []models.EmbeddedChunk) (int, error) {
	if err := p.ClearChunks(ctx, documentID); err != nil {
		return 0, err
	}
	return p.StoreBatches(ctx, chunks)
}

func (p *Pipeline) ClearChunks(ctx context.Context, documentID string) error {
	if err := p.store.DeleteByDocumentID(ctx, documentID); err != nil {
		return fail(ctx, StageStored, CodeStoreError, fmt.Errorf("clear previous chunks: %w", err))
	}
	return nil
}

// StoreBatches stops at the first failed batch; earlier batches stay committed.
func (p *Pipeline) StoreBatches(ctx context.Context, chunks []models.EmbeddedChunk) (int, error) {
	stored := 0
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		if err := p.store.UpsertBatch(ctx, chunks[start:end]); err != nil {
			return stored, fail(ctx, StageStored, CodeStoreError, fmt.Errorf("batch %d-%d: %w", start, end, err))
		}
		stored = end
	}
	return stored, nil
}

func (p *Pipeline) MarkIndexed(ctx context.Context, documentID string) error {
	doc, err := p.registry.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return fail(ctx, StageIndexed, CodeDocumentNotFound, err)
		}
		return fail(ctx, StageIndexed, CodeRegistryError, err)
	}
	doc.MarkIndexed()
	if err := p.registry.Update(ctx, doc); err != nil {
		return fail(ctx, StageIndexed, CodeRegistryError, err)
	}
	return nil
}

// Cleanup removes the raw bytes. Failures are logged only.
func (p *Pipeline) Cleanup(ctx context.Context, documentID string) {
	removed, err := p.blobs.Delete(ctx, documentID)
	if err != nil {
		log.Printf("indexing: cleanup failed document_id=%s err=%v", documentID, err)
		return
	}
	if !removed {
		log.Printf("indexing: cleanup found nothing document_id=%s", documentID)
	}
}

func (p *Pipeline) record(ctx context.Context, st Status) {
	if err := p.tracker.Record(context.WithoutCancel(ctx), st); err != nil {
		log.Printf("indexing: status record failed document_id=%s stage=%s err=%v", st.DocumentID, st.Stage, err)
	}
}

func pageLabel(p *int) any {
	if p == nil {
		return "-"
	}
	return *p
}
