package activities

import (
	"context"
	"errors"

	"ragdocs/internal/indexing"

	"go.temporal.io/sdk/temporal"
)

// Activities exposes the indexing stages to Temporal one at a time.
type Activities struct {
	pipeline *indexing.Pipeline
}

func New(p *indexing.Pipeline) *Activities {
	return &Activities{pipeline: p}
}

func (a *Activities) ChunkDocumentActivity(ctx context.Context, in DocumentInput) (ChunkDocumentOutput, error) {
	chunks, err := a.pipeline.Chunk(ctx, in.DocumentID)
	if err != nil {
		return ChunkDocumentOutput{}, asApplicationError(err)
	}
	return ChunkDocumentOutput{Count: len(chunks)}, nil
}

func (a *Activities) ClearChunksActivity(ctx context.Context, in DocumentInput) error {
	return asApplicationError(a.pipeline.ClearChunks(ctx, in.DocumentID))
}

// IndexChunkRangeActivity re-derives one slice of the document's chunks,
// embeds it and stores what embedded. Vectors never leave the worker.
func (a *Activities) IndexChunkRangeActivity(ctx context.Context, in ChunkRangeInput) (ChunkRangeOutput, error) {
	chunks, err := a.pipeline.ChunkRange(ctx, in.DocumentID, in.Start, in.End)
	if err != nil {
		return ChunkRangeOutput{}, asApplicationError(err)
	}
	embedded, err := a.pipeline.EmbedPartial(ctx, chunks)
	if err != nil {
		return ChunkRangeOutput{}, asApplicationError(err)
	}
	out := ChunkRangeOutput{Dropped: len(chunks) - len(embedded)}
	if len(embedded) == 0 {
		return out, nil
	}
	out.Stored, err = a.pipeline.StoreBatches(ctx, embedded)
	if err != nil {
		return out, asApplicationError(err)
	}
	return out, nil
}

func (a *Activities) MarkIndexedActivity(ctx context.Context, in DocumentInput) error {
	return asApplicationError(a.pipeline.MarkIndexed(ctx, in.DocumentID))
}

func (a *Activities) CleanupBlobActivity(ctx context.Context, in DocumentInput) error {
	a.pipeline.Cleanup(ctx, in.DocumentID)
	return nil
}

// asApplicationError carries the failure code as the error type. Missing
// inputs and empty documents cannot succeed on retry.
func asApplicationError(err error) error {
	if err == nil {
		return nil
	}
	var se *indexing.StageError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case indexing.CodeDocumentNotFound, indexing.CodeFileNotFound, indexing.CodeNoChunksCreated, indexing.CodeInternal:
		return temporal.NewNonRetryableApplicationError(se.Error(), string(se.Code), se.Err)
	default:
		return temporal.NewApplicationError(se.Error(), string(se.Code))
	}
}
