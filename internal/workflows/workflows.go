package workflows

import (
	"errors"
	"time"

	"ragdocs/internal/activities"
	"ragdocs/internal/indexing"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetIndexStatus = "GetIndexStatus"

// WorkflowID is the workflow identifier used for a document's indexing run.
func WorkflowID(documentID string) string {
	return "index-" + documentID
}

// IndexDocumentWorkflow runs the indexing stages as activities and always
// completes with a structured result; failures are reported in it, not as
// workflow errors. The raw bytes are removed once, whatever the outcome.
func IndexDocumentWorkflow(ctx workflow.Context, input IndexDocumentInput) (IndexDocumentOutput, error) {
	status := indexing.Status{DocumentID: input.DocumentID, Stage: indexing.StageUploaded, UpdatedAt: workflow.Now(ctx)}
	if err := workflow.SetQueryHandler(ctx, QueryGetIndexStatus, func() (indexing.Status, error) {
		return status, nil
	}); err != nil {
		return IndexDocumentOutput{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var res IndexDocumentOutput
	if input.Timeout <= 0 {
		res = runStages(ctx, input, &status)
	} else {
		res = runStagesWithDeadline(ctx, input, &status)
	}

	// Cleanup must run even when the stages were cancelled.
	cleanupCtx, cancelCleanup := workflow.NewDisconnectedContext(ctx)
	defer cancelCleanup()
	doc := activities.DocumentInput{DocumentID: input.DocumentID}
	if err := workflow.ExecuteActivity(cleanupCtx, "CleanupBlobActivity", doc).Get(cleanupCtx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("cleanup failed", "document_id", input.DocumentID, "error", err)
	}
	status.Stage = res.Stage
	status.Error = res.Error
	status.Detail = res.Detail
	status.ChunksCount = res.ChunksCount
	status.UpdatedAt = workflow.Now(ctx)
	workflow.GetLogger(ctx).Info("indexing finished", "document_id", input.DocumentID, "success", res.Success, "code", res.Error, "chunks", res.ChunksCount)
	return res, nil
}

// runStagesWithDeadline races the stages against a workflow timer. When the
// timer wins the stages are cancelled and the run is reported as TIMEOUT.
func runStagesWithDeadline(ctx workflow.Context, input IndexDocumentInput, status *indexing.Status) IndexDocumentOutput {
	runCtx, cancelRun := workflow.WithCancel(ctx)
	timerCtx, cancelTimer := workflow.WithCancel(ctx)

	done, settle := workflow.NewFuture(ctx)
	workflow.Go(runCtx, func(gctx workflow.Context) {
		settle.SetValue(runStages(gctx, input, status))
	})
	deadline := workflow.NewTimer(timerCtx, input.Timeout)

	var res IndexDocumentOutput
	timedOut := false
	sel := workflow.NewSelector(ctx)
	sel.AddFuture(done, func(f workflow.Future) {
		_ = f.Get(ctx, &res)
		cancelTimer()
	})
	sel.AddFuture(deadline, func(workflow.Future) {
		timedOut = true
		cancelRun()
	})
	sel.Select(ctx)

	if timedOut {
		return IndexDocumentOutput{
			DocumentID:  input.DocumentID,
			Stage:       indexing.StageFailed,
			Error:       indexing.CodeTimeout,
			Detail:      "indexing exceeded " + input.Timeout.String(),
			ChunksCount: status.ChunksCount,
		}
	}
	return res
}

// runStages executes chunk, clear, per-range embed+store and mark. Activity
// payloads carry counts and offsets only.
func runStages(ctx workflow.Context, input IndexDocumentInput, status *indexing.Status) IndexDocumentOutput {
	advance := func(stage indexing.Stage, count int) {
		status.Stage = stage
		status.ChunksCount = count
		status.UpdatedAt = workflow.Now(ctx)
	}
	failed := func(err error, fallback indexing.Code, stored int) IndexDocumentOutput {
		return IndexDocumentOutput{
			DocumentID:  input.DocumentID,
			Stage:       indexing.StageFailed,
			Error:       failureCode(err, fallback),
			Detail:      err.Error(),
			ChunksCount: stored,
		}
	}
	doc := activities.DocumentInput{DocumentID: input.DocumentID}
	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	var chunkOut activities.ChunkDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkDocumentActivity", doc).Get(ctx, &chunkOut); err != nil {
		return failed(err, indexing.CodeNoChunksCreated, 0)
	}
	advance(indexing.StageChunked, chunkOut.Count)

	if err := workflow.ExecuteActivity(ctx, "ClearChunksActivity", doc).Get(ctx, nil); err != nil {
		return failed(err, indexing.CodeStoreError, 0)
	}

	stored := 0
	for start := 0; start < chunkOut.Count; start += batchSize {
		end := min(start+batchSize, chunkOut.Count)
		var out activities.ChunkRangeOutput
		err := workflow.ExecuteActivity(ctx, "IndexChunkRangeActivity", activities.ChunkRangeInput{
			DocumentID: input.DocumentID,
			Start:      start,
			End:        end,
		}).Get(ctx, &out)
		stored += out.Stored
		if err != nil {
			return failed(err, indexing.CodeStoreError, stored)
		}
		advance(indexing.StageStored, stored)
	}
	if stored == 0 {
		return failed(errors.New("no chunk could be embedded"), indexing.CodeNoChunksCreated, 0)
	}

	if err := workflow.ExecuteActivity(ctx, "MarkIndexedActivity", doc).Get(ctx, nil); err != nil {
		return failed(err, indexing.CodeRegistryError, stored)
	}
	return IndexDocumentOutput{DocumentID: input.DocumentID, Success: true, Stage: indexing.StageIndexed, ChunksCount: stored}
}

// failureCode reads the code carried as the application error type.
func failureCode(err error, fallback indexing.Code) indexing.Code {
	if temporal.IsTimeoutError(err) {
		return indexing.CodeTimeout
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		if code, ok := indexing.ParseCode(appErr.Type()); ok {
			return code
		}
	}
	return fallback
}
