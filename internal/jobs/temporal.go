package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragdocs/internal/indexing"
	"ragdocs/internal/workflows"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// TemporalDispatcher starts one IndexDocumentWorkflow per document.
type TemporalDispatcher struct {
	client    client.Client
	taskQueue string
	timeout   time.Duration
	batchSize int
}

func NewTemporalDispatcher(c client.Client, taskQueue string, timeout time.Duration, batchSize int) *TemporalDispatcher {
	return &TemporalDispatcher{client: c, taskQueue: taskQueue, timeout: timeout, batchSize: batchSize}
}

func (d *TemporalDispatcher) Enqueue(ctx context.Context, documentID string) error {
	opts := client.StartWorkflowOptions{
		ID:                    workflows.WorkflowID(documentID),
		TaskQueue:             d.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}
	// The deadline is enforced inside the workflow so cleanup still runs.
	_, err := d.client.ExecuteWorkflow(ctx, opts, workflows.IndexDocumentWorkflow, workflows.IndexDocumentInput{
		DocumentID: documentID,
		BatchSize:  d.batchSize,
		Timeout:    d.timeout,
	})
	if err != nil {
		return fmt.Errorf("start indexing workflow %s: %w", documentID, err)
	}
	return nil
}

func (d *TemporalDispatcher) Status(ctx context.Context, documentID string) (indexing.Status, bool, error) {
	val, err := d.client.QueryWorkflow(ctx, workflows.WorkflowID(documentID), "", workflows.QueryGetIndexStatus)
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			return indexing.Status{}, false, nil
		}
		return indexing.Status{}, false, fmt.Errorf("query indexing workflow %s: %w", documentID, err)
	}
	var st indexing.Status
	if err := val.Get(&st); err != nil {
		return indexing.Status{}, false, fmt.Errorf("decode indexing status %s: %w", documentID, err)
	}
	return st, true, nil
}
