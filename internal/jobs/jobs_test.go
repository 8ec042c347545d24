package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ragdocs/internal/indexing"
	"ragdocs/internal/workflows"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

type recordingRunner struct {
	mu       sync.Mutex
	ran      []string
	deadline bool
	block    chan struct{}
	tracker  indexing.Tracker
}

func (r *recordingRunner) Run(ctx context.Context, documentID string) indexing.Result {
	if r.block != nil {
		<-r.block
	}
	_, hasDeadline := ctx.Deadline()
	r.mu.Lock()
	r.ran = append(r.ran, documentID)
	r.deadline = r.deadline || hasDeadline
	r.mu.Unlock()
	if r.tracker != nil {
		_ = r.tracker.Record(ctx, indexing.Status{DocumentID: documentID, Stage: indexing.StageIndexed})
	}
	return indexing.Result{DocumentID: documentID, Success: true, Stage: indexing.StageIndexed}
}

func TestPoolRunsQueuedJobs(t *testing.T) {
	tracker := indexing.NewMemoryTracker()
	runner := &recordingRunner{tracker: tracker}
	p := NewPool(runner, tracker, 2, 8, time.Minute)
	p.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.Enqueue(context.Background(), id))
	}
	require.NoError(t, p.Close())

	require.ElementsMatch(t, []string{"a", "b", "c"}, runner.ran)
	require.True(t, runner.deadline)

	st, ok, err := p.Status(context.Background(), "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, indexing.StageIndexed, st.Stage)

	require.ErrorIs(t, p.Enqueue(context.Background(), "late"), ErrClosed)
}

func TestPoolRejectsWhenFull(t *testing.T) {
	tracker := indexing.NewMemoryTracker()
	runner := &recordingRunner{block: make(chan struct{})}
	p := NewPool(runner, tracker, 1, 1, 0)

	require.NoError(t, p.Enqueue(context.Background(), "first"))
	require.ErrorIs(t, p.Enqueue(context.Background(), "second"), ErrQueueFull)

	st, ok, err := tracker.Get(context.Background(), "second")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, indexing.StageFailed, st.Stage)

	st, _, _ = tracker.Get(context.Background(), "first")
	require.Equal(t, indexing.StageQueued, st.Stage)

	p.Start(context.Background())
	close(runner.block)
	require.NoError(t, p.Close())
	require.Equal(t, []string{"first"}, runner.ran)
}

type panickyRunner struct {
	mu      sync.Mutex
	cleaned []string
}

func (*panickyRunner) Run(context.Context, string) indexing.Result {
	panic("boom")
}

func (r *panickyRunner) Cleanup(_ context.Context, documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleaned = append(r.cleaned, documentID)
}

func TestPoolRecoversPanics(t *testing.T) {
	tracker := indexing.NewMemoryTracker()
	runner := &panickyRunner{}
	p := NewPool(runner, tracker, 1, 1, 0)
	p.Start(context.Background())
	require.NoError(t, p.Enqueue(context.Background(), "x"))
	require.NoError(t, p.Close())

	st, ok, err := tracker.Get(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, indexing.StageFailed, st.Stage)
	require.Equal(t, indexing.CodeInternal, st.Error)
	require.Equal(t, "boom", st.Detail)
	require.Equal(t, []string{"x"}, runner.cleaned)
}

func TestRunGuardedReturnsFailedResult(t *testing.T) {
	tracker := indexing.NewMemoryTracker()
	runner := &panickyRunner{}
	res := runGuarded(context.Background(), runner, tracker, "doc", time.Second)
	require.False(t, res.Success)
	require.Equal(t, indexing.StageFailed, res.Stage)
	require.Equal(t, indexing.CodeInternal, res.Error)
	require.Equal(t, []string{"doc"}, runner.cleaned)

	ok := &recordingRunner{}
	res = runGuarded(context.Background(), ok, tracker, "fine", time.Second)
	require.True(t, res.Success)
	require.Equal(t, []string{"fine"}, ok.ran)
}

func TestRedisStatusCodec(t *testing.T) {
	require.Equal(t, "ragdocs:index:status", statusKey("ragdocs:index"))

	st, err := decodeStatus([]byte(`{"document_id":"d","stage":"failed","error":"STORE_ERROR","chunks_count":4}`))
	require.NoError(t, err)
	require.Equal(t, indexing.CodeStoreError, st.Error)
	require.Equal(t, 4, st.ChunksCount)

	_, err = decodeStatus([]byte("{"))
	require.Error(t, err)
}

func TestTemporalDispatcherEnqueue(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "index-doc.pdf" && o.TaskQueue == "ragdocs" &&
			o.WorkflowIDReusePolicy == enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE &&
			o.WorkflowExecutionTimeout == 0
	}), mock.Anything, workflows.IndexDocumentInput{DocumentID: "doc.pdf", BatchSize: 50, Timeout: time.Minute}).
		Return(&mocks.WorkflowRun{}, nil).Once()

	d := NewTemporalDispatcher(c, "ragdocs", time.Minute, 50)
	require.NoError(t, d.Enqueue(context.Background(), "doc.pdf"))
	c.AssertExpectations(t)
}

func TestTemporalDispatcherEnqueueError(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))

	d := NewTemporalDispatcher(c, "ragdocs", 0, 100)
	require.Error(t, d.Enqueue(context.Background(), "doc.pdf"))
}

func TestTemporalDispatcherStatusUnknown(t *testing.T) {
	c := &mocks.Client{}
	c.On("QueryWorkflow", mock.Anything, "index-doc.pdf", "", workflows.QueryGetIndexStatus).
		Return(nil, serviceerror.NewNotFound("workflow not found"))

	d := NewTemporalDispatcher(c, "ragdocs", 0, 100)
	_, ok, err := d.Status(context.Background(), "doc.pdf")
	require.NoError(t, err)
	require.False(t, ok)
}
