package workflows

import (
	"context"
	"testing"
	"time"

	"ragdocs/internal/activities"
	"ragdocs/internal/indexing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newIndexEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(IndexDocumentWorkflow)
	registerActivityName(env, "ChunkDocumentActivity", func(context.Context, activities.DocumentInput) (activities.ChunkDocumentOutput, error) {
		return activities.ChunkDocumentOutput{}, nil
	})
	registerActivityName(env, "ClearChunksActivity", func(context.Context, activities.DocumentInput) error { return nil })
	registerActivityName(env, "IndexChunkRangeActivity", func(context.Context, activities.ChunkRangeInput) (activities.ChunkRangeOutput, error) {
		return activities.ChunkRangeOutput{}, nil
	})
	registerActivityName(env, "MarkIndexedActivity", func(context.Context, activities.DocumentInput) error { return nil })
	registerActivityName(env, "CleanupBlobActivity", func(context.Context, activities.DocumentInput) error { return nil })
	return env
}

func TestIndexDocumentWorkflowSuccess(t *testing.T) {
	env := newIndexEnv(t)
	doc := activities.DocumentInput{DocumentID: "doc-1"}

	env.OnActivity("ChunkDocumentActivity", mock.Anything, doc).Return(activities.ChunkDocumentOutput{Count: 3}, nil)
	env.OnActivity("ClearChunksActivity", mock.Anything, doc).Return(nil).Once()
	env.OnActivity("IndexChunkRangeActivity", mock.Anything, activities.ChunkRangeInput{DocumentID: "doc-1", Start: 0, End: 2}).
		Return(activities.ChunkRangeOutput{Stored: 2}, nil).Once()
	env.OnActivity("IndexChunkRangeActivity", mock.Anything, activities.ChunkRangeInput{DocumentID: "doc-1", Start: 2, End: 3}).
		Return(activities.ChunkRangeOutput{Stored: 1}, nil).Once()
	env.OnActivity("MarkIndexedActivity", mock.Anything, doc).Return(nil).Once()
	env.OnActivity("CleanupBlobActivity", mock.Anything, doc).Return(nil).Once()

	env.ExecuteWorkflow(IndexDocumentWorkflow, IndexDocumentInput{DocumentID: "doc-1", BatchSize: 2, Timeout: time.Hour})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out IndexDocumentOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.True(t, out.Success)
	require.Equal(t, indexing.StageIndexed, out.Stage)
	require.Equal(t, 3, out.ChunksCount)

	val, err := env.QueryWorkflow(QueryGetIndexStatus)
	require.NoError(t, err)
	var st indexing.Status
	require.NoError(t, val.Get(&st))
	require.Equal(t, indexing.StageIndexed, st.Stage)
	env.AssertExpectations(t)
}

func TestIndexDocumentWorkflowFileNotFound(t *testing.T) {
	env := newIndexEnv(t)
	env.OnActivity("ChunkDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkDocumentOutput{}, temporal.NewNonRetryableApplicationError("raw file missing", string(indexing.CodeFileNotFound), nil))
	env.OnActivity("CleanupBlobActivity", mock.Anything, mock.Anything).Return(nil).Once()

	env.ExecuteWorkflow(IndexDocumentWorkflow, IndexDocumentInput{DocumentID: "doc-1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out IndexDocumentOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.False(t, out.Success)
	require.Equal(t, indexing.StageFailed, out.Stage)
	require.Equal(t, indexing.CodeFileNotFound, out.Error)
	env.AssertNotCalled(t, "MarkIndexedActivity", mock.Anything, mock.Anything)
}

func TestIndexDocumentWorkflowAllEmbeddingsDropped(t *testing.T) {
	env := newIndexEnv(t)
	env.OnActivity("ChunkDocumentActivity", mock.Anything, mock.Anything).Return(activities.ChunkDocumentOutput{Count: 2}, nil)
	env.OnActivity("ClearChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("IndexChunkRangeActivity", mock.Anything, mock.Anything).Return(activities.ChunkRangeOutput{Dropped: 2}, nil)
	env.OnActivity("CleanupBlobActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(IndexDocumentWorkflow, IndexDocumentInput{DocumentID: "doc-1"})
	require.NoError(t, env.GetWorkflowError())

	var out IndexDocumentOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, indexing.CodeNoChunksCreated, out.Error)
	env.AssertNotCalled(t, "MarkIndexedActivity", mock.Anything, mock.Anything)
}

func TestIndexDocumentWorkflowStoreError(t *testing.T) {
	env := newIndexEnv(t)
	env.OnActivity("ChunkDocumentActivity", mock.Anything, mock.Anything).Return(activities.ChunkDocumentOutput{Count: 1}, nil)
	env.OnActivity("ClearChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("IndexChunkRangeActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkRangeOutput{}, temporal.NewApplicationError("qdrant down", string(indexing.CodeStoreError)))
	env.OnActivity("CleanupBlobActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(IndexDocumentWorkflow, IndexDocumentInput{DocumentID: "doc-1"})
	require.NoError(t, env.GetWorkflowError())

	var out IndexDocumentOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.False(t, out.Success)
	require.Equal(t, indexing.CodeStoreError, out.Error)
}

func TestIndexDocumentWorkflowDeadlineCleansUp(t *testing.T) {
	env := newIndexEnv(t)
	doc := activities.DocumentInput{DocumentID: "doc-1"}
	env.OnActivity("ChunkDocumentActivity", mock.Anything, doc).Return(activities.ChunkDocumentOutput{Count: 1}, nil)
	env.OnActivity("ClearChunksActivity", mock.Anything, doc).Return(nil)
	env.OnActivity("IndexChunkRangeActivity", mock.Anything, mock.Anything).
		After(4*time.Minute).
		Return(activities.ChunkRangeOutput{Stored: 1}, nil)
	env.OnActivity("CleanupBlobActivity", mock.Anything, doc).Return(nil).Once()

	env.ExecuteWorkflow(IndexDocumentWorkflow, IndexDocumentInput{DocumentID: "doc-1", Timeout: 2 * time.Minute})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out IndexDocumentOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.False(t, out.Success)
	require.Equal(t, indexing.StageFailed, out.Stage)
	require.Equal(t, indexing.CodeTimeout, out.Error)

	val, err := env.QueryWorkflow(QueryGetIndexStatus)
	require.NoError(t, err)
	var st indexing.Status
	require.NoError(t, val.Get(&st))
	require.Equal(t, indexing.CodeTimeout, st.Error)
	require.True(t, st.Terminal())

	env.AssertCalled(t, "CleanupBlobActivity", mock.Anything, doc)
	env.AssertNotCalled(t, "MarkIndexedActivity", mock.Anything, mock.Anything)
}

func TestWorkflowID(t *testing.T) {
	require.Equal(t, "index-abc.pdf", WorkflowID("abc.pdf"))
}
