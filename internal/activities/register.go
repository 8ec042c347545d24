package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ChunkDocumentActivity)
	w.RegisterActivity(a.ClearChunksActivity)
	w.RegisterActivity(a.IndexChunkRangeActivity)
	w.RegisterActivity(a.MarkIndexedActivity)
	w.RegisterActivity(a.CleanupBlobActivity)
}
