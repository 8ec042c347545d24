package workflows

import (
	"time"

	"ragdocs/internal/indexing"
)

type IndexDocumentInput struct {
	DocumentID string `json:"document_id"`
	BatchSize  int    `json:"batch_size"`
	// Timeout bounds the run; zero means unbounded. On expiry the workflow
	// still cleans up and reports TIMEOUT.
	Timeout time.Duration `json:"timeout"`
}

type IndexDocumentOutput = indexing.Result
