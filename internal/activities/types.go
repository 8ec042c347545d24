package activities

type DocumentInput struct {
	DocumentID string `json:"document_id"`
}

// ChunkDocumentOutput carries only the chunk count; chunk text stays out of
// workflow history.
type ChunkDocumentOutput struct {
	Count int `json:"count"`
}

// ChunkRangeInput addresses chunks [Start, End) of a document.
type ChunkRangeInput struct {
	DocumentID string `json:"document_id"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

type ChunkRangeOutput struct {
	Stored  int `json:"stored"`
	Dropped int `json:"dropped"`
}
