package models

import (
	"strings"
	"time"

	"ragdocs/internal/util"
)

type Document struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	UploadTime time.Time      `json:"upload_time"`
	Metadata   map[string]any `json:"metadata"`
	Indexed    bool           `json:"indexed"`
}

// MarkIndexed flips Indexed to true. It never resets the flag.
func (d *Document) MarkIndexed() {
	d.Indexed = true
}

// DocumentChunk is an immutable excerpt of a document. Page is nil for
// sources without pagination.
type DocumentChunk struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	DocumentID string `json:"document_id"`
	Page       *int   `json:"page,omitempty"`
	Index      int    `json:"index"`
}

func NewDocumentChunk(text, source, documentID string, page *int, index int) (DocumentChunk, error) {
	if strings.TrimSpace(text) == "" {
		return DocumentChunk{}, util.ErrInvalidChunk
	}
	return DocumentChunk{
		Text:       text,
		Source:     source,
		DocumentID: documentID,
		Page:       page,
		Index:      index,
	}, nil
}

type EmbeddedChunk struct {
	Chunk  DocumentChunk `json:"chunk"`
	Vector []float32     `json:"vector"`
}

// DefaultMaxTopK bounds top_k when no deployment limit is configured.
const DefaultMaxTopK = 50

type SearchQuery struct {
	Text string
	TopK int
}

// NewSearchQuery rejects blank text and top_k outside [1, maxTopK]. A
// non-positive maxTopK means DefaultMaxTopK.
func NewSearchQuery(text string, topK, maxTopK int) (SearchQuery, error) {
	if maxTopK <= 0 {
		maxTopK = DefaultMaxTopK
	}
	if strings.TrimSpace(text) == "" {
		return SearchQuery{}, util.ErrEmptyQuery
	}
	if topK <= 0 || topK > maxTopK {
		return SearchQuery{}, util.ErrInvalidTopK
	}
	return SearchQuery{Text: strings.TrimSpace(text), TopK: topK}, nil
}

type RetrievalResult struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	DocumentID string  `json:"document_id"`
	Page       *int    `json:"page,omitempty"`
	Index      *int    `json:"index,omitempty"`
	Score      float64 `json:"score"`
}

type Source struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Page       *int    `json:"page,omitempty"`
	Score      float64 `json:"score"`
}

type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func IntPtr(v int) *int {
	return &v
}

// ModelCall is one provider attempt made by the embedding or generation
// gateway.
type ModelCall struct {
	Operation string `json:"operation"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Status    string `json:"status"`
	ErrorType string `json:"error_type,omitempty"`
	Inputs    int    `json:"inputs"`
}
