package chunkstore

import (
	"context"
	"fmt"
	"sort"

	"ragdocs/internal/models"
)

type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceDot    Distance = "dot"
	DistanceEuclid Distance = "euclid"
)

func ParseDistance(s string) (Distance, error) {
	switch d := Distance(s); d {
	case DistanceCosine, DistanceDot, DistanceEuclid:
		return d, nil
	case "":
		return DistanceCosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

type SearchOptions struct {
	TopK int
	// ScoreThreshold excludes results scoring below it when set.
	ScoreThreshold *float64
}

// Store persists chunk vectors with their payload and answers similarity
// queries. All errors wrap util.ErrStore.
type Store interface {
	// EnsureSchema is idempotent and safe to race from several processes.
	EnsureSchema(ctx context.Context, dim int, distance Distance) error
	// UpsertBatch writes every chunk under a fresh identifier. On error the
	// caller must assume nothing from the batch was committed.
	UpsertBatch(ctx context.Context, chunks []models.EmbeddedChunk) error
	// Search returns results by descending score, newest first on ties.
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]models.RetrievalResult, error)
	// DeleteByDocumentID is not an error when nothing matches.
	DeleteByDocumentID(ctx context.Context, documentID string) error
	FindByDocumentID(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	Close() error
}

// scored pairs a result with its insertion sequence for tie-breaking.
type scored struct {
	result models.RetrievalResult
	seq    int64
}

func rank(items []scored, opts SearchOptions) []models.RetrievalResult {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].result.Score != items[j].result.Score {
			return items[i].result.Score > items[j].result.Score
		}
		return items[i].seq > items[j].seq
	})
	out := make([]models.RetrievalResult, 0, len(items))
	for _, it := range items {
		if opts.ScoreThreshold != nil && it.result.Score < *opts.ScoreThreshold {
			continue
		}
		out = append(out, it.result)
		if opts.TopK > 0 && len(out) == opts.TopK {
			break
		}
	}
	return out
}

// sortForDisplay orders chunks by page then position within the page.
func sortForDisplay(chunks []models.DocumentChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		pi, pj := pageOf(chunks[i]), pageOf(chunks[j])
		if pi != pj {
			return pi < pj
		}
		return chunks[i].Index < chunks[j].Index
	})
}

func pageOf(c models.DocumentChunk) int {
	if c.Page == nil {
		return 0
	}
	return *c.Page
}
