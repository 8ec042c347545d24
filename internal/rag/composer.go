package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ragdocs/internal/chunkstore"
	"ragdocs/internal/config"
	"ragdocs/internal/gateway"
	"ragdocs/internal/models"
	"ragdocs/internal/util"
)

const NoResultsAnswer = "Sorry, I could not find any information related to your question in the indexed documents."

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string, params gateway.GenerateParams) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, vector []float32, opts chunkstore.SearchOptions) ([]models.RetrievalResult, error)
}

type Options struct {
	DefaultTopK int
	MaxTopK     int
	// ScoreThreshold applies to Answer and Chat; nil disables filtering.
	ScoreThreshold *float64
	Generate       gateway.GenerateParams
}

func OptionsFromConfig(cfg config.Config) Options {
	threshold := cfg.ScoreThreshold
	return Options{
		DefaultTopK:    cfg.DefaultTopK,
		MaxTopK:        cfg.MaxTopK,
		ScoreThreshold: &threshold,
		Generate: gateway.GenerateParams{
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		},
	}
}

// Composer answers questions from retrieved chunks. It is safe for
// concurrent use.
type Composer struct {
	embedder  Embedder
	store     Searcher
	generator Generator
	opts      Options
}

func NewComposer(embedder Embedder, store Searcher, generator Generator, opts Options) *Composer {
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = models.DefaultMaxTopK
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = min(5, opts.MaxTopK)
	}
	return &Composer{embedder: embedder, store: store, generator: generator, opts: opts}
}

// MaxTopK is the largest top_k a caller may request.
func (c *Composer) MaxTopK() int {
	return c.opts.MaxTopK
}

// query validates input; topK 0 selects the default.
func (c *Composer) query(text string, topK int) (models.SearchQuery, error) {
	if topK == 0 {
		topK = c.opts.DefaultTopK
	}
	return models.NewSearchQuery(text, topK, c.opts.MaxTopK)
}

// Retrieve returns ranked chunks without generating an answer. No score
// threshold is applied unless minScore is set.
func (c *Composer) Retrieve(ctx context.Context, text string, topK int, minScore *float64) ([]models.RetrievalResult, error) {
	q, err := c.query(text, topK)
	if err != nil {
		return nil, err
	}
	return c.search(ctx, q, minScore)
}

func (c *Composer) search(ctx context.Context, q models.SearchQuery, threshold *float64) ([]models.RetrievalResult, error) {
	vec, err := c.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", util.ErrRetrievalFailed, err)
	}
	results, err := c.store.Search(ctx, vec, chunkstore.SearchOptions{TopK: q.TopK, ScoreThreshold: threshold})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrRetrievalFailed, err)
	}
	return results, nil
}

func (c *Composer) Answer(ctx context.Context, text string, topK int) (models.Answer, error) {
	return c.Chat(ctx, text, nil, topK)
}

// Chat retrieves with the message alone; history only shapes the prompt.
func (c *Composer) Chat(ctx context.Context, message string, history []models.ChatTurn, topK int) (models.Answer, error) {
	q, err := c.query(message, topK)
	if err != nil {
		return models.Answer{}, err
	}
	results, err := c.search(ctx, q, c.opts.ScoreThreshold)
	if err != nil {
		return models.Answer{}, err
	}
	if len(results) == 0 {
		log.Printf("rag: no results query=%q", util.Snippet(q.Text, 50))
		return models.Answer{Answer: NoResultsAnswer, Sources: []models.Source{}}, nil
	}

	kept := Dedupe(results)
	block, sources := FormatContext(kept)
	prompt := RenderPrompt(block, history, q.Text)

	answer, err := c.generator.Generate(ctx, prompt, c.opts.Generate)
	if err != nil {
		return models.Answer{}, fmt.Errorf("%w: %w", util.ErrGenerationFailed, err)
	}
	log.Printf("rag: answered query=%q sources=%d", util.Snippet(q.Text, 50), len(sources))
	return models.Answer{Answer: strings.TrimSpace(answer), Sources: sources}, nil
}
