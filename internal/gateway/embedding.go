package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"ragdocs/internal/providers"
	"ragdocs/internal/util"
)

// EmbeddingGateway turns text into fixed-dimension vectors, failing over
// across the configured providers in order.
type EmbeddingGateway struct {
	providers []providers.NamedEmbedProvider
	dim       int
	loadOnce  sync.Once
	audit     Auditor
}

func NewEmbeddingGateway(list []providers.NamedEmbedProvider, dim int) *EmbeddingGateway {
	return &EmbeddingGateway{providers: list, dim: dim}
}

func (g *EmbeddingGateway) SetAuditor(a Auditor) {
	g.audit = a
}

func (g *EmbeddingGateway) Dimension() int {
	return g.dim
}

func (g *EmbeddingGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: blank embedding input", util.ErrValidation)
	}
	vecs, err := g.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one slot per input. Blank inputs are never sent and
// stay nil, as do inputs that fail individually after the batch call fails.
// An error is returned only for cancellation or a dimension mismatch.
func (g *EmbeddingGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	idx := make([]int, 0, len(texts))
	inputs := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		idx = append(idx, i)
		inputs = append(inputs, t)
	}
	if len(inputs) == 0 {
		return out, nil
	}

	vecs, err := g.embed(ctx, inputs)
	if err == nil {
		for j, i := range idx {
			out[i] = vecs[j]
		}
		return out, nil
	}
	if hard := hardError(ctx, err); hard != nil {
		return nil, hard
	}
	log.Printf("gateway: batch embedding failed, retrying per item inputs=%d err=%v", len(inputs), err)

	for j, i := range idx {
		v, err := g.embed(ctx, inputs[j:j+1])
		if err != nil {
			if hard := hardError(ctx, err); hard != nil {
				return nil, hard
			}
			log.Printf("gateway: embedding dropped input=%d err=%v", i, err)
			continue
		}
		out[i] = v[0]
	}
	return out, nil
}

func hardError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, util.ErrDimensionMismatch) {
		return err
	}
	return nil
}

func (g *EmbeddingGateway) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	g.loadOnce.Do(func() {
		for _, p := range g.providers {
			loadProvider(ctx, p.Ref, p.Provider)
		}
	})
	var lastErr error = errors.New("no embedding providers configured")
	for _, p := range g.providers {
		req := providers.EmbedRequest{Inputs: inputs, Dimension: g.dim}
		vecs, info, err := p.Provider.Embed(ctx, req)
		if errors.Is(err, providers.ErrModelNotLoaded) && reloadProvider(ctx, p.Ref, p.Provider) {
			vecs, info, err = p.Provider.Embed(ctx, req)
		}
		auditCall(ctx, g.audit, "embed", p.Ref, info, len(inputs), err)
		if err != nil {
			log.Printf("gateway: embed provider failed provider=%s error_type=%s err=%v", p.Ref.Raw, providers.ClassifyError(err), err)
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err := g.checkShape(vecs, len(inputs), info); err != nil {
			return nil, err
		}
		return vecs, nil
	}
	return nil, fmt.Errorf("%w: %w", util.ErrEmbeddingUnavailable, lastErr)
}

func (g *EmbeddingGateway) checkShape(vecs [][]float32, want int, info providers.ProviderInfo) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: provider %s/%s returned %d vectors for %d inputs", util.ErrEmbeddingUnavailable, info.Name, info.Model, len(vecs), want)
	}
	for _, v := range vecs {
		if len(v) != g.dim {
			return fmt.Errorf("%w: provider %s/%s returned %d, store expects %d", util.ErrDimensionMismatch, info.Name, info.Model, len(v), g.dim)
		}
	}
	return nil
}

func loadProvider(ctx context.Context, ref providers.ProviderRef, p any) {
	l, ok := p.(providers.Loader)
	if !ok {
		return
	}
	if err := l.Load(ctx); err != nil {
		log.Printf("gateway: initial model load failed provider=%s err=%v", ref.Raw, err)
	}
}

// reloadProvider reports whether a retry is worthwhile.
func reloadProvider(ctx context.Context, ref providers.ProviderRef, p any) bool {
	l, ok := p.(providers.Loader)
	if !ok {
		return false
	}
	log.Printf("gateway: model not loaded, reloading provider=%s", ref.Raw)
	if err := l.Load(ctx); err != nil {
		log.Printf("gateway: reload failed provider=%s err=%v", ref.Raw, err)
		return false
	}
	return true
}
