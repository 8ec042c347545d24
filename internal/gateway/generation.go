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

type GenerateParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

type GenerationGateway struct {
	providers []providers.NamedLLMProvider
	loadOnce  sync.Once
	audit     Auditor
}

func NewGenerationGateway(list []providers.NamedLLMProvider) *GenerationGateway {
	return &GenerationGateway{providers: list}
}

func (g *GenerationGateway) SetAuditor(a Auditor) {
	g.audit = a
}

// Generate returns the model output with any verbatim echo of the prompt removed.
func (g *GenerationGateway) Generate(ctx context.Context, prompt string, params GenerateParams) (string, error) {
	g.loadOnce.Do(func() {
		for _, p := range g.providers {
			loadProvider(ctx, p.Ref, p.Provider)
		}
	})
	req := providers.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		Stop:        params.Stop,
	}
	var lastErr error = errors.New("no llm providers configured")
	for _, p := range g.providers {
		resp, info, err := p.Provider.Generate(ctx, req)
		if errors.Is(err, providers.ErrModelNotLoaded) && reloadProvider(ctx, p.Ref, p.Provider) {
			resp, info, err = p.Provider.Generate(ctx, req)
		}
		auditCall(ctx, g.audit, "generate", p.Ref, info, 1, err)
		if err != nil {
			log.Printf("gateway: llm provider failed provider=%s error_type=%s err=%v", p.Ref.Raw, providers.ClassifyError(err), err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return stripEcho(resp.Text, prompt), nil
	}
	return "", fmt.Errorf("%w: %w", util.ErrGenerationUnavailable, lastErr)
}

func stripEcho(out, prompt string) string {
	if prompt != "" {
		out = strings.Replace(out, prompt, "", 1)
	}
	return strings.TrimSpace(out)
}
