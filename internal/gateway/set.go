package gateway

import (
	"fmt"

	"ragdocs/internal/config"
	"ragdocs/internal/providers"
)

// Set holds the model handles shared by the indexing pipeline and the
// answer composer. Build it once at startup and pass it down.
type Set struct {
	Embedder  *EmbeddingGateway
	Generator *GenerationGateway
}

func NewSet(cfg config.Config) (*Set, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	return &Set{
		Embedder:  NewEmbeddingGateway(pm.EmbedProviders(), cfg.EmbedDim),
		Generator: NewGenerationGateway(pm.LLMProviders()),
	}, nil
}

// SetAuditor records every provider attempt made through the set.
func (s *Set) SetAuditor(a Auditor) {
	s.Embedder.SetAuditor(a)
	s.Generator.SetAuditor(a)
}
