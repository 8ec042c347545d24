package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OllamaProvider talks to a local Ollama server for both embeddings and
// completions. Example embedding model: nomic-embed-text.
type OllamaProvider struct {
	alias      string
	baseURL    string
	embedModel string
	llmModel   string
	client     *http.Client
	limiter    *rate.Limiter
}

func NewOllamaProvider(alias string, rps float64) *OllamaProvider {
	baseURL := strings.TrimSpace(os.Getenv("RAGDOCS_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	llmModel := strings.TrimSpace(os.Getenv("RAGDOCS_OLLAMA_LLM_MODEL"))
	if llmModel == "" {
		llmModel = "llama3.2"
	}
	return &OllamaProvider{
		alias:      alias,
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: resolveOllamaEmbedModel(alias),
		llmModel:   llmModel,
		client:     &http.Client{Timeout: 120 * time.Second},
		limiter:    newLimiter(rps),
	}
}

func (o *OllamaProvider) embedInfo() ProviderInfo {
	return ProviderInfo{Name: "ollama", Model: o.embedModel, Key: o.alias}
}

func (o *OllamaProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if len(req.Inputs) == 0 {
		return nil, o.embedInfo(), fmt.Errorf("no embedding inputs")
	}
	out := make([][]float32, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := o.post(ctx, "/api/embeddings", map[string]any{"model": o.embedModel, "prompt": text}, &parsed); err != nil {
			return nil, o.embedInfo(), fmt.Errorf("ollama embedding: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, o.embedInfo(), fmt.Errorf("ollama returned empty embedding")
		}
		out = append(out, parsed.Embedding)
	}
	return out, o.embedInfo(), nil
}

func (o *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.llmModel, Key: o.alias}
	options := map[string]any{
		"num_predict": req.MaxTokens,
		"temperature": req.Temperature,
		"top_p":       req.TopP,
	}
	if len(req.Stop) > 0 {
		options["stop"] = req.Stop
	}
	var parsed struct {
		Response string `json:"response"`
	}
	err := o.post(ctx, "/api/generate", map[string]any{
		"model":   o.llmModel,
		"prompt":  req.Prompt,
		"stream":  false,
		"options": options,
	}, &parsed)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("ollama generate: %w", err)
	}
	return GenerateResponse{Text: parsed.Response}, info, nil
}

// Load pulls both configured models so a missing model can be fetched once
// instead of failing every request.
func (o *OllamaProvider) Load(ctx context.Context) error {
	for _, model := range []string{o.embedModel, o.llmModel} {
		if err := o.post(ctx, "/api/pull", map[string]any{"model": model, "stream": false}, nil); err != nil {
			return fmt.Errorf("ollama pull %s: %w", model, err)
		}
	}
	return nil
}

func (o *OllamaProvider) post(ctx context.Context, path string, body map[string]any, out any) error {
	if err := waitLimiter(ctx, o.limiter); err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(string(raw)), "not found") {
		return fmt.Errorf("%w: %s", ErrModelNotLoaded, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		key := "RAGDOCS_OLLAMA_EMBED_MODEL_" + sanitizeEnvToken(alias)
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		switch strings.ToLower(alias) {
		case "nomic":
			return "nomic-embed-text"
		case "bge":
			return "bge-m3"
		}
		// ollama:nomic-embed-text names the model directly.
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	if v := strings.TrimSpace(os.Getenv("RAGDOCS_OLLAMA_EMBED_MODEL")); v != "" {
		return v
	}
	return "nomic-embed-text"
}

func sanitizeEnvToken(s string) string {
	return strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(strings.ToUpper(s))
}
