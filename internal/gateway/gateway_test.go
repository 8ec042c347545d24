package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ragdocs/internal/config"
	"ragdocs/internal/models"
	"ragdocs/internal/providers"
	"ragdocs/internal/util"

	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	dim       int
	calls     int
	loads     int
	notLoaded int
	failBatch bool
	failText  string
	err       error
}

func (f *fakeEmbedder) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	f.calls++
	info := providers.ProviderInfo{Name: "fake"}
	if f.notLoaded > 0 {
		f.notLoaded--
		return nil, info, providers.ErrModelNotLoaded
	}
	if f.err != nil {
		return nil, info, f.err
	}
	if f.failBatch && len(req.Inputs) > 1 {
		return nil, info, errors.New("batch too large")
	}
	out := make([][]float32, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		if in == f.failText {
			return nil, info, errors.New("cannot embed")
		}
		v := make([]float32, f.dim)
		v[0] = float32(len(in))
		out = append(out, v)
	}
	return out, info, nil
}

func (f *fakeEmbedder) Load(context.Context) error {
	f.loads++
	return nil
}

func embedList(ps ...providers.EmbeddingProvider) []providers.NamedEmbedProvider {
	out := make([]providers.NamedEmbedProvider, 0, len(ps))
	for i, p := range ps {
		name := "fake" + string(rune('a'+i))
		out = append(out, providers.NamedEmbedProvider{Ref: providers.ProviderRef{Raw: name, Name: name}, Provider: p})
	}
	return out
}

func TestEmbedLoadsOnceAndReloadsOnNotLoaded(t *testing.T) {
	f := &fakeEmbedder{dim: 4, notLoaded: 1}
	g := NewEmbeddingGateway(embedList(f), 4)

	v, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, v, 4)
	require.Equal(t, 2, f.loads, "initial load plus one reload")

	_, err = g.Embed(context.Background(), "again")
	require.NoError(t, err)
	require.Equal(t, 2, f.loads)
}

func TestEmbedReportsUnavailableAfterSingleReload(t *testing.T) {
	f := &fakeEmbedder{dim: 4, notLoaded: 5}
	g := NewEmbeddingGateway(embedList(f), 4)
	_, err := g.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, util.ErrEmbeddingUnavailable)
	require.ErrorIs(t, err, util.ErrCapabilityUnavailable)
	require.Equal(t, 2, f.calls)
}

func TestEmbedFailsOverToNextProvider(t *testing.T) {
	broken := &fakeEmbedder{dim: 4, err: errors.New("status 503: unavailable")}
	ok := &fakeEmbedder{dim: 4}
	g := NewEmbeddingGateway(embedList(broken, ok), 4)
	_, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 1, ok.calls)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	g := NewEmbeddingGateway(embedList(&fakeEmbedder{dim: 3}), 4)
	_, err := g.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, util.ErrDimensionMismatch)

	_, err = g.EmbedBatch(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, util.ErrDimensionMismatch)
}

func TestEmbedRejectsBlank(t *testing.T) {
	g := NewEmbeddingGateway(embedList(&fakeEmbedder{dim: 4}), 4)
	_, err := g.Embed(context.Background(), "  ")
	require.ErrorIs(t, err, util.ErrValidation)
}

func TestEmbedBatchSkipsBlankInputs(t *testing.T) {
	f := &fakeEmbedder{dim: 4}
	g := NewEmbeddingGateway(embedList(f), 4)
	out, err := g.EmbedBatch(context.Background(), []string{"one", " ", "three"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.NotNil(t, out[0])
	require.Nil(t, out[1])
	require.Equal(t, float32(5), out[2][0])
	require.Equal(t, 1, f.calls)
}

func TestEmbedBatchFallsBackPerItem(t *testing.T) {
	f := &fakeEmbedder{dim: 4, failBatch: true, failText: "bad"}
	g := NewEmbeddingGateway(embedList(f), 4)
	out, err := g.EmbedBatch(context.Background(), []string{"good", "bad", "fine"})
	require.NoError(t, err)
	require.NotNil(t, out[0])
	require.Nil(t, out[1])
	require.NotNil(t, out[2])
}

func TestEmbedBatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewEmbeddingGateway(embedList(&fakeEmbedder{dim: 4, err: context.Canceled}), 4)
	_, err := g.EmbedBatch(ctx, []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
}

type fakeLLM struct {
	text string
	err  error
	got  providers.GenerateRequest
}

func (f *fakeLLM) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	f.got = req
	if f.err != nil {
		return providers.GenerateResponse{}, providers.ProviderInfo{Name: "fake"}, f.err
	}
	return providers.GenerateResponse{Text: f.text}, providers.ProviderInfo{Name: "fake"}, nil
}

func llmList(ps ...providers.LLMProvider) []providers.NamedLLMProvider {
	out := make([]providers.NamedLLMProvider, 0, len(ps))
	for _, p := range ps {
		out = append(out, providers.NamedLLMProvider{Ref: providers.ProviderRef{Raw: "fake", Name: "fake"}, Provider: p})
	}
	return out
}

func TestGenerateStripsPromptEcho(t *testing.T) {
	prompt := "Context:\n[1] x\n\nQuestion: q\n\nAnswer:"
	f := &fakeLLM{text: prompt + "  The answer. "}
	g := NewGenerationGateway(llmList(f))
	out, err := g.Generate(context.Background(), prompt, GenerateParams{MaxTokens: 64, Temperature: 0.1, TopP: 0.9, Stop: []string{"###"}})
	require.NoError(t, err)
	require.Equal(t, "The answer.", out)
	require.Equal(t, 64, f.got.MaxTokens)
	require.Equal(t, []string{"###"}, f.got.Stop)
}

func TestGenerateUnavailable(t *testing.T) {
	g := NewGenerationGateway(llmList(&fakeLLM{err: errors.New("boom")}))
	_, err := g.Generate(context.Background(), "p", GenerateParams{})
	require.ErrorIs(t, err, util.ErrGenerationUnavailable)
	require.True(t, strings.Contains(err.Error(), "boom"))

	_, err = NewGenerationGateway(nil).Generate(context.Background(), "p", GenerateParams{})
	require.ErrorIs(t, err, util.ErrGenerationUnavailable)
}

func TestNewSetWithMockProviders(t *testing.T) {
	set, err := NewSet(config.Config{EmbedDim: 32, LLMProviders: "mock", EmbedProviders: "mock"})
	require.NoError(t, err)
	v, err := set.Embedder.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Len(t, v, 32)
	out, err := set.Generator.Generate(context.Background(), "[1] ctx", GenerateParams{})
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

type recordingAuditor struct {
	calls []models.ModelCall
	err   error
}

func (r *recordingAuditor) Insert(_ context.Context, call models.ModelCall) error {
	r.calls = append(r.calls, call)
	return r.err
}

func TestGatewaysAuditEveryAttempt(t *testing.T) {
	broken := &fakeEmbedder{dim: 4, err: errors.New("status 503: unavailable")}
	eg := NewEmbeddingGateway(embedList(broken, &fakeEmbedder{dim: 4}), 4)
	audit := &recordingAuditor{}
	eg.SetAuditor(audit)

	_, err := eg.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, audit.calls, 2)
	require.Equal(t, "embed", audit.calls[0].Operation)
	require.Equal(t, "error", audit.calls[0].Status)
	require.Equal(t, "fakea", audit.calls[0].Provider)
	require.Equal(t, "ok", audit.calls[1].Status)
	require.Equal(t, 2, audit.calls[1].Inputs)

	failing := &recordingAuditor{err: errors.New("db down")}
	gg := NewGenerationGateway(llmList(&fakeLLM{text: "answer"}))
	gg.SetAuditor(failing)
	out, err := gg.Generate(context.Background(), "p", GenerateParams{})
	require.NoError(t, err)
	require.Equal(t, "answer", out)
	require.Len(t, failing.calls, 1)
	require.Equal(t, "generate", failing.calls[0].Operation)
}
