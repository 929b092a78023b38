// Package gemini implements the auxiliary analysis model on the Gemini
// API. The orchestration core calls it once per turn for background call
// analysis; latency matters more than depth, so the default model is a
// small, fast one.
package gemini

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/sundial-care/sundial/pkg/core/types"
)

// DefaultModel is the analysis model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// DefaultMaxTokens bounds one analysis completion if the request does
// not set its own limit.
const DefaultMaxTokens = 512

// Provider is a core.AuxiliaryModel backed by the Gemini API.
type Provider struct {
	client *genai.Client
	model  string

	temperature *float32
}

// New creates a Gemini provider. The API key is required; the model and
// generation settings come from options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}

	p := &Provider{model: DefaultModel}
	for _, opt := range opts {
		opt(p)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.model
}

// CreateCompletion sends one single-shot analysis prompt and returns the
// raw model text. Context cancellation and deadlines are honored by the
// underlying client.
func (p *Provider) CreateCompletion(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     p.temperature,
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini: empty completion from %s", p.model)
	}

	return &types.CompletionResponse{
		Text:      text,
		Model:     p.model,
		CreatedAt: time.Now(),
	}, nil
}
