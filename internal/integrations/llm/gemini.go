package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type GeminiProvider struct {
	client      *genai.Client
	maxTokens   int32
	temperature float32
}

// NewGemini builds the Gemini provider. Without an API key it returns an
// unconfigured provider and no error.
func NewGemini(ctx context.Context, apiKey string, opts ProviderOptions) (*GeminiProvider, error) {
	p := &GeminiProvider{
		maxTokens:   int32(opts.MaxTokens),
		temperature: float32(opts.Temperature),
	}
	if strings.TrimSpace(apiKey) == "" {
		return p, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.client = client
	return p, nil
}

func (p *GeminiProvider) Name() string     { return ProviderGemini }
func (p *GeminiProvider) Configured() bool { return p.client != nil }

func (p *GeminiProvider) Complete(ctx context.Context, model, prompt string) (Completion, error) {
	if p.client == nil {
		return Completion{}, NewError(KindUnconfigured, ProviderGemini, fmt.Errorf("no api key"))
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.temperature),
	}
	if p.maxTokens > 0 {
		cfg.MaxOutputTokens = p.maxTokens
	}
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return Completion{}, classifyGeminiError(err)
	}
	text := resp.Text()
	if text == "" {
		return Completion{}, NewError(KindTransient, ProviderGemini, fmt.Errorf("empty response"))
	}
	var usage Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return Completion{Text: text, Usage: usage}, nil
}

func classifyGeminiError(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return NewError(KindForStatus(apiErr.Code), ProviderGemini, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return NewError(KindForStatus(apiErrPtr.Code), ProviderGemini, err)
	}
	return classifyTransportError(ProviderGemini, err)
}
