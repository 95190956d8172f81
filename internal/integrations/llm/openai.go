package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"
)

const defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"

// OpenAIProvider speaks the Chat Completions API. DeepSeek uses the same wire
// format behind a different base URL.
type OpenAIProvider struct {
	name        string
	client      openai.Client
	configured  bool
	maxTokens   int64
	temperature float64
}

func NewOpenAI(apiKey string, opts ProviderOptions) *OpenAIProvider {
	return newOpenAICompatible(ProviderOpenAI, apiKey, opts)
}

func NewDeepSeek(apiKey string, opts ProviderOptions) *OpenAIProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultDeepSeekBaseURL
	}
	return newOpenAICompatible(ProviderDeepSeek, apiKey, opts)
}

func newOpenAICompatible(name, apiKey string, opts ProviderOptions) *OpenAIProvider {
	reqOpts := []oaioption.RequestOption{
		oaioption.WithAPIKey(apiKey),
		oaioption.WithMaxRetries(0),
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, oaioption.WithHTTPClient(opts.HTTPClient))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, oaioption.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIProvider{
		name:        name,
		client:      openai.NewClient(reqOpts...),
		configured:  strings.TrimSpace(apiKey) != "",
		maxTokens:   int64(opts.MaxTokens),
		temperature: opts.Temperature,
	}
}

func (p *OpenAIProvider) Name() string     { return p.name }
func (p *OpenAIProvider) Configured() bool { return p.configured }

func (p *OpenAIProvider) Complete(ctx context.Context, model, prompt string) (Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(p.temperature),
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(p.maxTokens)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Completion{}, NewError(KindForStatus(apiErr.StatusCode), p.name, err)
		}
		return Completion{}, classifyTransportError(p.name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Completion{}, NewError(KindTransient, p.name, fmt.Errorf("no choices in response"))
	}
	return Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
