package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicProvider struct {
	client      anthropic.Client
	configured  bool
	maxTokens   int64
	temperature float64
}

func NewAnthropic(apiKey string, opts ProviderOptions) *AnthropicProvider {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are owned by Client.Call
		option.WithMaxRetries(0),
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &AnthropicProvider{
		client:      anthropic.NewClient(reqOpts...),
		configured:  strings.TrimSpace(apiKey) != "",
		maxTokens:   int64(opts.MaxTokens),
		temperature: opts.Temperature,
	}
}

func (p *AnthropicProvider) Name() string     { return ProviderAnthropic }
func (p *AnthropicProvider) Configured() bool { return p.configured }

func (p *AnthropicProvider) Complete(ctx context.Context, model, prompt string) (Completion, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(p.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Completion{}, NewError(KindForStatus(apiErr.StatusCode), ProviderAnthropic, err)
		}
		return Completion{}, classifyTransportError(ProviderAnthropic, err)
	}

	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}
	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Completion{}, NewError(KindTransient, ProviderAnthropic, fmt.Errorf("no text content in response"))
	}
	return Completion{Text: text.String(), Usage: usage}, nil
}
