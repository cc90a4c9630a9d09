package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const DefaultAnthropicModel = string(anthropic.ModelClaudeHaiku4_5)

type AnthropicOptions struct {
	APIKey  string
	Model   string
	BaseURL string
}

// AnthropicPromptProvider is the Messages API rendition of the LLM prompt provider.
type AnthropicPromptProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropicPromptProvider(opts AnthropicOptions) *AnthropicPromptProvider {
	if opts.Model == "" {
		opts.Model = DefaultAnthropicModel
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	slog.Info("[AnthropicProvider] Anthropic client initialized",
		slog.String("model", opts.Model))

	return &AnthropicPromptProvider{
		client: anthropic.NewClient(clientOpts...),
		model:  anthropic.Model(opts.Model),
	}
}

func (p *AnthropicPromptProvider) ID() models.ProviderID { return Anthropic }

func (p *AnthropicPromptProvider) Analyze(ctx context.Context, text string) (models.ProviderResult, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: llmMaxOutputTokens,
		System: []anthropic.TextBlockParam{
			{Text: llmSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return models.ProviderResult{}, NewProviderError(Anthropic, KindForStatus(apiErr.StatusCode), err)
		}
		return models.ProviderResult{}, Classify(Anthropic, err)
	}

	if resp.StopReason == anthropic.StopReasonMaxTokens {
		return models.ProviderResult{}, NewProviderError(Anthropic, KindMalformed,
			fmt.Errorf("response is incomplete (reason = %s)", resp.StopReason))
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}

	result, err := parseLLMOutput(Anthropic, out.String())
	if err != nil {
		return models.ProviderResult{}, NewProviderError(Anthropic, KindMalformed, err)
	}
	return result, nil
}
