package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
}

// LLMPromptProvider asks an OpenAI model for sentiment and keywords in one JSON reply.
type LLMPromptProvider struct {
	client openai.Client
	model  string
}

func NewLLMPromptProvider(opts OpenAIOptions) *LLMPromptProvider {
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}

	// retries are owned by the dispatch coordinator
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	slog.Info("[OpenAIProvider] OpenAI client initialized",
		slog.String("model", opts.Model))

	return &LLMPromptProvider{
		client: openai.NewClient(clientOpts...),
		model:  opts.Model,
	}
}

func (p *LLMPromptProvider) ID() models.ProviderID { return OpenAI }

func (p *LLMPromptProvider) Analyze(ctx context.Context, text string) (models.ProviderResult, error) {
	resp, err := p.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           p.model,
		MaxOutputTokens: openai.Int(llmMaxOutputTokens),
		Instructions:    openai.String(llmSystemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		},
	})
	if err != nil {
		return models.ProviderResult{}, p.classify(err)
	}

	if resp.Status == "incomplete" {
		return models.ProviderResult{}, NewProviderError(OpenAI, KindMalformed,
			fmt.Errorf("response is incomplete (reason = %s)", resp.IncompleteDetails.Reason))
	}

	result, err := parseLLMOutput(OpenAI, resp.OutputText())
	if err != nil {
		return models.ProviderResult{}, NewProviderError(OpenAI, KindMalformed, err)
	}
	return result, nil
}

func (p *LLMPromptProvider) classify(err error) *ProviderError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return NewProviderError(OpenAI, KindForStatus(apiErr.StatusCode), err)
	}
	return Classify(OpenAI, err)
}
