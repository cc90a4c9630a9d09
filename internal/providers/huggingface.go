package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/spacesedan/sentiment-aura/internal/clients"
	"github.com/spacesedan/sentiment-aura/internal/models"
)

type sentimentAnalyzer interface {
	GetBatchedSentimentAnalysis(ctx context.Context, input models.SentimentAnalysisBatchRequest) (models.SentimentAnalysisBatchResponse, error)
	AnalyzerHealthCheck(ctx context.Context) error
}

// HuggingFaceProvider calls the hosted sentiment analyzer with a batch of one.
type HuggingFaceProvider struct {
	client sentimentAnalyzer
}

func NewHuggingFaceProvider(client *clients.HuggingFaceClient) *HuggingFaceProvider {
	return &HuggingFaceProvider{client: client}
}

func (p *HuggingFaceProvider) ID() models.ProviderID { return HuggingFace }

func (p *HuggingFaceProvider) Analyze(ctx context.Context, text string) (models.ProviderResult, error) {
	contentID := uuid.NewString()

	resp, err := p.client.GetBatchedSentimentAnalysis(ctx, models.SentimentAnalysisBatchRequest{
		{ContentID: contentID, Text: text},
	})
	if err != nil {
		return models.ProviderResult{}, classifyHTTP(HuggingFace, err)
	}

	for _, r := range resp {
		if r.ContentID != contentID {
			continue
		}
		return models.ProviderResult{
			ProviderID:   HuggingFace,
			Sentiment:    r.SentimentScore,
			Keywords:     []string{},
			HasSentiment: true,
			Raw:          r,
		}, nil
	}

	return models.ProviderResult{}, NewProviderError(HuggingFace, KindMalformed,
		fmt.Errorf("%w: no result for content id %s", ErrMalformed, contentID))
}

func (p *HuggingFaceProvider) HealthCheck(ctx context.Context) error {
	return p.client.AnalyzerHealthCheck(ctx)
}

func classifyHTTP(id models.ProviderID, err error) *ProviderError {
	var statusErr *clients.StatusError
	switch {
	case errors.As(err, &statusErr):
		return NewProviderError(id, KindForStatus(statusErr.StatusCode), err)
	case errors.Is(err, clients.ErrMalformedResponse):
		return NewProviderError(id, KindMalformed, err)
	default:
		return Classify(id, err)
	}
}
