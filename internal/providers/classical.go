package providers

import (
	"context"

	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/sentiment"
)

// ClassicalSentimentProvider scores text locally with VADER. It reports no keywords.
type ClassicalSentimentProvider struct{}

func NewClassicalSentimentProvider() *ClassicalSentimentProvider {
	return &ClassicalSentimentProvider{}
}

func (p *ClassicalSentimentProvider) ID() models.ProviderID { return Vader }

func (p *ClassicalSentimentProvider) Analyze(ctx context.Context, text string) (models.ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ProviderResult{}, Classify(Vader, err)
	}

	score, label := sentiment.AnalyzeWithVADER(text)

	return models.ProviderResult{
		ProviderID:   Vader,
		Sentiment:    score,
		Keywords:     []string{},
		HasSentiment: true,
		Raw:          label,
	}, nil
}

// KeywordExtractionProvider pulls ranked key phrases out of the text. It reports no sentiment.
type KeywordExtractionProvider struct {
	limit int
}

func NewKeywordExtractionProvider(limit int) *KeywordExtractionProvider {
	return &KeywordExtractionProvider{limit: limit}
}

func (p *KeywordExtractionProvider) ID() models.ProviderID { return Keywords }

func (p *KeywordExtractionProvider) Analyze(ctx context.Context, text string) (models.ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ProviderResult{}, Classify(Keywords, err)
	}

	keywords := sentiment.ExtractKeywords(text, p.limit)

	return models.ProviderResult{
		ProviderID:  Keywords,
		Keywords:    keywords,
		HasKeywords: true,
	}, nil
}
