package models

import (
	"slices"
	"time"
)

// ProviderID names an analysis backend in the provider registry.
type ProviderID string

// EnsembleProvider marks a result merged from more than one provider.
const EnsembleProvider ProviderID = "ensemble"

// AnalysisRequest is built once per incoming call and passed by value.
type AnalysisRequest struct {
	Text               string
	RequestedProviders []ProviderID
}

func NewAnalysisRequest(text string, providers ...ProviderID) AnalysisRequest {
	return AnalysisRequest{
		Text:               text,
		RequestedProviders: slices.Clone(providers),
	}
}

// ProviderResult is what a single provider produced for one call.
type ProviderResult struct {
	ProviderID   ProviderID
	Sentiment    float64
	Keywords     []string
	HasSentiment bool
	HasKeywords  bool
	LatencyMs    int64
	Raw          any
}

// Merged is the coordinator output before normalization.
type Merged struct {
	ProviderUsed ProviderID
	Sentiment    float64
	Keywords     []string
	// Complete is false when some selected providers failed or were skipped.
	Complete  bool
	Failures  map[ProviderID]string
	LatencyMs int64
}

// AnalysisResult is the public, normalized result.
type AnalysisResult struct {
	Sentiment    float64    `json:"sentiment" dynamodbav:"sentiment"`
	Keywords     []string   `json:"keywords" dynamodbav:"keywords"`
	ProviderUsed ProviderID `json:"provider_used" dynamodbav:"provider_used"`
	Cached       bool       `json:"cached" dynamodbav:"-"`
}

// AnalysisRecord is what gets shipped to the result sinks after every analysis.
type AnalysisRecord struct {
	ID          string                `json:"id" dynamodbav:"id"`
	Fingerprint string                `json:"fingerprint" dynamodbav:"fingerprint"`
	Providers   []ProviderID          `json:"providers" dynamodbav:"providers"`
	Result      AnalysisResult        `json:"result" dynamodbav:"result"`
	Failures    map[ProviderID]string `json:"failures,omitempty" dynamodbav:"failures,omitempty"`
	LatencyMs   int64                 `json:"latency_ms" dynamodbav:"latency_ms"`
	TextLength  int                   `json:"text_length" dynamodbav:"text_length"`
	CreatedAt   time.Time             `json:"created_at" dynamodbav:"created_at"`
}
