// Package cache memoizes normalized analysis results by fingerprint.
// It is advisory: a miss or a backend error only costs a provider call.
package cache

import (
	"context"
	"time"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const (
	DefaultTTL      = time.Hour
	DefaultCapacity = 10000
)

type Cache interface {
	Get(ctx context.Context, fingerprint string) (models.AnalysisResult, bool)
	Put(ctx context.Context, fingerprint string, result models.AnalysisResult, ttl time.Duration)
}

type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (models.AnalysisResult, bool) {
	return models.AnalysisResult{}, false
}

func (Noop) Put(context.Context, string, models.AnalysisResult, time.Duration) {}
