// Package normalize maps merged provider output onto the public result schema.
package normalize

import (
	"math"
	"strings"

	"golang.org/x/text/cases"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const DefaultMaxKeywords = 10

// Normalize clamps sentiment into [-1,1], dedupes keywords case-insensitively
// (first-seen casing wins) and truncates them to maxKeywords.
func Normalize(in models.Merged, maxKeywords int) models.AnalysisResult {
	if maxKeywords <= 0 {
		maxKeywords = DefaultMaxKeywords
	}

	return models.AnalysisResult{
		Sentiment:    ClampSentiment(in.Sentiment),
		Keywords:     DedupeKeywords(in.Keywords, maxKeywords),
		ProviderUsed: in.ProviderUsed,
	}
}

func ClampSentiment(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// DedupeKeywords never returns nil so the JSON output is always an array.
func DedupeKeywords(keywords []string, limit int) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, min(len(keywords), limit))

	for _, kw := range keywords {
		if len(out) == limit {
			break
		}
		kw = strings.Join(strings.Fields(kw), " ")
		if kw == "" {
			continue
		}
		key := fold.String(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// FoldKey is the case-insensitive identity used for keyword comparisons.
func FoldKey(kw string) string {
	return cases.Fold().String(strings.Join(strings.Fields(kw), " "))
}
