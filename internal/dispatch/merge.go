package dispatch

import (
	"sort"

	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/normalize"
)

type keywordStat struct {
	surface  string
	key      string
	count    int
	position int
}

// merge combines successful results. The output does not depend on the order
// the results arrive in.
//
// Sentiment is the mean over providers that report one (0 when none do).
// Keywords are the case-insensitive union ranked by how many providers
// produced them, then by the best position any provider gave them, then by
// folded text.
func merge(results []models.ProviderResult) (float64, []string) {
	ordered := make([]models.ProviderResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ProviderID < ordered[j].ProviderID
	})

	var scores []float64
	for _, r := range ordered {
		if r.HasSentiment {
			scores = append(scores, r.Sentiment)
		}
	}
	sort.Float64s(scores)

	var sentiment float64
	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		sentiment = sum / float64(len(scores))
	}

	stats := make(map[string]*keywordStat)
	for _, r := range ordered {
		if !r.HasKeywords {
			continue
		}
		seen := make(map[string]struct{})
		for pos, kw := range r.Keywords {
			key := normalize.FoldKey(kw)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			st, ok := stats[key]
			if !ok {
				st = &keywordStat{surface: kw, key: key, position: pos}
				stats[key] = st
			}
			st.count++
			if pos < st.position {
				st.position = pos
			}
		}
	}

	ranked := make([]*keywordStat, 0, len(stats))
	for _, st := range stats {
		ranked = append(ranked, st)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.count != b.count {
			return a.count > b.count
		}
		if a.position != b.position {
			return a.position < b.position
		}
		return a.key < b.key
	})

	keywords := make([]string, 0, len(ranked))
	for _, st := range ranked {
		keywords = append(keywords, st.surface)
	}
	return sentiment, keywords
}
