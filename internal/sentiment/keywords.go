package sentiment

import (
	"sort"
	"strings"
	"unicode"
)

const maxPhraseWords = 3

var stopWords = toSet(`a about above after again against all am an and any are aren't as at be
because been before being below between both but by can can't cannot could couldn't did didn't
do does doesn't doing don't down during each few for from further get got had hadn't has hasn't
have haven't having he he'd he'll he's her here here's hers herself him himself his how how's i
i'd i'll i'm i've if in into is isn't it it's its itself just let's like me more most mustn't my
myself no nor not now of off on once only or other ought our ours ourselves out over own really
same shan't she she'd she'll she's should shouldn't so some such than that that's the their
theirs them themselves then there there's these they they'd they'll they're they've this those
through to too under until up us very was wasn't we we'd we'll we're we've were weren't what
what's when when's where where's which while who who's whom why why's will with won't would
wouldn't you you'd you'll you're you've your yours yourself yourselves also still even much many
lot lots thing things`)

func toSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

type phrase struct {
	words []string
	text  string
	first int
}

// ExtractKeywords ranks candidate phrases with RAKE word scores (degree / frequency).
// Phrases are runs of non stop words; ties keep the order of first appearance.
func ExtractKeywords(text string, limit int) []string {
	text = RemoveLinks(text)

	candidates := candidatePhrases(text)
	if len(candidates) == 0 {
		return []string{}
	}

	freq := make(map[string]int)
	degree := make(map[string]int)
	for _, p := range candidates {
		for _, w := range p.words {
			freq[w]++
			degree[w] += len(p.words)
		}
	}

	type scored struct {
		text  string
		score float64
		first int
	}

	seen := make(map[string]struct{})
	var ranked []scored
	for _, p := range candidates {
		key := strings.Join(p.words, " ")
		if _, ok := seen[key]; ok {
			continue
		}
		var score float64
		for _, w := range p.words {
			score += float64(degree[w]) / float64(freq[w])
		}
		seen[key] = struct{}{}
		ranked = append(ranked, scored{text: p.text, score: score, first: p.first})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].first < ranked[j].first
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.text)
	}
	return out
}

func candidatePhrases(text string) []phrase {
	var (
		phrases []phrase
		words   []string
		surface []string
		start   int
		index   int
	)

	flush := func() {
		if len(words) > 0 {
			phrases = append(phrases, phrase{
				words: words,
				text:  strings.Join(surface, " "),
				first: start,
			})
		}
		words, surface = nil, nil
	}

	for _, tok := range tokenize(text) {
		if tok.boundary {
			flush()
			continue
		}

		lower := strings.ToLower(tok.text)
		if _, stop := stopWords[lower]; stop || !meaningful(lower) {
			flush()
			continue
		}

		if len(words) == maxPhraseWords {
			flush()
		}
		if len(words) == 0 {
			start = index
		}
		words = append(words, lower)
		surface = append(surface, tok.text)
		index++
	}
	flush()

	return phrases
}

type token struct {
	text     string
	boundary bool
}

// tokenize splits text into words; sentence and clause punctuation become boundaries.
func tokenize(text string) []token {
	var (
		tokens []token
		b      strings.Builder
	)

	emit := func() {
		if b.Len() > 0 {
			tokens = append(tokens, token{text: strings.Trim(b.String(), "'")})
			b.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '\u2019':
			if b.Len() > 0 {
				b.WriteRune('\'')
			}
		case unicode.IsSpace(r):
			emit()
		case r == '-' || r == '_':
			emit()
		default:
			emit()
			tokens = append(tokens, token{boundary: true})
		}
	}
	emit()

	return tokens
}

func meaningful(word string) bool {
	if len([]rune(word)) < 2 {
		return false
	}
	for _, r := range word {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
