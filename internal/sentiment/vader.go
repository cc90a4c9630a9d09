package sentiment

import (
	"html"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
	"mvdan.cc/xurls/v2"
)

const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"

	labelThreshold = 0.20
)

var (
	analyzer    = govader.NewSentimentIntensityAnalyzer()
	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	htmlTag     = regexp.MustCompile(`<[^>]*>`)
	urlPattern  = xurls.Relaxed()
)

func RemoveLinks(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1") // Keep only the text
	return urlPattern.ReplaceAllString(input, "")
}

// ConvertMarkdownToText renders markdown and strips the resulting markup and links.
func ConvertMarkdownToText(input string) string {
	output := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	plain := htmlTag.ReplaceAllString(string(output), " ")
	plain = html.UnescapeString(plain)
	plain = strings.Join(strings.Fields(plain), " ")

	return strings.TrimSpace(strings.Join(strings.Fields(RemoveLinks(plain)), " "))
}

// AnalyzeWithVADER returns the compound polarity in [-1, 1] and its label.
func AnalyzeWithVADER(text string) (float64, string) {
	plainText := ConvertMarkdownToText(text)
	if plainText == "" {
		plainText = text
	}

	score := analyzer.PolarityScores(plainText).Compound

	return score, Label(score)
}

func Label(score float64) string {
	switch {
	case score >= labelThreshold:
		return LabelPositive
	case score <= -labelThreshold:
		return LabelNegative
	default:
		return LabelNeutral
	}
}
