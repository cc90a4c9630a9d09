package sentiment

import (
	"reflect"
	"testing"
)

func TestConvertMarkdownToText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "I love this!", "I love this!"},
		{"emphasis", "I **really** love _this_", "I really love this"},
		{"markdown link keeps label", "see [the docs](https://example.com/docs) now", "see the docs now"},
		{"bare url removed", "check https://example.com/x?y=1 out", "check out"},
		{"entities decoded", "fish & chips", "fish & chips"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertMarkdownToText(tt.input); got != tt.want {
				t.Errorf("ConvertMarkdownToText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAnalyzeWithVADER(t *testing.T) {
	pos, label := AnalyzeWithVADER("I love this! It is wonderful.")
	if pos <= 0.2 || label != LabelPositive {
		t.Fatalf("expected positive score, got %v (%s)", pos, label)
	}

	neg, label := AnalyzeWithVADER("This is terrible, I hate it.")
	if neg >= -0.2 || label != LabelNegative {
		t.Fatalf("expected negative score, got %v (%s)", neg, label)
	}

	if pos < -1 || pos > 1 || neg < -1 || neg > 1 {
		t.Fatalf("scores out of range: %v %v", pos, neg)
	}
}

func TestLabel(t *testing.T) {
	tests := map[float64]string{
		0.2:   LabelPositive,
		0.19:  LabelNeutral,
		0:     LabelNeutral,
		-0.19: LabelNeutral,
		-0.2:  LabelNegative,
	}
	for score, want := range tests {
		if got := Label(score); got != want {
			t.Errorf("Label(%v) = %s, want %s", score, got, want)
		}
	}
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{
			name:  "single content word",
			text:  "I love this!",
			limit: 10,
			want:  []string{"love"},
		},
		{
			name:  "longer phrases rank first",
			text:  "The new phone has amazing battery life",
			limit: 10,
			want:  []string{"amazing battery life", "new phone"},
		},
		{
			name:  "punctuation splits phrases",
			text:  "Great coffee, friendly staff.",
			limit: 10,
			want:  []string{"Great coffee", "friendly staff"},
		},
		{
			name:  "repeated phrase reported once",
			text:  "Pizza night. Pizza night!",
			limit: 10,
			want:  []string{"Pizza night"},
		},
		{
			name:  "limit applies",
			text:  "The new phone has amazing battery life",
			limit: 1,
			want:  []string{"amazing battery life"},
		},
		{
			name:  "urls ignored",
			text:  "https://example.com",
			limit: 10,
			want:  []string{},
		},
		{
			name:  "only stop words",
			text:  "it is what it is",
			limit: 10,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.text, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractKeywords(%q) = %#v, want %#v", tt.text, got, tt.want)
			}
		})
	}
}
