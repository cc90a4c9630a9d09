package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const (
	llmMaxOutputTokens int64 = 256

	llmSystemPrompt = `Analyze the sentiment and the key topics of the user's text.

Rules:
- sentiment is a number from -1.0 (very negative) through 0 (neutral) to 1.0 (very positive).
- keywords are at most 10 short words or phrases taken from the text, most important first.
- Respond with exactly one JSON object and nothing else:
{"sentiment": <number>, "keywords": [<string>, ...]}`

	llmOutputSchema = `{
  "type": "object",
  "required": ["sentiment", "keywords"],
  "properties": {
    "sentiment": {"type": "number"},
    "keywords": {"type": "array", "items": {"type": "string"}}
  }
}`
)

var llmSchema = jsonschema.MustCompileString("llm_analysis.json", llmOutputSchema)

// parseLLMOutput validates the model's reply and converts it into a result.
// Anything that does not match the schema is reported as ErrMalformed.
func parseLLMOutput(id models.ProviderID, content string) (models.ProviderResult, error) {
	content = cleanJSONResponse(content)
	if content == "" {
		return models.ProviderResult{}, fmt.Errorf("%w: empty output", ErrMalformed)
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return models.ProviderResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := llmSchema.Validate(doc); err != nil {
		return models.ProviderResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var parsed models.LLMAnalysis
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return models.ProviderResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return models.ProviderResult{
		ProviderID:   id,
		Sentiment:    parsed.Sentiment,
		Keywords:     parsed.Keywords,
		HasSentiment: true,
		HasKeywords:  true,
		Raw:          content,
	}, nil
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// Some model responses include extra prose around JSON.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
