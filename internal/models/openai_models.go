package models

// LLMAnalysis is the JSON object the prompt asks the model to return.
type LLMAnalysis struct {
	Sentiment float64  `json:"sentiment"`
	Keywords  []string `json:"keywords"`
}
