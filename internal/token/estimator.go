// Package token provides cheap token-count estimation for prompt budgeting.
// The heuristic is character-count based; it deliberately avoids a tokenizer
// dependency because the budget math only needs rough magnitudes.
package token

const (
	// CharsPerToken is the assumed average characters per token
	CharsPerToken = 4
	// MaxContextWindow is the assumed model context window in tokens
	MaxContextWindow = 120000
	// ReservedTokens is held back for the model's own output
	ReservedTokens = 20000
	// AvgExampleTokens is the assumed cost of one example document
	AvgExampleTokens = 4000
	// MinExampleCount is the floor for recommended examples
	MinExampleCount = 3
	// MaxExampleCount is the ceiling for recommended examples
	MaxExampleCount = 20
)

// EstimateTokens estimates the token count of text as ceil(len/4)
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// RecommendedExampleCount computes how many example documents fit the context
// budget after the system prompt and conversation history are accounted for.
// The result is clamped to [MinExampleCount, MaxExampleCount]; a negative
// budget clamps to the floor rather than producing a non-positive count.
func RecommendedExampleCount(systemPrompt string, conversationTokens int) int {
	available := MaxContextWindow - ReservedTokens - EstimateTokens(systemPrompt) - conversationTokens

	count := available / AvgExampleTokens
	if count < MinExampleCount {
		return MinExampleCount
	}
	if count > MaxExampleCount {
		return MaxExampleCount
	}
	return count
}
