package token

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{
			name:  "empty string",
			input: "",
			want:  0,
		},
		{
			name:  "single char rounds up",
			input: "a",
			want:  1,
		},
		{
			name:  "exact multiple",
			input: "abcd",
			want:  1,
		},
		{
			name:  "one over multiple",
			input: "abcde",
			want:  2,
		},
		{
			name:  "longer text",
			input: strings.Repeat("x", 4000),
			want:  1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.input); got != tt.want {
				t.Errorf("EstimateTokens() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecommendedExampleCount(t *testing.T) {
	tests := []struct {
		name               string
		systemPrompt       string
		conversationTokens int
		want               int
	}{
		{
			name:               "empty inputs use full budget, clamped to max",
			systemPrompt:       "",
			conversationTokens: 0,
			want:               MaxExampleCount, // 100000/4000 = 25, clamped to 20
		},
		{
			name:               "mid-range budget",
			systemPrompt:       "",
			conversationTokens: 60000, // available 40000 -> 10 examples
			want:               10,
		},
		{
			name:               "small budget clamps to floor",
			systemPrompt:       "",
			conversationTokens: 95000, // available 5000 -> 1, clamped to 3
			want:               MinExampleCount,
		},
		{
			name:               "negative budget clamps to floor",
			systemPrompt:       "",
			conversationTokens: 150000,
			want:               MinExampleCount,
		},
		{
			name:               "system prompt consumes budget",
			systemPrompt:       strings.Repeat("x", 80000), // 20000 tokens
			conversationTokens: 40000,                      // available 40000 -> 10
			want:               10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecommendedExampleCount(tt.systemPrompt, tt.conversationTokens)
			if got != tt.want {
				t.Errorf("RecommendedExampleCount() = %v, want %v", got, tt.want)
			}
			if got <= 0 {
				t.Errorf("RecommendedExampleCount() = %v, must always be positive", got)
			}
		})
	}
}
