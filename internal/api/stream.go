package api

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// CompletionStream is a lazy, finite, non-restartable sequence of content
// deltas read from an SSE response body. Recv returns io.EOF after the
// provider's [DONE] marker or the end of the body.
type CompletionStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *slog.Logger

	usage  *Usage
	finish string
	done   bool
}

// Recv returns the next non-empty content delta. Malformed chunks are logged
// and skipped; metadata-only chunks (role, usage, finish reason) are consumed
// without being surfaced.
func (s *CompletionStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk StreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.logger.Warn("Failed to parse stream chunk", "error", err, "data", data)
			continue
		}

		if chunk.Usage != nil {
			s.usage = chunk.Usage
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.finish = *choice.FinishReason
		}
		if choice.Delta.Content != "" {
			return choice.Delta.Content, nil
		}
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Usage returns the token usage reported by the provider, if any. Only valid
// after Recv has returned io.EOF.
func (s *CompletionStream) Usage() *Usage {
	return s.usage
}

// FinishReason returns the provider's finish reason, if one was observed
func (s *CompletionStream) FinishReason() string {
	return s.finish
}

// Close releases the underlying response body. Safe to call more than once.
func (s *CompletionStream) Close() error {
	s.done = true
	return s.body.Close()
}
