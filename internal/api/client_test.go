package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/driftline/scriptweave/internal/config"
)

func testModelConfig(baseURL string) config.ModelConfig {
	return config.ModelConfig{
		BaseURL:            baseURL,
		ModelName:          "test-model",
		Temperature:        0.7,
		MaxOutputTokens:    1024,
		RateLimitPerMinute: 600,
		MaxRetries:         1,
	}
}

func sseChunk(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", content)
}

func TestStreamCompletionDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing SSE accept header")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("Hello"))
		fmt.Fprint(w, "data: not json at all\n\n") // malformed chunk is skipped
		fmt.Fprint(w, sseChunk(" world"))
		fmt.Fprint(w, `data: {"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(slog.Default())
	stream, err := client.StreamCompletion(context.Background(), testModelConfig(server.URL), "key", []Message{
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	defer stream.Close()

	var got []string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		got = append(got, chunk)
	}

	if len(got) != 2 || got[0] != "Hello" || got[1] != " world" {
		t.Errorf("Recv() chunks = %v, want [Hello,  world]", got)
	}
	if stream.FinishReason() != "stop" {
		t.Errorf("FinishReason() = %q, want stop", stream.FinishReason())
	}

	// Recv after EOF keeps returning EOF.
	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("Recv() after done = %v, want io.EOF", err)
	}
}

func TestStreamCompletionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad prompt","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := NewClient(slog.Default())
	_, err := client.StreamCompletion(context.Background(), testModelConfig(server.URL), "key", nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Retryable {
		t.Errorf("APIError = %+v, want non-retryable 400", apiErr)
	}
	if apiErr.Message != "bad prompt" {
		t.Errorf("APIError message = %q", apiErr.Message)
	}
}

func TestStreamCompletionCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("first"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release // hold the stream open until the test is done
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(slog.Default())
	stream, err := client.StreamCompletion(ctx, testModelConfig(server.URL), "key", nil)
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	defer stream.Close()

	chunk, err := stream.Recv()
	if err != nil || chunk != "first" {
		t.Fatalf("Recv() = %q, %v", chunk, err)
	}

	// Cancelling the context tears down the body; the next read must fail
	// rather than block forever.
	cancel()
	if _, err := stream.Recv(); err == nil {
		t.Error("Recv() after cancel should return an error")
	}
}

func TestIsStatusCodeRetryable(t *testing.T) {
	client := NewClient(slog.Default())

	retryable := []int{429, 500, 502, 503, 504}
	for _, code := range retryable {
		if !client.isStatusCodeRetryable(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}

	for _, code := range []int{400, 401, 403, 404, 422} {
		if client.isStatusCodeRetryable(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}
