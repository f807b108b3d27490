// Package llm defines the streaming text-generation capability and its
// variant implementations. The implementation is chosen once at construction
// time; callers never inspect which variant they hold.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driftline/scriptweave/internal/api"
	"github.com/driftline/scriptweave/internal/config"
	"github.com/driftline/scriptweave/internal/conversation"
	"github.com/driftline/scriptweave/pkg/models"
)

// Stream is a lazy, finite, non-restartable sequence of text chunks.
// Recv returns io.EOF when the sequence is exhausted.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// UsageReporter is optionally implemented by streams whose provider reports
// token accounting once the stream ends.
type UsageReporter interface {
	CachedTokens() int
}

// Generator is the streaming text-generation capability. Both operations
// respect ctx cancellation by ceasing emission; exact latency is not
// guaranteed and the upstream call may keep running briefly.
type Generator interface {
	GenerateScript(ctx context.Context, req models.GenerationRequest, messages []conversation.ChatMessage, examples []models.ExampleDocument) (Stream, error)
	RegenerateSection(ctx context.Context, req models.RegenerationRequest, messages []conversation.ChatMessage) (Stream, error)
}

// New constructs the generator variant named by the configuration
func New(cfg *config.Config, secrets *config.Secrets, logger *slog.Logger) (Generator, error) {
	switch cfg.Generation.Provider {
	case "openai":
		return NewOpenAI(cfg, secrets, api.NewClient(logger), logger), nil
	case "mock":
		return NewMock(3, 450), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Generation.Provider)
	}
}
