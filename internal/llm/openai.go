package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/driftline/scriptweave/internal/api"
	"github.com/driftline/scriptweave/internal/config"
	"github.com/driftline/scriptweave/internal/conversation"
	"github.com/driftline/scriptweave/pkg/models"
)

// OpenAI generates text through an OpenAI-compatible streaming endpoint.
type OpenAI struct {
	cfg     *config.Config
	secrets *config.Secrets
	client  *api.Client
	logger  *slog.Logger
}

func NewOpenAI(cfg *config.Config, secrets *config.Secrets, client *api.Client, logger *slog.Logger) *OpenAI {
	return &OpenAI{
		cfg:     cfg,
		secrets: secrets,
		client:  client,
		logger:  logger,
	}
}

func (o *OpenAI) GenerateScript(ctx context.Context, req models.GenerationRequest, messages []conversation.ChatMessage, examples []models.ExampleDocument) (Stream, error) {
	wire := toWireMessages(messages)
	if len(examples) > 0 {
		wire = injectExamples(wire, examples)
	}
	return o.open(ctx, wire)
}

func (o *OpenAI) RegenerateSection(ctx context.Context, req models.RegenerationRequest, messages []conversation.ChatMessage) (Stream, error) {
	return o.open(ctx, toWireMessages(messages))
}

func (o *OpenAI) open(ctx context.Context, messages []api.Message) (Stream, error) {
	modelCfg, ok := o.cfg.Models["main"]
	if !ok {
		return nil, fmt.Errorf("models.main is not configured")
	}

	apiKey := o.secrets.GetAPIKey(modelCfg.BaseURL)
	if apiKey == "" {
		return nil, fmt.Errorf("no API key available for %s", modelCfg.BaseURL)
	}

	// The deadline covers the whole stream, so it must be generous enough
	// for a full section, not just the connection handshake.
	cancel := context.CancelFunc(func() {})
	if modelCfg.HTTPTimeoutSeconds > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(modelCfg.HTTPTimeoutSeconds)*time.Second)
	}

	o.logger.Debug("Opening completion stream",
		"model", modelCfg.ModelName,
		"messages", len(messages))

	stream, err := o.client.StreamCompletion(ctx, modelCfg, apiKey, messages)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelStream{stream: stream, cancel: cancel}, nil
}

// cancelStream releases the per-request deadline when the stream closes.
type cancelStream struct {
	stream *api.CompletionStream
	cancel context.CancelFunc
}

func (s *cancelStream) Recv() (string, error) { return s.stream.Recv() }

func (s *cancelStream) CachedTokens() int {
	if u := s.stream.Usage(); u != nil {
		return u.CachedPromptTokens
	}
	return 0
}

func (s *cancelStream) Close() error {
	err := s.stream.Close()
	s.cancel()
	return err
}

func toWireMessages(messages []conversation.ChatMessage) []api.Message {
	wire := make([]api.Message, len(messages))
	for i, m := range messages {
		wire[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return wire
}

// injectExamples appends reference documents to the system message so the
// prompt templates stay free of retrieval concerns. A system message is
// prepended when the conversation carries none.
func injectExamples(wire []api.Message, examples []models.ExampleDocument) []api.Message {
	var sb strings.Builder
	sb.WriteString("\n\nReference scripts:\n")
	for _, ex := range examples {
		sb.WriteString("\n<example>\n")
		sb.WriteString(strings.TrimSpace(ex.Body))
		sb.WriteString("\n</example>\n")
	}

	for i := range wire {
		if wire[i].Role == "system" {
			out := make([]api.Message, len(wire))
			copy(out, wire)
			out[i].Content += sb.String()
			return out
		}
	}

	out := make([]api.Message, 0, len(wire)+1)
	out = append(out, api.Message{Role: "system", Content: strings.TrimSpace(sb.String())})
	out = append(out, wire...)
	return out
}
