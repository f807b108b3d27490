// Package orchestrator drives the multi-phase generation of a script: one
// outline request, then each section in order, each section's prompt carrying
// everything written before it. All collaborators are passed in at
// construction; the orchestrator holds no ambient state beyond its own
// active-generation guards.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/driftline/scriptweave/internal/config"
	"github.com/driftline/scriptweave/internal/conversation"
	"github.com/driftline/scriptweave/internal/examples"
	"github.com/driftline/scriptweave/internal/llm"
	"github.com/driftline/scriptweave/internal/metrics"
	"github.com/driftline/scriptweave/internal/script"
	"github.com/driftline/scriptweave/internal/token"
	"github.com/driftline/scriptweave/internal/util"
	"github.com/driftline/scriptweave/pkg/models"
)

var (
	// ErrConversationRequired rejects a generation request that arrives
	// without a conversation. Conversations are never auto-created.
	ErrConversationRequired = errors.New("conversation required")

	// ErrConversationNotFound rejects a request naming an unknown conversation
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrOutlineParse marks an unparsable outline. Fatal for the run; the
	// user may retry the whole generation manually.
	ErrOutlineParse = errors.New("outline parse failure")
)

const abortedMessage = "Generation aborted"

// ProgressSink receives every observable state change during a run. Updates
// for one generation arrive in chunk order, never coalesced, and the
// completion update always carries the full accumulated text.
type ProgressSink interface {
	Progress(update models.ProgressUpdate)
}

// ProgressFunc adapts a function to the ProgressSink interface
type ProgressFunc func(models.ProgressUpdate)

func (f ProgressFunc) Progress(update models.ProgressUpdate) { f(update) }

// NopSink discards all progress updates
type NopSink struct{}

func (NopSink) Progress(models.ProgressUpdate) {}

// CompletionNotifier is told when a generation or regeneration finishes
// cleanly. An aborted or failed run is never reported.
type CompletionNotifier interface {
	GenerationCompleted(conversationID, scriptID string, doc script.Document)
}

// Orchestrator runs the generation state machine for any number of
// conversations, at most one active run per guard key.
type Orchestrator struct {
	cfg       *config.Config
	generator llm.Generator
	store     *conversation.Store
	library   *examples.Library
	sink      ProgressSink
	notifier  CompletionNotifier
	collector *metrics.Collector
	logger    *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates an orchestrator. A nil sink or notifier is replaced with a no-op.
func New(
	cfg *config.Config,
	generator llm.Generator,
	store *conversation.Store,
	library *examples.Library,
	sink ProgressSink,
	notifier CompletionNotifier,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Orchestrator {
	if sink == nil {
		sink = NopSink{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Orchestrator{
		cfg:       cfg,
		generator: generator,
		store:     store,
		library:   library,
		sink:      sink,
		notifier:  notifier,
		collector: collector,
		logger:    logger,
		active:    make(map[string]struct{}),
	}
}

type nopNotifier struct{}

func (nopNotifier) GenerationCompleted(string, string, script.Document) {}

// acquire claims an active-generation guard key. The guards are in-memory and
// per-instance; cross-process duplicate suppression is the job queue's
// problem, not ours.
func (o *Orchestrator) acquire(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[key]; busy {
		return false
	}
	o.active[key] = struct{}{}
	return true
}

func (o *Orchestrator) release(key string) {
	o.mu.Lock()
	delete(o.active, key)
	o.mu.Unlock()
}

// GenerateScript runs the full outline-then-sections pipeline for a
// conversation that must already exist. A concurrent duplicate call for the
// same conversation is silently ignored.
func (o *Orchestrator) GenerateScript(ctx context.Context, req models.GenerationRequest, conversationID string) error {
	if conversationID == "" {
		return ErrConversationRequired
	}

	guard := conversationID + "-initial"
	if !o.acquire(guard) {
		o.logger.Debug("Generation already active, ignoring duplicate", "conversation_id", conversationID)
		return nil
	}
	defer o.release(guard)

	conv, ok := o.store.Get(conversationID)
	if !ok {
		return o.fail(conversationID, "", fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID))
	}

	// Run accepted, nothing streaming yet.
	o.sink.Progress(models.ProgressUpdate{
		ConversationID: conversationID,
		Phase:          models.PhaseIdle,
	})

	start := time.Now()
	outlineText, outline, err := o.runOutlinePhase(ctx, req, conv)
	o.collector.RecordPhase("outline", time.Since(start), err == nil)
	if err != nil {
		return o.fail(conversationID, conv.ScriptID, err)
	}

	fullText, wordCounts, err := o.runSectionPhases(ctx, req, conv, outlineText, outline)
	if err != nil {
		return o.fail(conversationID, conv.ScriptID, err)
	}

	// Phase 3: completion. Flush before announcing so a crash after the
	// dispatch can never lose an announced script.
	o.store.Flush(conversationID)
	doc := script.ParseDocument(fullText)
	o.sink.Progress(models.ProgressUpdate{
		ConversationID:    conversationID,
		Phase:             models.PhaseComplete,
		TotalSections:     len(outline.Sections),
		Content:           fullText,
		SectionWordCounts: wordCounts,
	})

	o.logger.Info("Script generation complete",
		"conversation_id", conversationID,
		"sections", len(doc.Sections),
		"total_words", doc.TotalWordCount,
		"duration", time.Since(start))

	o.notifier.GenerationCompleted(conversationID, conv.ScriptID, doc)
	return nil
}

// runOutlinePhase streams the outline and parses it. An unparsable outline
// is fatal for the run.
func (o *Orchestrator) runOutlinePhase(ctx context.Context, req models.GenerationRequest, conv *conversation.Conversation) (string, *script.Outline, error) {
	systemPrompt, err := util.RenderTemplate(o.cfg.PromptTemplates.SystemPrompt, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to render system prompt: %w", err)
	}
	outlineRequest, err := util.RenderTemplate(o.cfg.PromptTemplates.OutlineRequest, map[string]interface{}{
		"Prompt": req.Prompt,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to render outline request: %w", err)
	}

	count := token.RecommendedExampleCount(systemPrompt, conversationTokens(conv))
	docs := o.library.Search(req.Prompt, count)
	o.logger.Info("Starting outline generation",
		"conversation_id", conv.ID,
		"examples", len(docs),
		"recommended", count)

	messages := []conversation.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: outlineRequest},
	}
	if err := o.store.AppendGeneration(conv.ID, messages); err != nil {
		return "", nil, err
	}

	stream, err := o.generator.GenerateScript(ctx, req, messages, docs)
	if err != nil {
		return "", nil, fmt.Errorf("outline generation failed: %w", err)
	}

	text, err := o.consume(ctx, stream, conv.ID, "outline", models.ProgressUpdate{
		ConversationID: conv.ID,
		Phase:          models.PhaseGeneratingOutline,
	})
	if err != nil {
		return "", nil, err
	}
	o.store.Flush(conv.ID)

	outline, err := script.ParseOutline(text)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrOutlineParse, err)
	}
	return text, outline, nil
}

// runSectionPhases generates each outline section strictly in order. Every
// section's prompt carries the full text written so far, which is why the
// phases cannot run in parallel.
func (o *Orchestrator) runSectionPhases(ctx context.Context, req models.GenerationRequest, conv *conversation.Conversation, outlineText string, outline *script.Outline) (string, []int, error) {
	systemPrompt, err := util.RenderTemplate(o.cfg.PromptTemplates.SystemPrompt, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to render system prompt: %w", err)
	}

	fullText := fmt.Sprintf("# %s\n\n", outline.Title)
	wordCounts := make([]int, 0, len(outline.Sections))
	total := len(outline.Sections)

	for i, section := range outline.Sections {
		if err := ctx.Err(); err != nil {
			return fullText, wordCounts, err
		}

		instructions, err := util.RenderTemplate(o.cfg.PromptTemplates.SectionInstructions, map[string]interface{}{
			"Outline":            outlineText,
			"ContentSoFar":       fullText,
			"SectionTitle":       section.Title,
			"SectionDescription": section.Description,
			"MinimumWordCount":   o.cfg.Generation.MinimumWordCount,
		})
		if err != nil {
			return fullText, wordCounts, fmt.Errorf("failed to render section instructions: %w", err)
		}

		messages := []conversation.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
			{Role: "assistant", Content: outlineText},
			{Role: "user", Content: instructions},
		}
		if err := o.store.AppendGeneration(conv.ID, messages); err != nil {
			return fullText, wordCounts, err
		}

		phaseStart := time.Now()
		stream, err := o.generator.GenerateScript(ctx, req, messages, nil)
		if err != nil {
			o.collector.RecordPhase("section", time.Since(phaseStart), false)
			return fullText, wordCounts, fmt.Errorf("section %q generation failed: %w", section.Title, err)
		}

		raw, err := o.consume(ctx, stream, conv.ID, "section", models.ProgressUpdate{
			ConversationID: conv.ID,
			Phase:          models.PhaseGeneratingSection,
			SectionIndex:   i,
			TotalSections:  total,
			SectionTitle:   section.Title,
		})
		o.collector.RecordPhase("section", time.Since(phaseStart), err == nil)
		if err != nil {
			return fullText, wordCounts, err
		}

		body := stripLeadingHeader(raw)
		words := script.CountWords(body)
		wordCounts = append(wordCounts, words)
		fullText += fmt.Sprintf("## %s\n%s\n\n", section.Title, body)

		o.collector.RecordSectionWordCount(words)
		o.store.Flush(conv.ID)
		o.sink.Progress(models.ProgressUpdate{
			ConversationID:    conv.ID,
			Phase:             models.PhaseGeneratingSection,
			SectionIndex:      i,
			TotalSections:     total,
			SectionTitle:      section.Title,
			Content:           fullText,
			SectionWordCounts: wordCounts,
		})

		o.logger.Info("Section complete",
			"conversation_id", conv.ID,
			"section", section.Title,
			"index", i,
			"words", words)
	}

	return fullText, wordCounts, nil
}

// RegenerateSection re-runs a single section on an existing conversation. The
// guard key includes the section title, so a regeneration never collides with
// an initial generation and two regenerations of the same section cannot
// overlap.
func (o *Orchestrator) RegenerateSection(ctx context.Context, req models.RegenerationRequest, conversationID string) error {
	if conversationID == "" {
		return ErrConversationRequired
	}
	conv, ok := o.store.Get(conversationID)
	if !ok {
		return o.fail(conversationID, "", fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID))
	}

	guard := conversationID + "-" + req.SectionTitle
	if !o.acquire(guard) {
		o.logger.Debug("Section regeneration already active, ignoring duplicate",
			"conversation_id", conversationID, "section", req.SectionTitle)
		return nil
	}
	defer o.release(guard)

	prompt, err := util.RenderTemplate(o.cfg.PromptTemplates.RegenerationRequest, map[string]interface{}{
		"SectionTitle":     req.SectionTitle,
		"MinimumWordCount": o.cfg.Generation.MinimumWordCount,
	})
	if err != nil {
		return o.fail(conversationID, conv.ScriptID, fmt.Errorf("failed to render regeneration request: %w", err))
	}

	// Rebuild the complete exchange so the section is rewritten with full
	// knowledge of everything generated before and after it.
	messages := rebuildHistory(conv)
	messages = append(messages, conversation.ChatMessage{Role: "user", Content: prompt})
	if err := o.store.AppendGeneration(conversationID, messages); err != nil {
		return o.fail(conversationID, conv.ScriptID, err)
	}

	o.logger.Info("Starting section regeneration",
		"conversation_id", conversationID,
		"section", req.SectionTitle,
		"history_messages", len(messages))

	start := time.Now()
	stream, err := o.generator.RegenerateSection(ctx, req, messages)
	if err != nil {
		o.collector.RecordPhase("regeneration", time.Since(start), false)
		return o.fail(conversationID, conv.ScriptID, fmt.Errorf("section regeneration failed: %w", err))
	}

	raw, err := o.consume(ctx, stream, conversationID, "regeneration", models.ProgressUpdate{
		ConversationID: conversationID,
		Phase:          models.PhaseGeneratingSection,
		SectionTitle:   req.SectionTitle,
	})
	o.collector.RecordPhase("regeneration", time.Since(start), err == nil)
	if err != nil {
		return o.fail(conversationID, conv.ScriptID, err)
	}

	o.store.Flush(conversationID)

	body := stripLeadingHeader(raw)
	words := script.CountWords(body)
	o.collector.RecordSectionWordCount(words)

	refreshed, _ := o.store.Get(conversationID)
	doc := AssembleDocument(refreshed)
	o.sink.Progress(models.ProgressUpdate{
		ConversationID: conversationID,
		Phase:          models.PhaseComplete,
		SectionTitle:   req.SectionTitle,
		Content:        doc.Raw,
	})

	o.logger.Info("Section regeneration complete",
		"conversation_id", conversationID,
		"section", req.SectionTitle,
		"words", words,
		"duration", time.Since(start))

	o.notifier.GenerationCompleted(conversationID, conv.ScriptID, doc.Document)
	return nil
}

// consume drains a stream, persisting and dispatching the accumulated text
// after every chunk. The per-chunk saves ride the store's throttle; only
// milestone flushes force a write.
func (o *Orchestrator) consume(ctx context.Context, stream llm.Stream, conversationID, metricPhase string, update models.ProgressUpdate) (string, error) {
	defer stream.Close()

	tracker := script.NewTracker()
	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}

		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sb.String(), ctxErr
			}
			return sb.String(), fmt.Errorf("stream failed: %w", err)
		}

		sb.WriteString(chunk)
		accumulated := sb.String()
		o.collector.RecordStreamChunk(metricPhase)

		if err := o.store.UpdateLatestResponse(conversationID, accumulated, 0); err != nil {
			o.logger.Warn("Failed to update streaming response", "conversation_id", conversationID, "error", err)
		}

		for _, ev := range tracker.Observe(accumulated) {
			switch ev.Type {
			case script.EventSectionStarted, script.EventSectionRetitle:
				update.SectionTitle = ev.Title
			}
		}
		update.Content = accumulated
		o.sink.Progress(update)
	}

	text := sb.String()
	cached := 0
	if ur, ok := stream.(llm.UsageReporter); ok {
		cached = ur.CachedTokens()
	}
	if err := o.store.UpdateLatestResponse(conversationID, text, cached); err != nil {
		o.logger.Warn("Failed to record final response", "conversation_id", conversationID, "error", err)
	}
	return text, nil
}

// fail maps any error to the error phase. Cancellation gets the fixed
// aborted message; partial content already dispatched stays visible.
func (o *Orchestrator) fail(conversationID, scriptID string, err error) error {
	message := err.Error()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		message = abortedMessage
		o.logger.Info("Generation aborted", "conversation_id", conversationID)
	} else {
		o.logger.Error("Generation failed", "conversation_id", conversationID, "error", err)
	}

	o.store.Flush(conversationID)
	o.sink.Progress(models.ProgressUpdate{
		ConversationID: conversationID,
		Phase:          models.PhaseError,
		Error:          message,
	})
	return err
}

// stripLeadingHeader removes the "## Title" line a model usually repeats at
// the start of a section body, since the orchestrator writes the header
// itself when stitching the script together.
func stripLeadingHeader(raw string) string {
	trimmed := strings.TrimLeft(raw, "\n")
	if strings.HasPrefix(trimmed, "## ") {
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			return strings.TrimLeft(trimmed[idx+1:], "\n")
		}
		return ""
	}
	return trimmed
}

func conversationTokens(conv *conversation.Conversation) int {
	total := 0
	for _, gen := range conv.Generations {
		for _, msg := range gen.Messages {
			total += token.EstimateTokens(msg.Content)
		}
		total += token.EstimateTokens(gen.Response)
	}
	return total
}

// rebuildHistory flattens every prior generation into one message list,
// closing each with its assistant response.
func rebuildHistory(conv *conversation.Conversation) []conversation.ChatMessage {
	var messages []conversation.ChatMessage
	for _, gen := range conv.Generations {
		messages = append(messages, gen.Messages...)
		if gen.Response != "" {
			messages = append(messages, conversation.ChatMessage{Role: "assistant", Content: gen.Response})
		}
	}
	return messages
}
