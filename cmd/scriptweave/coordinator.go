package main

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/driftline/scriptweave/internal/jobs"
	"github.com/driftline/scriptweave/internal/metrics"
	"github.com/driftline/scriptweave/internal/policy"
	"github.com/driftline/scriptweave/internal/script"
)

// knownScript is the latest assembled document for one conversation
type knownScript struct {
	scriptID string
	doc      script.Document
}

// coordinator connects completed generations to the policy engine. It
// remembers the latest document per conversation so sections parked behind a
// cooldown get re-analyzed on later sweeps, not just at completion time.
type coordinator struct {
	engine    *policy.Engine
	queue     jobs.Queue
	collector *metrics.Collector
	logger    *slog.Logger

	mu    sync.Mutex
	known map[string]knownScript
}

func newCoordinator(engine *policy.Engine, queue jobs.Queue, collector *metrics.Collector, logger *slog.Logger) *coordinator {
	return &coordinator{
		engine:    engine,
		queue:     queue,
		collector: collector,
		logger:    logger,
		known:     make(map[string]knownScript),
	}
}

// GenerationCompleted implements orchestrator.CompletionNotifier
func (c *coordinator) GenerationCompleted(conversationID, scriptID string, doc script.Document) {
	c.mu.Lock()
	c.known[conversationID] = knownScript{scriptID: scriptID, doc: doc}
	c.mu.Unlock()

	c.analyze(conversationID, scriptID, doc)
}

// Sweep re-analyzes every known document and reports whether any section is
// still queued for or waiting on regeneration.
func (c *coordinator) Sweep() bool {
	c.mu.Lock()
	snapshot := make(map[string]knownScript, len(c.known))
	for id, ks := range c.known {
		snapshot[id] = ks
	}
	c.mu.Unlock()

	pending := false
	for conversationID, ks := range snapshot {
		queued, deferred := c.analyze(conversationID, ks.scriptID, ks.doc)
		pending = pending || queued || deferred
	}
	return pending
}

func (c *coordinator) analyze(conversationID, scriptID string, doc script.Document) (queued, deferred bool) {
	existing, err := c.queue.List()
	if err != nil {
		c.logger.Warn("Failed to read job queue, analyzing without it", "error", err)
	}

	analyses := make([]policy.SectionAnalysis, 0, len(doc.Sections))
	for i, section := range doc.Sections {
		a := c.engine.AnalyzeSection(policy.Section{
			ID:        sectionID(i),
			Title:     section.Title,
			Index:     i,
			Completed: true,
			WordCount: section.WordCount,
		}, scriptID, existing)
		analyses = append(analyses, a)
		deferred = deferred || a.Deferred
	}

	job, err := c.engine.RequestRegenerations(conversationID, analyses)
	if err != nil {
		c.logger.Error("Failed to queue regeneration", "error", err)
		return false, deferred
	}
	if job == nil {
		return false, deferred
	}
	c.collector.RecordRegeneration(false)
	return true, deferred
}

// sectionID derives a stable per-script section identifier from its position.
// Positions never shift after the initial generation because regenerations
// replace sections in place.
func sectionID(index int) string {
	return fmt.Sprintf("sec-%d", index)
}

// sectionByTitle finds a section's policy view in an assembled document
func sectionByTitle(doc script.Document, title string) (policy.Section, bool) {
	for i, section := range doc.Sections {
		if section.Title == title {
			return policy.Section{
				ID:        sectionID(i),
				Title:     section.Title,
				Index:     i,
				Completed: true,
				WordCount: section.WordCount,
			}, true
		}
	}
	return policy.Section{}, false
}
