package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/driftline/scriptweave/internal/jobs"
	"github.com/driftline/scriptweave/internal/orchestrator"
	"github.com/driftline/scriptweave/internal/util"
	"github.com/driftline/scriptweave/pkg/models"
)

// consumer services the job queue: generate-script jobs run the full
// pipeline, regenerate-section jobs re-run one section. Jobs are processed
// one at a time; the orchestrator's own guards make a duplicate job a no-op
// rather than a collision.
type consumer struct {
	queue  jobs.Queue
	orch   *orchestrator.Orchestrator
	coord  *coordinator
	stats  *models.SessionStats
	logger *slog.Logger

	stopWhenIdle atomic.Bool
}

func newConsumer(queue jobs.Queue, orch *orchestrator.Orchestrator, coord *coordinator, stats *models.SessionStats, logger *slog.Logger) *consumer {
	return &consumer{
		queue:  queue,
		orch:   orch,
		coord:  coord,
		stats:  stats,
		logger: logger,
	}
}

// StopWhenIdle makes Run return once the queue drains and no section is
// still waiting on a cooldown.
func (c *consumer) StopWhenIdle() {
	c.stopWhenIdle.Store(true)
}

// Run blocks servicing jobs until the context is cancelled or, after
// StopWhenIdle, until no work remains. The periodic tick exists because a
// cooldown expiring is not a queue event.
func (c *consumer) Run(ctx context.Context) error {
	changes := c.queue.Subscribe()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if err := c.service(ctx); err != nil {
			return err
		}
		pending := c.coord.Sweep()

		if c.stopWhenIdle.Load() && !pending && !c.hasActiveJobs() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
		case <-ticker.C:
		}
	}
}

func (c *consumer) service(ctx context.Context) error {
	queue, err := c.queue.List()
	if err != nil {
		c.logger.Warn("Failed to list jobs", "error", err)
		return nil
	}

	for _, job := range queue {
		if job.Status != models.JobStatusQueued {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.queue.Update(job.ID, models.JobStatusProcessing); err != nil {
			// Another consumer may have claimed or removed it.
			c.logger.Debug("Skipping job", "job_id", job.ID, "error", err)
			continue
		}

		runErr := c.runJob(ctx, job)
		status := models.JobStatusCompleted
		if runErr != nil {
			status = models.JobStatusFailed
			c.stats.FailureCount++
			c.logger.Error("Job failed", "job_id", job.ID, "type", job.Type, "error", runErr)
		} else {
			c.stats.SuccessCount++
		}
		if err := c.queue.Update(job.ID, status); err != nil {
			c.logger.Warn("Failed to update job status", "job_id", job.ID, "error", err)
		}

		if runErr != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (c *consumer) runJob(ctx context.Context, job models.Job) error {
	switch job.Type {
	case models.JobTypeGenerateScript:
		c.logger.Info("Generating script",
			"job_id", job.ID,
			"prompt", util.TruncateString(job.Prompt, 80))
		return c.orch.GenerateScript(ctx, models.GenerationRequest{
			ScriptID: job.ScriptID,
			Prompt:   job.Prompt,
		}, job.ConversationID)
	case models.JobTypeRegenerateSection:
		c.stats.RegenCount++
		return c.orch.RegenerateSection(ctx, models.RegenerationRequest{
			ScriptID:     job.ScriptID,
			SectionID:    job.SectionID,
			SectionTitle: job.SectionTitle,
		}, job.ConversationID)
	default:
		c.logger.Warn("Ignoring job of unknown type", "job_id", job.ID, "type", job.Type)
		return nil
	}
}

func (c *consumer) hasActiveJobs() bool {
	queue, err := c.queue.List()
	if err != nil {
		return false
	}
	for _, job := range queue {
		if job.Active() {
			return true
		}
	}
	return false
}
