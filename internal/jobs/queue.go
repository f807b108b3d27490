// Package jobs provides the shared work queue that decouples regeneration
// requests from the worker that serves them. The file-backed implementation
// lets several processes share one queue through the filesystem.
package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/driftline/scriptweave/pkg/models"
)

// Queue is the job-queue collaborator. List returns a snapshot; it may lag a
// concurrent writer, and callers must tolerate duplicates of the same target.
type Queue interface {
	List() ([]models.Job, error)
	Enqueue(job models.Job) (models.Job, error)
	Update(id string, status models.JobStatus) error
	Remove(id string) error

	// Subscribe returns a channel that receives a signal after the queue
	// changes. Signals are coalesced; a receiver may miss intermediate
	// states but always observes the latest via List.
	Subscribe() <-chan struct{}

	Close() error
}

// prepare fills in the server-assigned fields of a new job
func prepare(job models.Job, now time.Time) models.Job {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	return job
}
