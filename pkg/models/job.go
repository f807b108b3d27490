package models

import "time"

// JobType identifies the kind of work a queued job represents
type JobType string

const (
	JobTypeGenerateScript    JobType = "generate-script"
	JobTypeRegenerateSection JobType = "regenerate-section"
)

// JobStatus represents the lifecycle state of a queued job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is the shared queue message. The queue is advisory: reads are eventually
// consistent and writes are last-writer-wins, so consumers must tolerate a
// duplicate enqueue of the same section without corrupting state.
type Job struct {
	ID        string    `json:"id"`
	Type      JobType   `json:"type"`
	Status    JobStatus `json:"status"`
	ScriptID  string    `json:"script_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Type-specific fields
	Prompt         string `json:"prompt,omitempty"`
	SectionID      string `json:"section_id,omitempty"`
	SectionTitle   string `json:"section_title,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Active reports whether the job is still pending or running
func (j Job) Active() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusProcessing
}

// TargetsSection reports whether the job is a regeneration aimed at the given
// section of the given script
func (j Job) TargetsSection(scriptID, sectionID string) bool {
	return j.Type == JobTypeRegenerateSection && j.ScriptID == scriptID && j.SectionID == sectionID
}
