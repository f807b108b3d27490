package models

import "time"

// ScriptStatus represents the lifecycle state of a script
type ScriptStatus string

const (
	ScriptStatusDraft      ScriptStatus = "draft"
	ScriptStatusInProgress ScriptStatus = "in-progress"
	ScriptStatusComplete   ScriptStatus = "complete"
)

// Script represents one generated long-form script
type Script struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Content       string       `json:"content"`
	CreatedAt     time.Time    `json:"created_at"`
	Archived      bool         `json:"archived"`
	Status        ScriptStatus `json:"status"`
	DisplayLength string       `json:"display_length,omitempty"`
	CommentCount  int          `json:"comment_count,omitempty"`
}

// GenerationPhase represents the current phase of an orchestrated run
type GenerationPhase string

const (
	PhaseIdle              GenerationPhase = "idle"
	PhaseGeneratingOutline GenerationPhase = "generating_outline"
	PhaseGeneratingSection GenerationPhase = "generating_section"
	PhaseComplete          GenerationPhase = "complete"
	PhaseError             GenerationPhase = "error"
)

// Terminal reports whether the phase ends a run
func (p GenerationPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// ProgressUpdate is dispatched to the progress sink on every observable state change.
// Content carries the full accumulated text so far; a completion update always carries
// the final text regardless of any persistence throttling upstream.
type ProgressUpdate struct {
	ConversationID    string
	Phase             GenerationPhase
	SectionIndex      int
	TotalSections     int
	SectionTitle      string
	Content           string
	SectionWordCounts []int
	Error             string
}

// GenerationRequest describes one request to generate a full script
type GenerationRequest struct {
	ScriptID string
	Prompt   string
}

// RegenerationRequest describes one request to regenerate a single section
type RegenerationRequest struct {
	ScriptID     string
	SectionID    string
	SectionTitle string
	Manual       bool
}

// ExampleDocument is a retrieved reference document fed into outline prompts
type ExampleDocument struct {
	Body     string
	Filename string
	Category string
	Score    float64
}

// SessionStats tracks statistics for one generation run
type SessionStats struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalSections   int
	SuccessCount    int
	FailureCount    int
	RegenCount      int
	TotalDuration   time.Duration
	AverageDuration time.Duration
}
