// Package policy decides, deterministically, whether a generated section
// should be queued for regeneration. Decisions depend only on the section,
// the current job list, persisted attempt state, and the clock, so the same
// inputs always produce the same answer.
package policy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/driftline/scriptweave/internal/conversation"
	"github.com/driftline/scriptweave/internal/jobs"
	"github.com/driftline/scriptweave/pkg/models"
)

// Rules are the configurable regeneration thresholds.
type Rules struct {
	MinimumWordCount            int
	MaxAutoRegenerationAttempts int
	RegenerationCooldown        time.Duration
}

func DefaultRules() Rules {
	return Rules{
		MinimumWordCount:            400,
		MaxAutoRegenerationAttempts: 3,
		RegenerationCooldown:        30 * time.Second,
	}
}

// Section is the policy engine's view of one generated section.
type Section struct {
	ID        string
	Title     string
	Index     int // position in the script's section order
	Completed bool
	WordCount int
}

// SectionAnalysis is the outcome of one analysis pass over one section.
type SectionAnalysis struct {
	ScriptID          string
	SectionID         string
	SectionTitle      string
	SectionIndex      int
	NeedsRegeneration bool
	// Deferred marks a section that would be regenerated right now were it not
	// for an active cooldown; a later pass picks it up once the window expires.
	// A section that already meets the word count is never deferred, even
	// while its cooldown from a just-finished regeneration still runs.
	Deferred   bool
	Reason     string
	WordCount  int
	Attempts   int
	InCooldown bool
}

// regenState is the persisted per-section attempt record. It is created
// lazily on first analysis and retained indefinitely; only a manual
// regeneration or an explicit clear resets it.
type regenState struct {
	Attempts             int       `json:"attempts"`
	LastRegenerationTime time.Time `json:"last_regeneration_time"`
	InCooldown           bool      `json:"in_cooldown"`
	NextEligibleTime     time.Time `json:"next_eligible_time"`
}

const stateKeyPrefix = "regen:"

// Engine owns all SectionRegenerationState. Nothing else mutates it; the
// orchestrator reaches it only through the explicit methods below.
type Engine struct {
	rules  Rules
	queue  jobs.Queue
	kv     conversation.KV
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	states map[string]*regenState
}

func NewEngine(rules Rules, queue jobs.Queue, kv conversation.KV, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		rules:  rules,
		queue:  queue,
		kv:     kv,
		logger: logger,
		now:    time.Now,
		states: make(map[string]*regenState),
	}
	if err := e.loadAll(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadAll() error {
	keys, err := e.kv.Keys(stateKeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list regeneration state: %w", err)
	}
	for _, key := range keys {
		data, ok, err := e.kv.Get(key)
		if err != nil || !ok {
			continue
		}
		var st regenState
		if err := json.Unmarshal(data, &st); err != nil {
			e.logger.Warn("Skipping corrupt regeneration state", "key", key, "error", err)
			continue
		}
		e.states[strings.TrimPrefix(key, stateKeyPrefix)] = &st
	}
	return nil
}

func stateKey(scriptID, sectionID string) string {
	return scriptID + ":" + sectionID
}

// persist writes one state record. Persistence failures are logged and
// swallowed; losing a cooldown record must never break a generation run.
func (e *Engine) persist(key string, st *regenState) {
	data, err := json.Marshal(st)
	if err == nil {
		err = e.kv.Set(stateKeyPrefix+key, data)
	}
	if err != nil {
		e.logger.Error("Failed to persist regeneration state", "key", key, "error", err)
	}
}

// AnalyzeSection evaluates one section against the rules. The precedence is
// fixed and short-circuiting: an earlier rule's answer is never overridden
// by a later one.
func (e *Engine) AnalyzeSection(section Section, scriptID string, existingJobs []models.Job) SectionAnalysis {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	key := stateKey(scriptID, section.ID)
	st, ok := e.states[key]
	if !ok {
		st = &regenState{}
		e.states[key] = st
	}

	// Refresh the derived cooldown flag against the clock. Attempts and
	// timestamps are untouched, so this pass is idempotent.
	inCooldown := now.Before(st.NextEligibleTime)
	if st.InCooldown != inCooldown {
		st.InCooldown = inCooldown
		e.persist(key, st)
	}

	analysis := SectionAnalysis{
		ScriptID:     scriptID,
		SectionID:    section.ID,
		SectionTitle: section.Title,
		SectionIndex: section.Index,
		WordCount:    section.WordCount,
		Attempts:     st.Attempts,
		InCooldown:   inCooldown,
	}

	switch {
	case hasActiveJobFor(existingJobs, scriptID, section.ID):
		analysis.Reason = "already in progress"
	case st.Attempts >= e.rules.MaxAutoRegenerationAttempts:
		analysis.Reason = "exceeded max attempts"
	case inCooldown:
		remaining := math.Ceil(st.NextEligibleTime.Sub(now).Seconds())
		analysis.Reason = fmt.Sprintf("in cooldown (%.0fs remaining)", remaining)
		analysis.Deferred = section.Completed && section.WordCount < e.rules.MinimumWordCount
	case !section.Completed:
		analysis.Reason = "not yet completed"
	case section.WordCount >= e.rules.MinimumWordCount:
		analysis.Reason = "meets requirement"
	default:
		analysis.NeedsRegeneration = true
		analysis.Reason = fmt.Sprintf("below minimum word count (%d/%d)",
			section.WordCount, e.rules.MinimumWordCount)
	}

	return analysis
}

func hasActiveJobFor(existingJobs []models.Job, scriptID, sectionID string) bool {
	for _, job := range existingJobs {
		if job.Active() && job.TargetsSection(scriptID, sectionID) {
			return true
		}
	}
	return false
}

// RequestRegenerations enqueues at most one regeneration: the earliest
// deficient section by script order. Each completed regeneration triggers a
// fresh analysis pass that may queue the next one, so deficient sections are
// worked through sequentially instead of flooding the queue.
func (e *Engine) RequestRegenerations(conversationID string, analyses []SectionAnalysis) (*models.Job, error) {
	deficient := make([]SectionAnalysis, 0, len(analyses))
	for _, a := range analyses {
		if a.NeedsRegeneration {
			deficient = append(deficient, a)
		}
	}
	if len(deficient) == 0 {
		return nil, nil
	}

	sort.SliceStable(deficient, func(i, j int) bool {
		return deficient[i].SectionIndex < deficient[j].SectionIndex
	})
	first := deficient[0]

	e.recordAttempt(first.ScriptID, first.SectionID, false)

	job, err := e.queue.Enqueue(models.Job{
		Type:           models.JobTypeRegenerateSection,
		ScriptID:       first.ScriptID,
		SectionID:      first.SectionID,
		SectionTitle:   first.SectionTitle,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue regeneration: %w", err)
	}

	e.logger.Info("Regeneration queued",
		"script_id", first.ScriptID,
		"section", first.SectionTitle,
		"reason", first.Reason,
		"remaining_deficient", len(deficient)-1)
	return &job, nil
}

// RequestManualRegeneration bypasses analysis entirely. Attempts reset to
// zero and the manual attempt is recorded on top, so the counter reads 1 and
// cooldown or exhausted limits never block a deliberate user action.
func (e *Engine) RequestManualRegeneration(conversationID string, scriptID string, section Section) (*models.Job, error) {
	e.mu.Lock()
	key := stateKey(scriptID, section.ID)
	e.states[key] = &regenState{}
	e.mu.Unlock()

	e.recordAttempt(scriptID, section.ID, true)

	job, err := e.queue.Enqueue(models.Job{
		Type:           models.JobTypeRegenerateSection,
		ScriptID:       scriptID,
		SectionID:      section.ID,
		SectionTitle:   section.Title,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue manual regeneration: %w", err)
	}

	e.logger.Info("Manual regeneration queued", "script_id", scriptID, "section", section.Title)
	return &job, nil
}

// RecordAttempt bumps the attempt counter and opens a fresh cooldown window.
// A manual trigger restarts the counter at one instead of incrementing.
func (e *Engine) RecordAttempt(scriptID, sectionID string, manual bool) {
	e.recordAttempt(scriptID, sectionID, manual)
}

func (e *Engine) recordAttempt(scriptID, sectionID string, manual bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	key := stateKey(scriptID, sectionID)
	st, ok := e.states[key]
	if !ok {
		st = &regenState{}
		e.states[key] = st
	}

	if manual {
		st.Attempts = 1
	} else {
		st.Attempts++
	}
	st.LastRegenerationTime = now
	st.InCooldown = true
	st.NextEligibleTime = now.Add(e.rules.RegenerationCooldown)
	e.persist(key, st)
}

// Clear drops the persisted state for one section, the administrative reset.
func (e *Engine) Clear(scriptID, sectionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := stateKey(scriptID, sectionID)
	delete(e.states, key)
	return e.kv.Delete(stateKeyPrefix + key)
}
