package script

import (
	"strings"

	"github.com/google/uuid"
)

// EventType identifies a tracker event
type EventType string

const (
	EventTitleResolved  EventType = "title_resolved"
	EventSectionStarted EventType = "section_started"
	EventSectionRetitle EventType = "section_retitled"
)

// Event is emitted by the tracker as streamed content crosses boundaries
type Event struct {
	Type      EventType
	SectionID string
	Title     string
	Line      int
}

// currentSection tracks the section whose header was seen most recently
type currentSection struct {
	id        string
	startLine int
	title     string
	created   bool
}

// Tracker decides, as a document streams in token by token, whether a newly
// observed "## <text>" line is a genuinely new section or the same section's
// title still resolving. Callers feed it the full accumulated text after each
// chunk; it only re-examines lines from the last processed index onward.
type Tracker struct {
	lastLine       int
	current        *currentSection
	docTitle       string
	titleFinalized bool
}

// NewTracker creates a tracker for one streaming document
func NewTracker() *Tracker {
	return &Tracker{}
}

// DocumentTitle returns the latest resolved document title
func (t *Tracker) DocumentTitle() string {
	return t.docTitle
}

// CurrentSectionID returns the id of the section currently being streamed,
// or "" when no section header has been observed yet
func (t *Tracker) CurrentSectionID() string {
	if t.current == nil {
		return ""
	}
	return t.current.id
}

// CurrentSectionTitle returns the latest known title of the current section
func (t *Tracker) CurrentSectionTitle() string {
	if t.current == nil {
		return ""
	}
	return t.current.title
}

// ShouldCreateNewSection reports whether candidateTitle denotes a distinct
// section rather than the current section's title still being typed out.
// The comparison is an exact, case-sensitive mutual-prefix check: "E" vs
// "Emergence" is the same title mid-stream, and "Visualization" vs "Visual"
// covers truncation during streaming. "visual" vs "Visual" are distinct.
func (t *Tracker) ShouldCreateNewSection(candidateTitle string) bool {
	if t.current == nil {
		return true
	}
	current := t.current.title
	if strings.HasPrefix(current, candidateTitle) || strings.HasPrefix(candidateTitle, current) {
		return false
	}
	return true
}

// StartNewSection begins tracking a new section at the given line and returns
// its id. Immediately after StartNewSection, ShouldCreateNewSection(title)
// is false: a title is always compatible with itself.
func (t *Tracker) StartNewSection(line int, title string) string {
	t.current = &currentSection{
		id:        uuid.New().String(),
		startLine: line,
		title:     title,
		created:   true,
	}
	return t.current.id
}

// Observe processes the accumulated document text and returns events for any
// boundary changes since the previous call. The final line of input is always
// reprocessed on the next call because it may still be growing.
func (t *Tracker) Observe(accumulated string) []Event {
	if accumulated == "" {
		return nil
	}

	lines := strings.Split(accumulated, "\n")
	var events []Event

	for i := t.lastLine; i < len(lines); i++ {
		line := lines[i]
		terminated := i < len(lines)-1

		// Document title resolves on line 0 and freezes once its newline
		// arrives. Partial fragments like "#" or "# " are ignored.
		if i == 0 && !t.titleFinalized {
			if m := titlePattern.FindStringSubmatch(line); m != nil {
				if title := strings.TrimSpace(m[1]); title != "" {
					t.docTitle = title
				}
			}
			if terminated {
				t.titleFinalized = true
				if t.docTitle != "" {
					events = append(events, Event{Type: EventTitleResolved, Title: t.docTitle, Line: 0})
				}
			}
			continue
		}

		m := sectionPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if candidate == "" {
			continue
		}

		if t.ShouldCreateNewSection(candidate) {
			id := t.StartNewSection(i, candidate)
			events = append(events, Event{Type: EventSectionStarted, SectionID: id, Title: candidate, Line: i})
		} else if candidate != t.current.title {
			t.current.title = candidate
			events = append(events, Event{Type: EventSectionRetitle, SectionID: t.current.id, Title: candidate, Line: i})
		}
	}

	// The last line may still grow; everything before it is settled.
	t.lastLine = len(lines) - 1

	return events
}
