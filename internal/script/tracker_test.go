package script

import (
	"testing"
)

func TestShouldCreateNewSection(t *testing.T) {
	tests := []struct {
		name      string
		current   string // "" means no section tracked yet
		candidate string
		want      bool
	}{
		{
			name:      "no current section",
			current:   "",
			candidate: "Induction",
			want:      true,
		},
		{
			name:      "candidate is prefix of current (truncated mid-stream)",
			current:   "Visualization",
			candidate: "Visual",
			want:      false,
		},
		{
			name:      "current is prefix of candidate (title growing)",
			current:   "E",
			candidate: "Emergence",
			want:      false,
		},
		{
			name:      "identical titles",
			current:   "Deepening",
			candidate: "Deepening",
			want:      false,
		},
		{
			name:      "distinct titles",
			current:   "Induction",
			candidate: "Deepening",
			want:      true,
		},
		{
			name:      "case differences are distinct",
			current:   "Visual",
			candidate: "visual",
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			if tt.current != "" {
				tr.StartNewSection(1, tt.current)
			}

			if got := tr.ShouldCreateNewSection(tt.candidate); got != tt.want {
				t.Errorf("ShouldCreateNewSection(%q) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}

// A title is always compatible with itself immediately after StartNewSection.
func TestShouldCreateNewSectionSelfCompatible(t *testing.T) {
	titles := []string{"A", "Induction", "Deep Rest and Renewal", "##weird", " spaced "}

	for _, title := range titles {
		tr := NewTracker()
		tr.StartNewSection(0, title)
		if tr.ShouldCreateNewSection(title) {
			t.Errorf("ShouldCreateNewSection(%q) after StartNewSection = true, want false", title)
		}
	}
}

func TestTrackerObserveStreamingTitle(t *testing.T) {
	tr := NewTracker()

	// Title streams in fragments; it must not resolve until the newline lands.
	if events := tr.Observe("# De"); len(events) != 0 {
		t.Fatalf("unexpected events before title terminated: %v", events)
	}
	if events := tr.Observe("# Deep Re"); len(events) != 0 {
		t.Fatalf("unexpected events before title terminated: %v", events)
	}

	events := tr.Observe("# Deep Rest\n")
	if len(events) != 1 || events[0].Type != EventTitleResolved || events[0].Title != "Deep Rest" {
		t.Fatalf("expected title_resolved event, got %v", events)
	}
	if tr.DocumentTitle() != "Deep Rest" {
		t.Errorf("DocumentTitle() = %q", tr.DocumentTitle())
	}

	// Once finalized the title stops updating even if line 0 is re-observed.
	tr.Observe("# Deep Rest\n## Induction\n")
	if tr.DocumentTitle() != "Deep Rest" {
		t.Errorf("DocumentTitle() changed after finalization: %q", tr.DocumentTitle())
	}
}

func TestTrackerObserveSectionResolution(t *testing.T) {
	tr := NewTracker()

	// A section title arriving letter by fragment must produce exactly one
	// section, retitled as it grows.
	ev := tr.Observe("# T\n## E")
	if countEvents(ev, EventSectionStarted) != 1 {
		t.Fatalf("expected one section_started, got %v", ev)
	}
	firstID := tr.CurrentSectionID()

	ev = tr.Observe("# T\n## Emer")
	if countEvents(ev, EventSectionStarted) != 0 {
		t.Fatalf("fragment growth spawned a new section: %v", ev)
	}
	if countEvents(ev, EventSectionRetitle) != 1 {
		t.Fatalf("expected retitle event, got %v", ev)
	}

	ev = tr.Observe("# T\n## Emergence\nbody text\n")
	if countEvents(ev, EventSectionStarted) != 0 {
		t.Fatalf("expected no new section, got %v", ev)
	}
	if tr.CurrentSectionID() != firstID {
		t.Errorf("section id changed during title resolution")
	}
	if tr.CurrentSectionTitle() != "Emergence" {
		t.Errorf("CurrentSectionTitle() = %q", tr.CurrentSectionTitle())
	}

	// A genuinely distinct header starts a new section.
	ev = tr.Observe("# T\n## Emergence\nbody text\n## Awakening\n")
	if countEvents(ev, EventSectionStarted) != 1 {
		t.Fatalf("expected new section for distinct title, got %v", ev)
	}
	if tr.CurrentSectionID() == firstID {
		t.Errorf("distinct section reused previous id")
	}
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
