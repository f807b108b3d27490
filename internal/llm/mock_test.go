package llm

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/driftline/scriptweave/pkg/models"
)

func drain(t *testing.T, s Stream) string {
	t.Helper()
	var sb strings.Builder
	for {
		chunk, err := s.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error: %v", err)
		}
		sb.WriteString(chunk)
	}
	return sb.String()
}

func TestMockFirstCallIsOutline(t *testing.T) {
	m := NewMock(3, 50)

	stream, err := m.GenerateScript(context.Background(), models.GenerationRequest{Prompt: "relax"}, nil, nil)
	if err != nil {
		t.Fatalf("GenerateScript() error: %v", err)
	}
	text := drain(t, stream)

	if !strings.HasPrefix(text, "# ") {
		t.Errorf("outline should start with a title line, got %q", text[:20])
	}
	if got := strings.Count(text, "\n## "); got != 3 {
		t.Errorf("outline section headers = %d, want 3", got)
	}
}

func TestMockLaterCallsAreSections(t *testing.T) {
	m := NewMock(2, 30)

	first, _ := m.GenerateScript(context.Background(), models.GenerationRequest{}, nil, nil)
	drain(t, first)

	stream, err := m.GenerateScript(context.Background(), models.GenerationRequest{}, nil, nil)
	if err != nil {
		t.Fatalf("GenerateScript() error: %v", err)
	}
	text := drain(t, stream)

	if !strings.HasPrefix(text, "## Part 1") {
		t.Errorf("second call should emit the first section, got %q", text[:20])
	}
	if got := len(strings.Fields(text)); got < 30 {
		t.Errorf("section word count = %d, want >= 30", got)
	}
}

func TestMockRegenerateKeepsTitle(t *testing.T) {
	m := NewMock(2, 10)

	stream, err := m.RegenerateSection(context.Background(), models.RegenerationRequest{SectionTitle: "Emergence"}, nil)
	if err != nil {
		t.Fatalf("RegenerateSection() error: %v", err)
	}
	text := drain(t, stream)

	if !strings.HasPrefix(text, "## Emergence") {
		t.Errorf("regenerated section should open with its header, got %q", text[:20])
	}
}

func TestChunkStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newChunkStream(ctx, "one two three four five six seven eight")

	if _, err := s.Recv(); err != nil {
		t.Fatalf("Recv() before cancel: %v", err)
	}
	cancel()
	if _, err := s.Recv(); err != context.Canceled {
		t.Errorf("Recv() after cancel = %v, want context.Canceled", err)
	}
}
