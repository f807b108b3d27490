package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/driftline/scriptweave/internal/conversation"
	"github.com/driftline/scriptweave/pkg/models"
)

// Mock emits deterministic scripts without touching the network. The first
// GenerateScript call on a fresh mock produces an outline; every later call
// produces a section body. Useful for development runs and tests.
type Mock struct {
	mu       sync.Mutex
	calls    int
	sections int
	words    int
}

func NewMock(sections, wordsPerSection int) *Mock {
	if sections < 1 {
		sections = 1
	}
	if wordsPerSection < 1 {
		wordsPerSection = 1
	}
	return &Mock{sections: sections, words: wordsPerSection}
}

func (m *Mock) GenerateScript(ctx context.Context, req models.GenerationRequest, messages []conversation.ChatMessage, examples []models.ExampleDocument) (Stream, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if call == 0 {
		return newChunkStream(ctx, m.outline()), nil
	}
	section := (call-1)%m.sections + 1
	return newChunkStream(ctx, m.sectionBody(section)), nil
}

func (m *Mock) RegenerateSection(ctx context.Context, req models.RegenerationRequest, messages []conversation.ChatMessage) (Stream, error) {
	return newChunkStream(ctx, m.sectionText(req.SectionTitle)), nil
}

func (m *Mock) outline() string {
	var sb strings.Builder
	sb.WriteString("# A Quiet Descent\n\n")
	for i := 1; i <= m.sections; i++ {
		fmt.Fprintf(&sb, "## Part %d\n", i)
		fmt.Fprintf(&sb, "A steady continuation of the journey, stage %d.\n\n", i)
	}
	return sb.String()
}

func (m *Mock) sectionBody(index int) string {
	return m.sectionText(fmt.Sprintf("Part %d", index))
}

func (m *Mock) sectionText(title string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", title)
	for i := 0; i < m.words; i++ {
		if i > 0 && i%12 == 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("drifting ")
	}
	sb.WriteString("\n")
	return sb.String()
}

// chunkStream replays a fixed text in small chunks, splitting mid-word on
// purpose so consumers see realistic partial-token boundaries.
type chunkStream struct {
	ctx    context.Context
	chunks []string
	pos    int
}

const mockChunkSize = 7

func newChunkStream(ctx context.Context, text string) *chunkStream {
	var chunks []string
	for len(text) > 0 {
		n := mockChunkSize
		if n > len(text) {
			n = len(text)
		}
		chunks = append(chunks, text[:n])
		text = text[n:]
	}
	return &chunkStream{ctx: ctx, chunks: chunks}
}

func (s *chunkStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *chunkStream) Close() error { return nil }
