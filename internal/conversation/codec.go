package conversation

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Wire format: a sequence of ----delimited blocks. The first block is a YAML
// conversation header; each generation follows as a prompt header block, a raw
// prompt-text block, a response header block, and a raw response-text block,
// in that order. Unparsable blocks are skipped rather than failing the whole
// record, so a partially corrupted record still yields every intact exchange.

const (
	blockDelimiter = "---"

	blockTypeConversation = "conversation"
	blockTypePrompt       = "prompt"
	blockTypeResponse     = "response"
)

type blockHeader struct {
	Type         string `yaml:"type"`
	ID           string `yaml:"id,omitempty"`
	ScriptID     string `yaml:"scriptId,omitempty"`
	Role         string `yaml:"role,omitempty"`
	Timestamp    string `yaml:"timestamp,omitempty"`
	CachedTokens int    `yaml:"cachedTokens,omitempty"`
	CreatedAt    string `yaml:"createdAt,omitempty"`
	UpdatedAt    string `yaml:"updatedAt,omitempty"`
}

// Serialize encodes a conversation into the block wire format
func Serialize(c *Conversation) ([]byte, error) {
	var b strings.Builder

	if err := writeHeaderBlock(&b, blockHeader{
		Type:      blockTypeConversation,
		ID:        c.ID,
		ScriptID:  c.ScriptID,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return nil, err
	}

	for _, gen := range c.Generations {
		ts := gen.Timestamp.UTC().Format(time.RFC3339Nano)

		if err := writeHeaderBlock(&b, blockHeader{
			Type:      blockTypePrompt,
			Role:      "user",
			Timestamp: ts,
		}); err != nil {
			return nil, err
		}
		writeRawBlock(&b, gen.UserPrompt())

		if err := writeHeaderBlock(&b, blockHeader{
			Type:         blockTypeResponse,
			Role:         "assistant",
			Timestamp:    ts,
			CachedTokens: gen.CachedTokens,
		}); err != nil {
			return nil, err
		}
		writeRawBlock(&b, gen.Response)
	}

	return []byte(b.String()), nil
}

func writeHeaderBlock(b *strings.Builder, h blockHeader) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal block header: %w", err)
	}
	b.WriteString(blockDelimiter + "\n")
	b.Write(data)
	return nil
}

func writeRawBlock(b *strings.Builder, text string) {
	b.WriteString(blockDelimiter + "\n")
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}
}

// Parse decodes a block-format record. Blocks that fail to parse are skipped
// silently; the only hard failure is a record with no conversation header.
func Parse(data []byte) (*Conversation, error) {
	segments := splitSegments(string(data))

	var conv *Conversation
	var pending *Generation

	for i := 0; i < len(segments); i++ {
		h, ok := parseHeader(segments[i])
		if !ok {
			continue
		}

		switch h.Type {
		case blockTypeConversation:
			conv = &Conversation{
				ID:        h.ID,
				ScriptID:  h.ScriptID,
				CreatedAt: parseTimestamp(h.CreatedAt),
				UpdatedAt: parseTimestamp(h.UpdatedAt),
			}
		case blockTypePrompt:
			body, next := collectBody(segments, i+1)
			i = next - 1
			pending = &Generation{
				Messages:  []ChatMessage{{Role: "user", Content: body}},
				Timestamp: parseTimestamp(h.Timestamp),
			}
		case blockTypeResponse:
			body, next := collectBody(segments, i+1)
			i = next - 1
			if conv == nil || pending == nil {
				// Response without its prompt pair; nothing to attach to.
				continue
			}
			pending.Response = body
			pending.CachedTokens = h.CachedTokens
			conv.Generations = append(conv.Generations, *pending)
			pending = nil
		}
	}

	if conv == nil {
		return nil, fmt.Errorf("record contains no conversation header")
	}
	return conv, nil
}

// parseHeader reports whether a segment is a header block of a known type.
// Raw-text segments fail either the YAML parse or the type check.
func parseHeader(lines []string) (blockHeader, bool) {
	var h blockHeader
	if err := yaml.Unmarshal([]byte(strings.Join(lines, "\n")), &h); err != nil {
		return blockHeader{}, false
	}
	switch h.Type {
	case blockTypeConversation, blockTypePrompt, blockTypeResponse:
		return h, true
	}
	return blockHeader{}, false
}

// collectBody reassembles one raw-text body from the segments starting at
// start, stopping at the next segment that parses as a known header. A body
// containing delimiter-only lines (markdown horizontal rules) arrives split
// across several segments; rejoining them with the delimiter restores the
// original text exactly. Returns the body and the index of the segment that
// ended it.
func collectBody(segments [][]string, start int) (string, int) {
	var lines []string
	i := start
	for n := 0; i < len(segments); i++ {
		if _, ok := parseHeader(segments[i]); ok {
			break
		}
		if n > 0 {
			lines = append(lines, blockDelimiter)
		}
		lines = append(lines, segments[i]...)
		n++
	}
	return strings.Join(lines, "\n"), i
}

// splitSegments splits the record into line groups separated by delimiter-only
// lines. Lines before the first delimiter are dropped; everything after it is
// preserved, including zero-line groups between adjacent delimiters, so
// collectBody can reconstruct bodies that themselves contain delimiter lines.
func splitSegments(text string) [][]string {
	// The final block is always newline-terminated by the writer; strip that
	// terminator so it does not read back as an extra empty line.
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")

	var segments [][]string
	var current []string
	started := false

	flush := func() {
		if started {
			segments = append(segments, current)
		}
		current = nil
	}

	for _, line := range lines {
		if strings.TrimRight(line, " \t\r") == blockDelimiter {
			flush()
			started = true
			continue
		}
		current = append(current, line)
	}
	flush()

	return segments
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
