package script

import (
	"fmt"
	"strings"
)

// OutlineSection is one planned section of a script outline
type OutlineSection struct {
	Title       string
	Description string
}

// Outline is the parsed result of the outline generation phase
type Outline struct {
	Title    string
	Sections []OutlineSection
}

// ParseOutline parses the outline response text. The first line must be a
// single-hash title; each ## header starts a section whose description is the
// first non-empty, non-header line that follows it. Additional descriptive
// lines are dropped: downstream prompts are tuned against one-line summaries.
// An outline with zero sections is a parse failure.
func ParseOutline(raw string) (*Outline, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("outline is empty")
	}

	lines := strings.Split(trimmed, "\n")

	m := titlePattern.FindStringSubmatch(lines[0])
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return nil, fmt.Errorf("outline must start with a title header, got %q", lines[0])
	}

	outline := &Outline{Title: strings.TrimSpace(m[1])}

	for i := 1; i < len(lines); i++ {
		sm := sectionPattern.FindStringSubmatch(lines[i])
		if sm == nil {
			continue
		}

		section := OutlineSection{Title: strings.TrimSpace(sm[1])}

		// Description: first following non-empty line that is not a header.
		for j := i + 1; j < len(lines); j++ {
			line := strings.TrimSpace(lines[j])
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "#") {
				break
			}
			section.Description = line
			break
		}

		outline.Sections = append(outline.Sections, section)
	}

	if len(outline.Sections) == 0 {
		return nil, fmt.Errorf("outline %q contains no sections", outline.Title)
	}

	return outline, nil
}
