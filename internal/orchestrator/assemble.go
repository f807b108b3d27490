package orchestrator

import (
	"fmt"
	"strings"

	"github.com/driftline/scriptweave/internal/conversation"
	"github.com/driftline/scriptweave/internal/script"
	"github.com/driftline/scriptweave/pkg/models"
)

// AssembledScript is the current document derived from a conversation's
// generation history.
type AssembledScript struct {
	script.Document
	Raw string
}

// AssembleDocument replays a conversation's generations into the current
// script text. The first generation is the outline; every later generation
// contributes the sections its response carries, replacing a section with the
// same title in place or appending a new one at the end. This is how a
// regeneration's output lands in the middle of the script rather than after it.
func AssembleDocument(conv *conversation.Conversation) AssembledScript {
	if conv == nil || len(conv.Generations) == 0 {
		return AssembledScript{}
	}

	title := ""
	if outline, err := script.ParseOutline(conv.Generations[0].Response); err == nil {
		title = outline.Title
	} else if doc := script.ParseDocument(conv.Generations[0].Response); doc.Title != "" {
		title = doc.Title
	}

	var order []string
	content := make(map[string]string)
	for _, gen := range conv.Generations[1:] {
		doc := script.ParseDocument(gen.Response)
		for _, section := range doc.Sections {
			if _, seen := content[section.Title]; !seen {
				order = append(order, section.Title)
			}
			content[section.Title] = section.Content
		}
	}

	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", title)
	}
	for _, sectionTitle := range order {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", sectionTitle, content[sectionTitle])
	}

	raw := sb.String()
	return AssembledScript{
		Document: script.ParseDocument(raw),
		Raw:      raw,
	}
}

// Spoken delivery rate used to estimate a script's runtime in listings.
const spokenWordsPerMinute = 130

// ScriptRecord summarizes a conversation's current script for listings. The
// status follows the outline: draft until a parseable outline exists,
// in-progress while outlined sections are missing, complete once every one
// has been generated.
func ScriptRecord(conv *conversation.Conversation) models.Script {
	assembled := AssembleDocument(conv)
	record := models.Script{
		Title:   assembled.Title,
		Content: assembled.Raw,
		Status:  models.ScriptStatusDraft,
	}
	if conv == nil {
		return record
	}
	record.ID = conv.ScriptID
	record.CreatedAt = conv.CreatedAt

	if assembled.TotalWordCount > 0 {
		minutes := (assembled.TotalWordCount + spokenWordsPerMinute - 1) / spokenWordsPerMinute
		record.DisplayLength = fmt.Sprintf("%dm", minutes)
	}
	if len(conv.Generations) == 0 {
		return record
	}
	if outline, err := script.ParseOutline(conv.Generations[0].Response); err == nil {
		record.Status = models.ScriptStatusInProgress
		if len(assembled.Sections) >= len(outline.Sections) {
			record.Status = models.ScriptStatusComplete
		}
	}
	return record
}
