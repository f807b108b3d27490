// Package script parses generated markdown into a title and ordered sections,
// and tracks section boundaries while content is still streaming in.
//
// The parser is intentionally not incremental: callers re-parse the whole
// accumulated string on every chunk. Input sizes are bounded (a few thousand
// words), and whole-string parsing keeps the streaming title-resolution
// semantics in the tracker correct.
package script

import (
	"regexp"
	"strings"
)

var (
	titlePattern   = regexp.MustCompile(`^#\s+(.+)$`)
	sectionPattern = regexp.MustCompile(`^##\s+(.+)$`)

	// danglingHeaderPattern matches an incomplete section header fragment:
	// a bare "##" or "##" followed by at most one whitespace and one other
	// character. Such a line at the very end of streamed input is a header
	// still being typed out, not a section boundary.
	danglingHeaderPattern = regexp.MustCompile(`^##\s?\S?$`)
)

// Section is one ##-delimited unit of a parsed document
type Section struct {
	Title     string
	Content   string
	WordCount int
	StartLine int
	EndLine   int
}

// Document is the structured view of a parsed (possibly partial) markdown script
type Document struct {
	Title          string
	Sections       []Section
	TotalWordCount int
}

// ParseDocument parses raw markdown into a title plus ordered sections.
// It is safe to call on partial streaming input: a trailing incomplete header
// fragment is stripped from the preceding section's content rather than
// starting a spurious new section.
func ParseDocument(raw string) Document {
	doc := Document{}
	if raw == "" {
		return doc
	}

	lines := strings.Split(raw, "\n")

	// Document title: first single-hash header with non-empty content.
	for _, line := range lines {
		if m := titlePattern.FindStringSubmatch(line); m != nil {
			if title := strings.TrimSpace(m[1]); title != "" {
				doc.Title = title
				break
			}
		}
	}

	// Section boundaries: every complete ## header line. A dangling fragment
	// on the final line of input is not a boundary.
	type boundary struct {
		line  int
		title string
	}
	var boundaries []boundary
	for i, line := range lines {
		m := sectionPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if i == len(lines)-1 && danglingHeaderPattern.MatchString(line) {
			continue
		}
		boundaries = append(boundaries, boundary{line: i, title: strings.TrimSpace(m[1])})
	}

	for bi, b := range boundaries {
		end := len(lines) - 1
		if bi+1 < len(boundaries) {
			end = boundaries[bi+1].line - 1
		}

		content := extractContent(lines, b.line+1, end)
		sec := Section{
			Title:     b.title,
			Content:   content,
			WordCount: CountWords(content),
			StartLine: b.line,
			EndLine:   end,
		}
		doc.Sections = append(doc.Sections, sec)
		doc.TotalWordCount += sec.WordCount
	}

	return doc
}

// ExtractSectionContent returns the stripped content of the section at the
// given index, or "" when the index is out of range. The returned content
// never ends with a dangling header fragment.
func ExtractSectionContent(raw string, index int) string {
	doc := ParseDocument(raw)
	if index < 0 || index >= len(doc.Sections) {
		return ""
	}
	return doc.Sections[index].Content
}

// CountWords returns the whitespace-tokenized word count of text
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// extractContent joins lines[start..end] and strips trailing incomplete header
// fragments so displayed content never shows a dangling "##".
func extractContent(lines []string, start, end int) string {
	if start > end || start >= len(lines) {
		return ""
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}

	region := lines[start : end+1]

	// Drop trailing blank lines and header fragments from the captured region.
	for len(region) > 0 {
		last := strings.TrimRight(region[len(region)-1], " \t")
		if last == "" || danglingHeaderPattern.MatchString(last) {
			region = region[:len(region)-1]
			continue
		}
		break
	}

	return strings.TrimSpace(strings.Join(region, "\n"))
}
