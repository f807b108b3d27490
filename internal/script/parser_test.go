package script

import (
	"strings"
	"testing"
)

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantTitle    string
		wantSections int
		wantTotal    int
	}{
		{
			name:         "empty input",
			input:        "",
			wantTitle:    "",
			wantSections: 0,
		},
		{
			name:         "title only",
			input:        "# Deep Rest\n",
			wantTitle:    "Deep Rest",
			wantSections: 0,
		},
		{
			name:         "title and two sections",
			input:        "# Deep Rest\n## Induction\nbreathe in slowly\n## Deepening\nsink further down now",
			wantTitle:    "Deep Rest",
			wantSections: 2,
			wantTotal:    7,
		},
		{
			name:         "double hash is not a document title",
			input:        "## Induction\nbreathe in\n",
			wantTitle:    "",
			wantSections: 1,
			wantTotal:    2,
		},
		{
			name:         "triple hash is not a section boundary",
			input:        "# T\n## A\nline one\n### sub\nline two",
			wantTitle:    "T",
			wantSections: 1,
			wantTotal:    6,
		},
		{
			name:         "trailing bare hash fragment is not a boundary",
			input:        "# T\n## A\nsome words here\n##",
			wantTitle:    "T",
			wantSections: 1,
			wantTotal:    3,
		},
		{
			name:         "trailing one-char header fragment is not a boundary",
			input:        "# T\n## A\nsome words here\n## D",
			wantTitle:    "T",
			wantSections: 1,
			wantTotal:    3,
		},
		{
			name:         "two-char header at end is a real boundary",
			input:        "# T\n## A\nsome words here\n## De",
			wantTitle:    "T",
			wantSections: 2,
			wantTotal:    3,
		},
		{
			name:         "empty title header is skipped",
			input:        "#   \ncontent\n## A\nwords",
			wantTitle:    "",
			wantSections: 1,
			wantTotal:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := ParseDocument(tt.input)

			if doc.Title != tt.wantTitle {
				t.Errorf("ParseDocument() title = %q, want %q", doc.Title, tt.wantTitle)
			}
			if len(doc.Sections) != tt.wantSections {
				t.Errorf("ParseDocument() sections = %d, want %d", len(doc.Sections), tt.wantSections)
			}
			if doc.TotalWordCount != tt.wantTotal {
				t.Errorf("ParseDocument() total words = %d, want %d", doc.TotalWordCount, tt.wantTotal)
			}
		})
	}
}

func TestParseDocumentSectionDetails(t *testing.T) {
	input := "# Script\n## Induction\nclose your eyes\nand drift\n## Awakening\ncount back up"
	doc := ParseDocument(input)

	if len(doc.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(doc.Sections))
	}

	first := doc.Sections[0]
	if first.Title != "Induction" {
		t.Errorf("section title = %q, want Induction", first.Title)
	}
	if first.Content != "close your eyes\nand drift" {
		t.Errorf("section content = %q", first.Content)
	}
	if first.WordCount != 5 {
		t.Errorf("section word count = %d, want 5", first.WordCount)
	}
	if first.StartLine != 1 || first.EndLine != 3 {
		t.Errorf("section lines = %d..%d, want 1..3", first.StartLine, first.EndLine)
	}

	second := doc.Sections[1]
	if second.Title != "Awakening" || second.WordCount != 3 {
		t.Errorf("second section = %q (%d words)", second.Title, second.WordCount)
	}
}

// ExtractSectionContent must never return content with a dangling header
// fragment, no matter where the stream was cut off.
func TestExtractSectionContentNeverDangles(t *testing.T) {
	full := "# T\n## First\nsome body text here\n## Second\nmore body text"

	for i := len("# T\n## First\nsome"); i <= len(full); i++ {
		partial := full[:i]
		doc := ParseDocument(partial)
		for si := range doc.Sections {
			content := ExtractSectionContent(partial, si)
			if content == "" {
				continue
			}
			lastLine := content
			if idx := strings.LastIndex(content, "\n"); idx >= 0 {
				lastLine = content[idx+1:]
			}
			if danglingHeaderPattern.MatchString(strings.TrimRight(lastLine, " \t")) {
				t.Fatalf("prefix %q: section %d content ends with dangling header: %q", partial, si, content)
			}
		}
	}
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"one two\tthree\nfour", 4},
		{"  padded   words  ", 2},
	}

	for _, tt := range tests {
		if got := CountWords(tt.input); got != tt.want {
			t.Errorf("CountWords(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
