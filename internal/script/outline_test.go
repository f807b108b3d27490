package script

import (
	"testing"
)

func TestParseOutline(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantErr      bool
		wantTitle    string
		wantSections int
	}{
		{
			name:         "two sections with descriptions",
			input:        "# Title\n## A\ndesc A\n## B\ndesc B",
			wantTitle:    "Title",
			wantSections: 2,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
		{
			name:    "missing title header",
			input:   "Just prose\n## A\ndesc",
			wantErr: true,
		},
		{
			name:    "title but no sections",
			input:   "# Title\nsome prose\nmore prose",
			wantErr: true,
		},
		{
			name:         "section without description",
			input:        "# Title\n## A\n## B\ndesc B",
			wantTitle:    "Title",
			wantSections: 2,
		},
		{
			name:         "leading whitespace tolerated",
			input:        "\n\n# Title\n## A\ndesc A",
			wantTitle:    "Title",
			wantSections: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outline, err := ParseOutline(tt.input)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOutline() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if outline.Title != tt.wantTitle {
				t.Errorf("ParseOutline() title = %q, want %q", outline.Title, tt.wantTitle)
			}
			if len(outline.Sections) != tt.wantSections {
				t.Errorf("ParseOutline() sections = %d, want %d", len(outline.Sections), tt.wantSections)
			}
		})
	}
}

func TestParseOutlineDescriptions(t *testing.T) {
	input := "# Title\n## A\ndesc A\nextra line dropped\n## B\n\ndesc B\n## C"
	outline, err := ParseOutline(input)
	if err != nil {
		t.Fatalf("ParseOutline() error = %v", err)
	}

	if len(outline.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(outline.Sections))
	}

	// Only the first non-empty line after a header becomes the description.
	if outline.Sections[0].Description != "desc A" {
		t.Errorf("section A description = %q, want %q", outline.Sections[0].Description, "desc A")
	}
	// Blank lines between header and description are skipped.
	if outline.Sections[1].Description != "desc B" {
		t.Errorf("section B description = %q, want %q", outline.Sections[1].Description, "desc B")
	}
	// A section with no description line gets the empty string.
	if outline.Sections[2].Description != "" {
		t.Errorf("section C description = %q, want empty", outline.Sections[2].Description)
	}
}
