package examples

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeExample(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSearchRanksByOverlap(t *testing.T) {
	dir := t.TempDir()
	writeExample(t, dir, "sleep/deep-rest.md", "# Deep Rest\n\nDrift into restful sleep, heavy and calm.")
	writeExample(t, dir, "focus/clarity.md", "# Clarity\n\nSharpen your focus and attention.")
	writeExample(t, dir, "sleep/night.md", "# Night\n\nA gentle night of restful calm and sleep and rest.")

	lib := Load(dir, testLogger())
	if lib.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", lib.Len())
	}

	results := lib.Search("restful sleep tonight", 2)
	if len(results) != 2 {
		t.Fatalf("Search returned %d documents, want 2", len(results))
	}
	for _, doc := range results {
		if doc.Category != "sleep" {
			t.Errorf("expected sleep-category documents, got %q (%s)", doc.Category, doc.Filename)
		}
		if doc.Score <= 0 {
			t.Errorf("document %s has non-positive score %f", doc.Filename, doc.Score)
		}
	}
}

func TestSearchExcludesUnrelated(t *testing.T) {
	dir := t.TempDir()
	writeExample(t, dir, "a.md", "calm water flowing downstream")

	lib := Load(dir, testLogger())
	if got := lib.Search("quantum chromodynamics", 5); len(got) != 0 {
		t.Errorf("unrelated query returned %d documents, want 0", len(got))
	}
}

func TestLoadMissingDirDegrades(t *testing.T) {
	lib := Load(filepath.Join(t.TempDir(), "absent"), testLogger())
	if lib.Len() != 0 {
		t.Errorf("Len() = %d, want 0", lib.Len())
	}
	if got := lib.Search("anything at all", 3); got != nil {
		t.Errorf("Search on empty library = %v, want nil", got)
	}
}

func TestSearchIgnoresNonMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeExample(t, dir, "notes.txt", "restful sleep restful sleep")
	writeExample(t, dir, "real.md", "restful sleep in the evening")

	lib := Load(dir, testLogger())
	if lib.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", lib.Len())
	}
	results := lib.Search("restful sleep", 5)
	if len(results) != 1 || results[0].Filename != "real.md" {
		t.Errorf("Search = %+v, want only real.md", results)
	}
}
