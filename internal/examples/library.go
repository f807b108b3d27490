// Package examples loads reference documents from disk and retrieves the
// ones most relevant to a generation prompt.
package examples

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/driftline/scriptweave/pkg/models"
)

// Library holds all example documents in memory. The corpus is small enough
// (hand-curated scripts) that scanning every document per query is fine.
type Library struct {
	docs   []models.ExampleDocument
	logger *slog.Logger
}

// Load reads every .md file under dir, recursively. The first-level
// subdirectory becomes the document's category. A missing or unreadable
// directory degrades to an empty library rather than failing the run.
func Load(dir string, logger *slog.Logger) *Library {
	lib := &Library{logger: logger}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		body, readErr := os.ReadFile(path)
		if readErr != nil {
			logger.Warn("Skipping unreadable example", "path", path, "error", readErr)
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = d.Name()
		}
		lib.docs = append(lib.docs, models.ExampleDocument{
			Body:     string(body),
			Filename: filepath.ToSlash(rel),
			Category: categoryOf(rel),
		})
		return nil
	})
	if err != nil {
		logger.Warn("Example library unavailable, continuing without examples",
			"dir", dir, "error", err)
		lib.docs = nil
	}

	logger.Info("Example library loaded", "dir", dir, "documents", len(lib.docs))
	return lib
}

func categoryOf(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 1 {
		return parts[0]
	}
	return ""
}

// Len returns the number of loaded documents.
func (l *Library) Len() int { return len(l.docs) }

// Search returns up to limit documents ranked by term overlap with the
// query. Documents that share no terms with the query are excluded, so an
// unrelated prompt returns nothing rather than arbitrary filler.
func (l *Library) Search(query string, limit int) []models.ExampleDocument {
	if limit <= 0 || len(l.docs) == 0 {
		return nil
	}

	queryTerms := termSet(query)
	if len(queryTerms) == 0 {
		return nil
	}

	scored := make([]models.ExampleDocument, 0, len(l.docs))
	for _, doc := range l.docs {
		score := overlapScore(queryTerms, termSet(doc.Body))
		if score <= 0 {
			continue
		}
		doc.Score = score
		scored = append(scored, doc)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Filename < scored[j].Filename
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// termSet lowercases and splits on non-letter boundaries, dropping terms too
// short to carry meaning.
func termSet(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(field) < 3 {
			continue
		}
		terms[field] = struct{}{}
	}
	return terms
}

// overlapScore is the fraction of query terms present in the document.
func overlapScore(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for term := range query {
		if _, ok := doc[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
