package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/driftline/scriptweave/pkg/models"
)

// progressRenderer draws generation progress on stderr: a spinner while the
// outline or a regeneration streams, a section-counting bar during phase two.
type progressRenderer struct {
	mu          sync.Mutex
	bar         *progressbar.ProgressBar
	description string
	sectionBar  bool
}

func newProgressRenderer() *progressRenderer {
	return &progressRenderer{}
}

// Progress implements orchestrator.ProgressSink
func (p *progressRenderer) Progress(u models.ProgressUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u.Phase.Terminal() {
		p.finish(u)
		return
	}

	switch u.Phase {
	case models.PhaseIdle:
		// Accepted but not streaming yet; nothing to draw.

	case models.PhaseGeneratingOutline:
		p.ensureSpinner("Generating outline")
		_ = p.bar.Add(1)

	case models.PhaseGeneratingSection:
		if u.TotalSections > 0 {
			p.ensureSectionBar(u.TotalSections)
			p.bar.Describe(fmt.Sprintf("Section %d/%d: %s", u.SectionIndex+1, u.TotalSections, u.SectionTitle))
			if done := len(u.SectionWordCounts); done > 0 {
				_ = p.bar.Set(done)
			}
		} else {
			p.ensureSpinner("Regenerating " + u.SectionTitle)
			_ = p.bar.Add(1)
		}
	}
}

// finish tears down the active bar at the end of a run
func (p *progressRenderer) finish(u models.ProgressUpdate) {
	if u.Phase == models.PhaseError {
		if p.bar != nil {
			_ = p.bar.Clear()
			p.bar = nil
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", u.Error)
		return
	}
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
		fmt.Fprintln(os.Stderr)
	}
}

func (p *progressRenderer) ensureSpinner(description string) {
	if p.bar != nil && !p.sectionBar && p.description == description {
		return
	}
	if p.bar != nil {
		_ = p.bar.Finish()
	}
	p.bar = progressbar.Default(-1, description)
	p.description = description
	p.sectionBar = false
}

func (p *progressRenderer) ensureSectionBar(total int) {
	if p.bar != nil && p.sectionBar {
		return
	}
	if p.bar != nil {
		_ = p.bar.Finish()
	}
	p.bar = progressbar.Default(int64(total), "Generating sections")
	p.sectionBar = true
}
