package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"imgscraper/internal/gallery"
)

// ProgressDisplay prints session events for headless runs. It implements
// session.Listener.
type ProgressDisplay struct {
	mu      sync.Mutex
	w       io.Writer
	pageURL string
	perCard bool
	tracker *StatusTracker
}

// NewProgressDisplay creates a display for pageURL. With perCard set every
// settled card gets its own line, otherwise a single progress line is
// redrawn.
func NewProgressDisplay(w io.Writer, pageURL string, perCard bool) *ProgressDisplay {
	return &ProgressDisplay{
		w:       w,
		pageURL: pageURL,
		perCard: perCard,
		tracker: NewStatusTracker(0),
	}
}

// Tracker exposes the underlying counters
func (p *ProgressDisplay) Tracker() *StatusTracker {
	return p.tracker
}

func (p *ProgressDisplay) ScrapeCompleted(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "%s found %d images on %s\n", Green("✓"), count, Cyan(p.pageURL))
}

func (p *ProgressDisplay) ScrapeFailed(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "%s scrape failed: %v\n", Red("✗"), err)
}

// BatchRevealed grows the expected total by the revealed cards
func (p *ProgressDisplay) BatchRevealed(cards []*gallery.Card, more bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _, total := p.tracker.Counts()
	p.tracker.SetTotal(total + len(cards))
	if p.perCard && len(cards) > 0 {
		suffix := ""
		if more {
			suffix = Dim(" (more available)")
		}
		fmt.Fprintf(p.w, "%s revealed %d cards%s\n", Magenta("→"), len(cards), suffix)
	}
}

func (p *ProgressDisplay) CardStateChanged(card *gallery.Card, from, to gallery.State) {
	if !to.Terminal() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	desc := card.Descriptor()
	switch to {
	case gallery.StateLoaded:
		p.tracker.Loaded()
		if p.perCard {
			w, h := card.Dimensions()
			fmt.Fprintf(p.w, "%s #%d %s • %dx%d • %s\n", Green("✓"), card.Index()+1,
				truncate(desc.DisplayAlt(), 40), w, h, Dim(desc.SourceURL))
		}
	case gallery.StateFailed:
		p.tracker.Failed()
		if p.perCard {
			fmt.Fprintf(p.w, "%s #%d %s • %v\n", Red("✗"), card.Index()+1,
				truncate(desc.DisplayAlt(), 40), card.Err())
		}
	}

	if !p.perCard {
		p.printProgressLocked()
	}
}

func (p *ProgressDisplay) printProgressLocked() {
	loaded, failed, _ := p.tracker.Counts()
	line := fmt.Sprintf("%s %s • %d loaded", Cyan("gallery"), p.tracker.ProgressBar(20), loaded)
	if failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", failed))
	}
	fmt.Fprintf(p.w, "\r%s\r%s", strings.Repeat(" ", 100), line)
}

// Complete prints the summary
func (p *ProgressDisplay) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	loaded, failed, total := p.tracker.Counts()
	if !p.perCard {
		fmt.Fprintln(p.w)
	}
	fmt.Fprintf(p.w, "\n%s %d/%d images loaded from %s\n", Green("✓"), loaded, total, p.pageURL)
	fmt.Fprintf(p.w, "  %s in %s (%.1f images/s)\n", Dim("•"), FormatDuration(p.tracker.Elapsed()), p.tracker.Rate())
	if failed > 0 {
		fmt.Fprintf(p.w, "  %s %d images failed\n", Dim("•"), failed)
	}
	if !p.tracker.Done() {
		fmt.Fprintf(p.w, "  %s %d images never loaded\n", Dim("•"), total-loaded-failed)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
