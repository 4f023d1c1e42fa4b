package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"imgscraper/internal/gallery"
	"imgscraper/internal/materializer"
	"imgscraper/internal/viewport"
	"imgscraper/pkg/checkpoint"
	apperrors "imgscraper/pkg/errors"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
)

// ErrSuperseded is returned by Start when a newer Start or Clear happened
// while the scrape was in flight
var ErrSuperseded = errors.New("scrape superseded by a newer request")

// Scraper asks the backend for the images on a page
type Scraper interface {
	Scrape(ctx context.Context, pageURL string, mode models.ScrapeMode) ([]models.ImageDescriptor, error)
}

// Options configures every session a Manager creates
type Options struct {
	BatchSize        int
	Concurrency      int
	MinStartInterval time.Duration
	// PreloadMargin in pixels; zero loads only what is on screen and a
	// negative value means viewport.DefaultMargin
	PreloadMargin int
	Layout        gallery.Layout
	// Viewport is applied to new sessions before the first batch is revealed
	Viewport viewport.Rect
	Renderer materializer.Renderer
	Listener Listener
	Logger   logger.Logger
}

// Manager creates, replaces and disposes sessions
type Manager struct {
	scraper Scraper
	fetcher materializer.Fetcher
	opts    Options
	logger  logger.Logger

	mu         sync.Mutex
	current    *Session
	generation uint64
}

// NewManager creates a Manager. Proxy fetches for every session go through fetcher.
func NewManager(scraper Scraper, fetcher materializer.Fetcher, opts Options) *Manager {
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	if opts.PreloadMargin < 0 {
		opts.PreloadMargin = viewport.DefaultMargin
	}
	return &Manager{
		scraper: scraper,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.OrGlobal(opts.Logger).WithField("component", "session"),
	}
}

// Current returns the live session, or nil
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetViewport changes the viewport later sessions start with
func (m *Manager) SetViewport(vp viewport.Rect) {
	m.mu.Lock()
	m.opts.Viewport = vp
	m.mu.Unlock()
}

// replaceLocked disposes the current session and starts a new generation
func (m *Manager) replaceLocked() (uint64, *Session) {
	m.generation++
	old := m.current
	m.current = nil
	return m.generation, old
}

// Start disposes the current session, scrapes pageURL and builds a new
// session with its first batch revealed. A scrape failure is reported once
// to the listener and leaves no session behind.
func (m *Manager) Start(ctx context.Context, pageURL string, mode models.ScrapeMode) (*Session, error) {
	pageURL = strings.TrimSpace(pageURL)

	m.mu.Lock()
	gen, old := m.replaceLocked()
	opts := m.opts
	m.mu.Unlock()

	if old != nil {
		old.Dispose()
	}

	if pageURL == "" {
		err := apperrors.New(apperrors.ErrorTypeInvalid, 0, "please enter a URL")
		opts.Listener.ScrapeFailed(err)
		return nil, err
	}

	m.logger.InfoWithFields("Scraping page", map[string]interface{}{
		"page": pageURL,
		"mode": string(mode),
	})
	start := time.Now()

	descs, err := m.scraper.Scrape(ctx, pageURL, mode)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrorTypeScrape) {
			err = apperrors.Wrap(apperrors.ErrorTypeScrape, err, "scrape failed")
		}
		m.logger.WithError(err).WarnWithFields("Scrape failed", map[string]interface{}{
			"page": pageURL,
		})
		if m.isCurrentGeneration(gen) {
			opts.Listener.ScrapeFailed(err)
		}
		return nil, err
	}

	s := newSession(pageURL, mode, descs, opts, m.fetcher, opts.Listener, m.logger)

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		s.Dispose()
		return nil, ErrSuperseded
	}
	m.current = s
	m.mu.Unlock()

	logger.LogComponentStart(m.logger, "session", map[string]interface{}{
		"session":  s.ID(),
		"images":   len(descs),
		"duration": time.Since(start),
	})

	opts.Listener.ScrapeCompleted(len(descs))
	s.RevealNext()
	return s, nil
}

// Restore rebuilds a session from a snapshot without scraping
func (m *Manager) Restore(snap *checkpoint.Snapshot) (*Session, error) {
	if snap == nil {
		return nil, fmt.Errorf("no snapshot to restore")
	}

	m.mu.Lock()
	_, old := m.replaceLocked()
	opts := m.opts
	m.mu.Unlock()

	if old != nil {
		old.Dispose()
	}

	s := newSession(snap.PageURL, snap.Mode, snap.Descriptors, opts, m.fetcher, opts.Listener, m.logger)
	if snap.SessionID != "" {
		s.id = snap.SessionID
	}
	if !snap.CreatedAt.IsZero() {
		s.createdAt = snap.CreatedAt
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	opts.Listener.ScrapeCompleted(len(snap.Descriptors))

	target := snap.Revealed
	if target < 1 {
		target = 1
	}
	s.RevealTo(target)

	removed := make(map[int]bool, len(snap.Removed))
	for _, i := range snap.Removed {
		removed[i] = true
	}
	selected := make(map[int]bool, len(snap.Selected))
	for _, i := range snap.Selected {
		selected[i] = true
	}
	for _, c := range s.gallery.Cards() {
		switch {
		case removed[c.Index()]:
			s.Remove(c)
		case selected[c.Index()]:
			c.SetSelected(true)
		}
	}

	m.logger.InfoWithFields("Session restored", map[string]interface{}{
		"session":  s.ID(),
		"page":     s.PageURL(),
		"revealed": s.gallery.Revealed(),
		"removed":  len(snap.Removed),
	})
	return s, nil
}

// Clear disposes the current session and leaves none
func (m *Manager) Clear() {
	m.mu.Lock()
	_, old := m.replaceLocked()
	m.mu.Unlock()

	if old != nil {
		old.Dispose()
		logger.LogComponentStop(m.logger, "session", "cleared")
	}
}

func (m *Manager) isCurrentGeneration(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == gen
}
