// Package session owns everything that belongs to one scrape: the gallery,
// the viewport observer and the bounded scheduler. A Manager replaces the
// whole session on every scrape.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"imgscraper/internal/gallery"
	"imgscraper/internal/materializer"
	"imgscraper/internal/scheduler"
	"imgscraper/internal/viewport"
	"imgscraper/pkg/checkpoint"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
)

// Session is one scrape result being browsed
type Session struct {
	id        string
	pageURL   string
	mode      models.ScrapeMode
	createdAt time.Time

	gallery      *gallery.Gallery
	observer     *viewport.Observer
	scheduler    *scheduler.Scheduler
	materializer *materializer.Materializer
	listener     Listener
	logger       logger.Logger

	mu       sync.Mutex
	viewport viewport.Rect
	disposed bool
}

func newSession(pageURL string, mode models.ScrapeMode, descs []models.ImageDescriptor, opts Options, fetcher materializer.Fetcher, listener Listener, log logger.Logger) *Session {
	s := &Session{
		id:        uuid.NewString(),
		pageURL:   pageURL,
		mode:      mode,
		createdAt: time.Now(),
		listener:  listener,
	}
	s.logger = log.WithFields(map[string]interface{}{
		"session": s.id,
		"page":    pageURL,
	})

	s.gallery = gallery.New(descs, gallery.Options{
		BatchSize: opts.BatchSize,
		Layout:    opts.Layout,
		OnStateChange: func(c *gallery.Card, from, to gallery.State) {
			s.listener.CardStateChanged(c, from, to)
		},
		Logger: s.logger,
	})
	s.scheduler = scheduler.New(scheduler.Options{
		Concurrency:      opts.Concurrency,
		MinStartInterval: opts.MinStartInterval,
		Logger:           s.logger,
	})
	s.materializer = materializer.New(fetcher, materializer.NewHandleStore(), opts.Renderer, s.logger)
	s.observer = viewport.NewObserver(s.onVisible, viewport.WithMargin(opts.PreloadMargin))

	if opts.Viewport.Height > 0 {
		s.viewport = opts.Viewport
		s.observer.SetViewport(opts.Viewport)
	}
	return s
}

// onVisible queues a card that came into the extended viewport
func (s *Session) onVisible(el viewport.Element) {
	card, ok := el.(*gallery.Card)
	if !ok || !card.MarkPending() {
		return
	}

	err := s.scheduler.Submit(card.Key(), func(ctx context.Context) {
		s.materializer.Materialize(ctx, card)
	})
	if err != nil && !errors.Is(err, scheduler.ErrClosed) {
		s.logger.WarnWithFields("Card not queued", map[string]interface{}{
			"index": card.Index(),
			"error": err.Error(),
		})
	}
}

// ID identifies the session
func (s *Session) ID() string { return s.id }

// PageURL is the scraped page
func (s *Session) PageURL() string { return s.pageURL }

// Mode is the scrape mode used
func (s *Session) Mode() models.ScrapeMode { return s.mode }

// CreatedAt is when the session was created
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Gallery exposes the gallery model
func (s *Session) Gallery() *gallery.Gallery { return s.gallery }

// Scheduler exposes the scheduler, for stats and tuning
func (s *Session) Scheduler() *scheduler.Scheduler { return s.scheduler }

// Handles exposes the display handle store, for leak checks
func (s *Session) Handles() *materializer.HandleStore { return s.materializer.Handles() }

// RevealNext renders the next batch as placeholders and starts observing it
func (s *Session) RevealNext() ([]*gallery.Card, bool) {
	if s.Disposed() {
		return nil, false
	}
	cards, more := s.gallery.RevealNext()
	if len(cards) == 0 {
		return nil, more
	}

	s.listener.BatchRevealed(cards, more)
	for _, c := range cards {
		s.observer.Observe(c)
	}
	return cards, more
}

// RevealTo reveals batches until at least n descriptors are revealed or none
// remain, and returns the cards added
func (s *Session) RevealTo(n int) []*gallery.Card {
	var all []*gallery.Card
	for s.gallery.Revealed() < n {
		cards, more := s.RevealNext()
		all = append(all, cards...)
		if !more {
			break
		}
	}
	return all
}

// RevealAll reveals every remaining batch
func (s *Session) RevealAll() []*gallery.Card {
	return s.RevealTo(s.gallery.Total())
}

// HasMore reports whether RevealNext would add cards
func (s *Session) HasMore() bool {
	return !s.Disposed() && s.gallery.HasMore()
}

// Scroll moves the viewport and queues every card that became visible
func (s *Session) Scroll(vp viewport.Rect) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.viewport = vp
	s.mu.Unlock()

	s.observer.SetViewport(vp)
}

// Viewport returns the last viewport passed to Scroll
func (s *Session) Viewport() viewport.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// Remove deletes a card. Its pending work becomes a no-op.
func (s *Session) Remove(card *gallery.Card) bool {
	if !s.gallery.Remove(card) {
		return false
	}
	s.observer.Unobserve(card)
	s.observer.Check()
	return true
}

// RemoveSelected deletes every selected card and returns how many were removed
func (s *Session) RemoveSelected() int {
	removed := s.gallery.RemoveSelected()
	for _, c := range removed {
		s.observer.Unobserve(c)
	}
	if len(removed) > 0 {
		s.observer.Check()
	}
	return len(removed)
}

// Selection returns the selected descriptors in display order
func (s *Session) Selection() []models.ImageDescriptor {
	return s.gallery.Selection()
}

// SetConcurrency changes the number of simultaneous loads
func (s *Session) SetConcurrency(k int) error {
	return s.scheduler.SetConcurrency(k)
}

// SetMinStartInterval changes the spacing between load starts
func (s *Session) SetMinStartInterval(d time.Duration) {
	s.scheduler.SetMinStartInterval(d)
}

// Wait blocks until every queued load has finished
func (s *Session) Wait(ctx context.Context) error {
	return s.scheduler.Wait(ctx)
}

// Summary counts cards by state
func (s *Session) Summary() gallery.Summary {
	return s.gallery.Summary()
}

// Snapshot captures what is needed to rebuild the session later
func (s *Session) Snapshot() *checkpoint.Snapshot {
	snap := &checkpoint.Snapshot{
		SessionID:   s.id,
		PageURL:     s.pageURL,
		Mode:        s.mode,
		Descriptors: s.gallery.Descriptors(),
		Revealed:    s.gallery.Revealed(),
		CreatedAt:   s.createdAt,
	}

	attached := make(map[int]bool)
	for _, c := range s.gallery.Cards() {
		attached[c.Index()] = true
		if c.Selected() {
			snap.Selected = append(snap.Selected, c.Index())
		}
	}
	for i := 0; i < snap.Revealed; i++ {
		if !attached[i] {
			snap.Removed = append(snap.Removed, i)
		}
	}
	return snap
}

// Disposed reports whether Dispose was called
func (s *Session) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Dispose tears the session down: the observer is disconnected, queued loads
// are dropped, in-flight loads are cancelled, every card is detached and all
// display handles are revoked. Calling it again does nothing.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()

	s.observer.Disconnect()
	s.scheduler.Close()
	s.gallery.Clear()
	revoked := s.materializer.Handles().RevokeAll()

	stats := s.scheduler.Stats()
	s.logger.DebugWithFields("Session disposed", map[string]interface{}{
		"started":   stats.Started,
		"completed": stats.Completed,
		"revoked":   revoked,
	})
}
