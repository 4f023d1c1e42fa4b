// Package materializer turns a card's placeholder into a displayed image:
// fetch through the proxy, hold the bytes behind a local handle, swap, decode,
// revoke.
package materializer

import (
	"context"
	"time"

	"imgscraper/internal/gallery"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
)

// Fetcher retrieves image bytes through the backend proxy
type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.ImageData, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, url string) (models.ImageData, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (models.ImageData, error) {
	return f(ctx, url)
}

// Materializer loads cards one at a time; callers bound concurrency
type Materializer struct {
	fetcher  Fetcher
	handles  *HandleStore
	renderer Renderer
	logger   logger.Logger
}

// New creates a Materializer. A nil renderer uses ImageRenderer and a nil
// store gets a fresh HandleStore.
func New(fetcher Fetcher, handles *HandleStore, renderer Renderer, log logger.Logger) *Materializer {
	if handles == nil {
		handles = NewHandleStore()
	}
	if renderer == nil {
		renderer = ImageRenderer{}
	}
	return &Materializer{
		fetcher:  fetcher,
		handles:  handles,
		renderer: renderer,
		logger:   logger.OrGlobal(log).WithField("component", "materializer"),
	}
}

// Handles exposes the handle store, mainly for leak checks
func (m *Materializer) Handles() *HandleStore {
	return m.handles
}

// Materialize loads card. A detached card, or one already past pending, is
// left alone. Fetch and decode failures end in the failed state and are not
// retried.
func (m *Materializer) Materialize(ctx context.Context, card *gallery.Card) {
	if !card.MarkLoading() {
		return
	}
	src := card.Descriptor().SourceURL
	start := time.Now()

	data, err := m.fetcher.Fetch(ctx, src)
	if err != nil {
		if card.Fail(err) {
			logger.LogCardState(m.logger, card.Index(), src, "loading", "failed", err)
		}
		return
	}

	handle := m.handles.Create(data)
	defer m.handles.Revoke(handle)

	if !card.Swap(handle, func() { m.handles.Revoke(handle) }) {
		return
	}

	payload, ok := m.handles.Open(handle)
	if !ok {
		// Card was removed between swap and decode
		return
	}

	w, h, err := m.renderer.Render(payload)
	m.handles.Revoke(handle)
	if err != nil {
		if card.Fail(err) {
			logger.LogCardState(m.logger, card.Index(), src, "loading", "failed", err)
		}
		return
	}

	if card.Rendered(w, h) {
		m.logger.DebugWithFields("Image loaded", map[string]interface{}{
			"index":    card.Index(),
			"src":      src,
			"bytes":    len(data.Data),
			"width":    w,
			"height":   h,
			"duration": time.Since(start),
		})
	}
}
