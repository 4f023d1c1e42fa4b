// Package gallery holds the discovered images of one scrape, the revealed
// cards and their grid layout.
package gallery

import (
	"sync"

	"imgscraper/internal/viewport"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
)

// DefaultBatchSize is how many descriptors RevealNext adds at once
const DefaultBatchSize = 50

// Layout describes the grid cards are placed in
type Layout struct {
	Columns   int
	RowHeight int
}

// DefaultLayout is four columns of 240px rows
var DefaultLayout = Layout{Columns: 4, RowHeight: 240}

// StateListener observes card transitions
type StateListener func(c *Card, from, to State)

// Options configures a Gallery
type Options struct {
	BatchSize     int
	Layout        Layout
	OnStateChange StateListener
	Logger        logger.Logger
}

// Summary counts attached cards per state
type Summary struct {
	Total       int
	Revealed    int
	Attached    int
	Placeholder int
	Pending     int
	Loading     int
	Loaded      int
	Failed      int
	Selected    int
}

// Settled reports whether every attached card is loaded or failed
func (s Summary) Settled() bool {
	return s.Placeholder == 0 && s.Pending == 0 && s.Loading == 0
}

// Gallery is the ordered descriptor list plus the attached cards
type Gallery struct {
	mu          sync.RWMutex
	descriptors []models.ImageDescriptor
	revealed    int
	batchSize   int
	layout      Layout
	cards       []*Card
	positions   map[*Card]int
	listener    StateListener
	logger      logger.Logger
}

// New creates a gallery over descriptors, which are kept in discovery order
func New(descriptors []models.ImageDescriptor, opts Options) *Gallery {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Layout.Columns <= 0 {
		opts.Layout.Columns = DefaultLayout.Columns
	}
	if opts.Layout.RowHeight <= 0 {
		opts.Layout.RowHeight = DefaultLayout.RowHeight
	}

	descs := make([]models.ImageDescriptor, len(descriptors))
	copy(descs, descriptors)

	return &Gallery{
		descriptors: descs,
		batchSize:   opts.BatchSize,
		layout:      opts.Layout,
		positions:   make(map[*Card]int),
		listener:    opts.OnStateChange,
		logger:      logger.OrGlobal(opts.Logger).WithField("component", "gallery"),
	}
}

// RevealNext appends the next batch of cards and reports whether more remain.
// Once everything is revealed it returns an empty batch and false without
// changing state.
func (g *Gallery) RevealNext() ([]*Card, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	remaining := len(g.descriptors) - g.revealed
	if remaining <= 0 {
		return nil, false
	}

	n := g.batchSize
	if remaining < n {
		n = remaining
	}

	batch := make([]*Card, 0, n)
	for i := g.revealed; i < g.revealed+n; i++ {
		c := &Card{
			gallery:    g,
			index:      i,
			descriptor: g.descriptors[i],
			attached:   true,
		}
		g.positions[c] = len(g.cards)
		g.cards = append(g.cards, c)
		batch = append(batch, c)
	}
	g.revealed += n

	more := g.revealed < len(g.descriptors)
	g.logger.DebugWithFields("Batch revealed", map[string]interface{}{
		"batch":    n,
		"revealed": g.revealed,
		"total":    len(g.descriptors),
		"more":     more,
	})
	return batch, more
}

// HasMore reports whether descriptors remain to be revealed
func (g *Gallery) HasMore() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.revealed < len(g.descriptors)
}

// Total is the number of discovered descriptors
func (g *Gallery) Total() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.descriptors)
}

// Revealed is the reveal cursor
func (g *Gallery) Revealed() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.revealed
}

// BatchSize returns the fixed batch size
func (g *Gallery) BatchSize() int {
	return g.batchSize
}

// Layout returns the grid layout
func (g *Gallery) Layout() Layout {
	return g.layout
}

// Descriptors returns a copy of every discovered descriptor
func (g *Gallery) Descriptors() []models.ImageDescriptor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.ImageDescriptor, len(g.descriptors))
	copy(out, g.descriptors)
	return out
}

// Cards returns the attached cards in display order
func (g *Gallery) Cards() []*Card {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Card, len(g.cards))
	copy(out, g.cards)
	return out
}

// Len is the number of attached cards
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cards)
}

// CardAt returns the attached card at display position i
func (g *Gallery) CardAt(i int) (*Card, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i < 0 || i >= len(g.cards) {
		return nil, false
	}
	return g.cards[i], true
}

// Position returns the display position of an attached card
func (g *Gallery) Position(c *Card) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	pos, ok := g.positions[c]
	return pos, ok
}

func (g *Gallery) boundsOf(c *Card) viewport.Rect {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pos, ok := g.positions[c]
	if !ok {
		// Detached cards sit far outside any viewport
		return viewport.Rect{Top: -1 << 30, Height: 0}
	}
	return viewport.Rect{
		Top:    (pos / g.layout.Columns) * g.layout.RowHeight,
		Height: g.layout.RowHeight,
	}
}

// ContentHeight is the height of the laid-out grid
func (g *Gallery) ContentHeight() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rows := (len(g.cards) + g.layout.Columns - 1) / g.layout.Columns
	return rows * g.layout.RowHeight
}

// Remove detaches c. Later cards move up one position.
func (g *Gallery) Remove(c *Card) bool {
	g.mu.Lock()
	pos, ok := g.positions[c]
	if !ok {
		g.mu.Unlock()
		return false
	}
	g.cards = append(g.cards[:pos], g.cards[pos+1:]...)
	g.reindexLocked(pos)
	delete(g.positions, c)
	g.mu.Unlock()

	c.detach()
	return true
}

// RemoveSelected detaches every selected card and returns them
func (g *Gallery) RemoveSelected() []*Card {
	g.mu.Lock()
	var removed []*Card
	kept := g.cards[:0]
	for _, c := range g.cards {
		if c.Selected() {
			removed = append(removed, c)
			delete(g.positions, c)
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(g.cards); i++ {
		g.cards[i] = nil
	}
	g.cards = kept
	g.reindexLocked(0)
	g.mu.Unlock()

	for _, c := range removed {
		c.detach()
	}
	return removed
}

func (g *Gallery) reindexLocked(from int) {
	for i := from; i < len(g.cards); i++ {
		g.positions[g.cards[i]] = i
	}
}

// SelectAll selects every attached card
func (g *Gallery) SelectAll() {
	for _, c := range g.Cards() {
		c.SetSelected(true)
	}
}

// DeselectAll clears every selection flag
func (g *Gallery) DeselectAll() {
	for _, c := range g.Cards() {
		c.SetSelected(false)
	}
}

// Selection returns the descriptors of the selected cards in display order
func (g *Gallery) Selection() []models.ImageDescriptor {
	var out []models.ImageDescriptor
	for _, c := range g.Cards() {
		if c.Selected() {
			out = append(out, c.Descriptor())
		}
	}
	return out
}

// Clear detaches every card. The descriptors and cursor stay as they are.
func (g *Gallery) Clear() {
	g.mu.Lock()
	cards := g.cards
	g.cards = nil
	g.positions = make(map[*Card]int)
	g.mu.Unlock()

	for _, c := range cards {
		c.detach()
	}
}

// Summary counts attached cards by state
func (g *Gallery) Summary() Summary {
	g.mu.RLock()
	s := Summary{Total: len(g.descriptors), Revealed: g.revealed, Attached: len(g.cards)}
	cards := make([]*Card, len(g.cards))
	copy(cards, g.cards)
	g.mu.RUnlock()

	for _, c := range cards {
		c.mu.Lock()
		switch c.state {
		case StatePlaceholder:
			s.Placeholder++
		case StatePending:
			s.Pending++
		case StateLoading:
			s.Loading++
		case StateLoaded:
			s.Loaded++
		case StateFailed:
			s.Failed++
		}
		if c.selected {
			s.Selected++
		}
		c.mu.Unlock()
	}
	return s
}

func (g *Gallery) notify(c *Card, from, to State) {
	if g.listener != nil {
		g.listener(c, from, to)
	}
}
