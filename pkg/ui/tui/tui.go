package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"imgscraper/internal/gallery"
)

const bridgeBuffer = 1024

// Bridge turns session events into program messages. Events can arrive on
// any goroutine, including the program's own Update, so posting never
// blocks: when the buffer is full the message is dropped and the next tick
// redraws from the gallery anyway.
type Bridge struct {
	msgs chan tea.Msg
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewBridge creates a bridge. Messages queue until Attach.
func NewBridge() *Bridge {
	return &Bridge{
		msgs: make(chan tea.Msg, bridgeBuffer),
		done: make(chan struct{}),
	}
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.msgs <- msg:
	default:
		b.dropped++
	}
}

// Dropped counts messages lost to a full buffer
func (b *Bridge) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Attach forwards queued and future messages to p until Close
func (b *Bridge) Attach(p *tea.Program) {
	go func() {
		for {
			select {
			case msg := <-b.msgs:
				p.Send(msg)
			case <-b.done:
				return
			}
		}
	}()
}

// Close stops forwarding. Later events are discarded.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
}

func (b *Bridge) ScrapeCompleted(count int) {
	b.post(ScrapeCompletedMsg{Count: count})
}

func (b *Bridge) ScrapeFailed(err error) {
	b.post(ScrapeFailedMsg{Err: err})
}

func (b *Bridge) BatchRevealed(cards []*gallery.Card, more bool) {
	b.post(BatchRevealedMsg{Cards: cards, More: more})
}

func (b *Bridge) CardStateChanged(card *gallery.Card, from, to gallery.State) {
	b.post(CardStateMsg{Card: card, From: from, To: to})
}

// Run shows the browser until the user quits or ctx is cancelled
func Run(ctx context.Context, model *Model, bridge *Bridge) error {
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(p)
	defer bridge.Close()

	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
