package session

import (
	"imgscraper/internal/gallery"
)

// Listener receives session events. Card events arrive on task goroutines.
type Listener interface {
	ScrapeCompleted(count int)
	ScrapeFailed(err error)
	BatchRevealed(cards []*gallery.Card, more bool)
	CardStateChanged(card *gallery.Card, from, to gallery.State)
}

// NopListener ignores every event; embed it to implement a subset
type NopListener struct{}

func (NopListener) ScrapeCompleted(int)                                          {}
func (NopListener) ScrapeFailed(error)                                           {}
func (NopListener) BatchRevealed([]*gallery.Card, bool)                          {}
func (NopListener) CardStateChanged(*gallery.Card, gallery.State, gallery.State) {}

// Listeners fans events out to several listeners in order
type Listeners []Listener

func (ls Listeners) ScrapeCompleted(count int) {
	for _, l := range ls {
		l.ScrapeCompleted(count)
	}
}

func (ls Listeners) ScrapeFailed(err error) {
	for _, l := range ls {
		l.ScrapeFailed(err)
	}
}

func (ls Listeners) BatchRevealed(cards []*gallery.Card, more bool) {
	for _, l := range ls {
		l.BatchRevealed(cards, more)
	}
}

func (ls Listeners) CardStateChanged(card *gallery.Card, from, to gallery.State) {
	for _, l := range ls {
		l.CardStateChanged(card, from, to)
	}
}
