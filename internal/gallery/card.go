package gallery

import (
	"fmt"
	"sync"

	"imgscraper/internal/viewport"
	"imgscraper/pkg/models"
)

// State is the loading state of a card
type State int

const (
	StatePlaceholder State = iota
	StatePending
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlaceholder:
		return "placeholder"
	case StatePending:
		return "pending"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateLoaded || s == StateFailed
}

// Card is the on-screen element for one revealed descriptor. Every mutation
// checks that the card is still attached; mutating a detached card is a no-op.
type Card struct {
	gallery    *Gallery
	index      int
	descriptor models.ImageDescriptor

	mu       sync.Mutex
	state    State
	attached bool
	selected bool
	handle   string
	release  func()
	width    int
	height   int
	err      error
}

// Key identifies the card within its session
func (c *Card) Key() string {
	return fmt.Sprintf("%d|%s", c.index, c.descriptor.SourceURL)
}

// Index is the discovery position of the descriptor
func (c *Card) Index() int { return c.index }

// Descriptor returns the image the card stands for
func (c *Card) Descriptor() models.ImageDescriptor { return c.descriptor }

// Bounds returns the card's current position in the grid
func (c *Card) Bounds() viewport.Rect {
	return c.gallery.boundsOf(c)
}

// State returns the current loading state
func (c *Card) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attached reports whether the card is still part of the gallery
func (c *Card) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

// Selected reports the selection flag
func (c *Card) Selected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// SetSelected sets the selection flag on an attached card
func (c *Card) SetSelected(v bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return false
	}
	c.selected = v
	return true
}

// ToggleSelected flips the selection flag and returns the new value
func (c *Card) ToggleSelected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		c.selected = !c.selected
	}
	return c.selected
}

// Err returns the failure reason for a failed card
func (c *Card) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Handle returns the display handle currently swapped in, if any
func (c *Card) Handle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Dimensions returns the decoded size of a loaded image
func (c *Card) Dimensions() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// transition moves the card from one of the allowed states to next.
// The listener is called after the lock is released.
func (c *Card) transition(next State, allowed func(State) bool, apply func()) bool {
	c.mu.Lock()
	if !c.attached || !allowed(c.state) {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.state = next
	if apply != nil {
		apply()
	}
	c.mu.Unlock()

	c.gallery.notify(c, from, next)
	return true
}

// MarkPending records that the card was queued for loading
func (c *Card) MarkPending() bool {
	return c.transition(StatePending, func(s State) bool {
		return s == StatePlaceholder
	}, nil)
}

// MarkLoading records that a slot was granted and the fetch began
func (c *Card) MarkLoading() bool {
	return c.transition(StateLoading, func(s State) bool {
		return s == StatePlaceholder || s == StatePending
	}, nil)
}

// Swap replaces the placeholder with a display handle. It succeeds at most
// once per card. release is invoked if the card is detached while holding it.
func (c *Card) Swap(handle string, release func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.attached || c.state != StateLoading || c.handle != "" {
		return false
	}
	c.handle = handle
	c.release = release
	return true
}

// Rendered completes a successful load with the decoded dimensions
func (c *Card) Rendered(width, height int) bool {
	return c.transition(StateLoaded, func(s State) bool {
		return s == StateLoading
	}, func() {
		c.width, c.height = width, height
		c.handle = ""
		c.release = nil
	})
}

// Fail marks the card failed. Failure is terminal.
func (c *Card) Fail(err error) bool {
	return c.transition(StateFailed, func(s State) bool {
		return !s.Terminal()
	}, func() {
		c.err = err
		c.handle = ""
		c.release = nil
	})
}

// detach removes the card from the gallery and releases any held handle
func (c *Card) detach() {
	c.mu.Lock()
	if !c.attached {
		c.mu.Unlock()
		return
	}
	c.attached = false
	c.selected = false
	release := c.release
	c.release = nil
	c.handle = ""
	c.mu.Unlock()

	if release != nil {
		release()
	}
}
