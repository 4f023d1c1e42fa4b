// Package viewport reports, once per element, when an element's bounds come
// within a margin of the visible area.
package viewport

import "sync"

// DefaultMargin is the pre-load distance in logical pixels
const DefaultMargin = 200

// Rect is a vertical extent in logical pixels
type Rect struct {
	Top    int
	Height int
}

// Bottom is the first pixel below the rect
func (r Rect) Bottom() int {
	return r.Top + r.Height
}

// Expand grows the rect by margin on both edges
func (r Rect) Expand(margin int) Rect {
	return Rect{Top: r.Top - margin, Height: r.Height + 2*margin}
}

// Intersects reports whether r overlaps the half-open range [o.Top, o.Bottom()).
// A zero-height r counts when its Top lies inside o.
func (r Rect) Intersects(o Rect) bool {
	if r.Height <= 0 {
		return r.Top >= o.Top && r.Top < o.Bottom()
	}
	return r.Top < o.Bottom() && o.Top < r.Bottom()
}

// Element is anything with a stable key and a current position
type Element interface {
	Key() string
	Bounds() Rect
}

// Callback receives each element that became visible
type Callback func(el Element)

// Option configures an Observer
type Option func(*Observer)

// WithMargin sets the pre-load margin
func WithMargin(px int) Option {
	return func(o *Observer) {
		if px >= 0 {
			o.margin = px
		}
	}
}

// Observer tracks elements and fires the callback the first time each one
// intersects the extended viewport. Fired elements are unobserved.
type Observer struct {
	mu           sync.Mutex
	callback     Callback
	margin       int
	viewport     Rect
	hasViewport  bool
	targets      []Element
	keys         map[string]struct{}
	fired        map[string]struct{}
	disconnected bool
}

// NewObserver creates an observer. Nothing fires until SetViewport is called.
func NewObserver(cb Callback, opts ...Option) *Observer {
	o := &Observer{
		callback: cb,
		margin:   DefaultMargin,
		keys:     make(map[string]struct{}),
		fired:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Margin returns the pre-load margin
func (o *Observer) Margin() int {
	return o.margin
}

// Observe starts tracking el. Observing a tracked or already fired key is a no-op.
func (o *Observer) Observe(el Element) {
	o.mu.Lock()
	if o.disconnected {
		o.mu.Unlock()
		return
	}
	if _, ok := o.keys[el.Key()]; ok {
		o.mu.Unlock()
		return
	}
	if _, ok := o.fired[el.Key()]; ok {
		o.mu.Unlock()
		return
	}

	if o.hasViewport && el.Bounds().Intersects(o.viewport.Expand(o.margin)) {
		o.fired[el.Key()] = struct{}{}
		o.mu.Unlock()
		o.fire([]Element{el})
		return
	}

	o.keys[el.Key()] = struct{}{}
	o.targets = append(o.targets, el)
	o.mu.Unlock()
}

// Unobserve stops tracking el
func (o *Observer) Unobserve(el Element) {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := el.Key()
	if _, ok := o.keys[key]; !ok {
		return
	}
	delete(o.keys, key)
	for i, t := range o.targets {
		if t.Key() == key {
			o.targets = append(o.targets[:i], o.targets[i+1:]...)
			break
		}
	}
}

// SetViewport records a scroll or resize and fires for newly visible elements
func (o *Observer) SetViewport(vp Rect) {
	o.mu.Lock()
	if o.disconnected {
		o.mu.Unlock()
		return
	}
	o.viewport = vp
	o.hasViewport = true
	visible := o.collectLocked()
	o.mu.Unlock()

	o.fire(visible)
}

// Check re-evaluates every target against the current viewport, for when
// element positions move without a scroll
func (o *Observer) Check() {
	o.mu.Lock()
	if o.disconnected || !o.hasViewport {
		o.mu.Unlock()
		return
	}
	visible := o.collectLocked()
	o.mu.Unlock()

	o.fire(visible)
}

// collectLocked removes and returns intersecting targets in observe order
func (o *Observer) collectLocked() []Element {
	area := o.viewport.Expand(o.margin)

	var visible []Element
	remaining := o.targets[:0]
	for _, t := range o.targets {
		if t.Bounds().Intersects(area) {
			visible = append(visible, t)
			delete(o.keys, t.Key())
			o.fired[t.Key()] = struct{}{}
			continue
		}
		remaining = append(remaining, t)
	}
	for i := len(remaining); i < len(o.targets); i++ {
		o.targets[i] = nil
	}
	o.targets = remaining
	return visible
}

func (o *Observer) fire(els []Element) {
	for _, el := range els {
		if !o.Connected() {
			return
		}
		if o.callback != nil {
			o.callback(el)
		}
	}
}

// Observed returns how many elements are still waiting to become visible
func (o *Observer) Observed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.targets)
}

// Connected reports whether Disconnect has not been called
func (o *Observer) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.disconnected
}

// Disconnect drops every target. Afterwards nothing fires and Observe is a no-op.
func (o *Observer) Disconnect() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.disconnected = true
	o.targets = nil
	o.keys = make(map[string]struct{})
}
