// Package history implements undo/redo over snapshots of an editable value.
//
// A History never owns the live value. It reads it through a get function
// and writes it back through a restore function, so the same history can
// drive a document session, a single-line input, or anything else whose
// state can be copied by value.
//
// History has two modes. While live, edits are recorded with Checkpoint
// (or CheckpointDebounced for per-keystroke edits). The first Undo enters
// browsing mode; Undo and Redo then walk the two stacks, and the top of the
// undo stack always equals the live state. The next Checkpoint leaves
// browsing mode and discards the redo stack.
package history

import (
	"fmt"
	"time"
)

// DefaultDebounce is the minimum spacing of debounced checkpoints.
const DefaultDebounce = 150 * time.Millisecond

type options struct {
	debounce time.Duration
	now      func() time.Time
	limit    int
}

// Option configures a History.
type Option func(*options)

// WithDebounce sets the interval used by CheckpointDebounced.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithClock replaces time.Now, letting tests simulate elapsed time.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLimit bounds the undo stack. Zero means unbounded.
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

// History is an undo/redo stack over values of type T.
type History[T any] struct {
	get     func() T
	restore func(T)
	equal   func(a, b T) bool

	undo     []T
	redo     []T
	browsing bool
	last     time.Time

	opts options
}

// New returns a history whose base snapshot is the current value of get.
func New[T any](get func() T, restore func(T), equal func(a, b T) bool, opts ...Option) *History[T] {
	o := options{debounce: DefaultDebounce, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	h := &History[T]{
		get:     get,
		restore: restore,
		equal:   equal,
		opts:    o,
	}
	h.undo = append(h.undo, get())
	h.last = o.now()
	return h
}

// Browsing reports whether an undo/redo walk is in progress.
func (h *History[T]) Browsing() bool { return h.browsing }

func (h *History[T]) UndoDepth() int { return len(h.undo) }

func (h *History[T]) RedoDepth() int { return len(h.redo) }

// Checkpoint leaves browsing mode, drops the redo stack, and records the
// live state unless it equals the newest snapshot. It reports whether a
// snapshot was pushed. Only a push restarts the debounce interval.
func (h *History[T]) Checkpoint() bool {
	h.browsing = false
	h.redo = nil
	cur := h.get()
	if n := len(h.undo); n > 0 && h.equal(h.undo[n-1], cur) {
		return false
	}
	h.last = h.opts.now()
	h.undo = append(h.undo, cur)
	if h.opts.limit > 0 && len(h.undo) > h.opts.limit {
		h.undo = h.undo[len(h.undo)-h.opts.limit:]
	}
	return true
}

// CheckpointDebounced is Checkpoint, except that it does nothing while
// browsing or when the previous checkpoint is too recent. A call that gets
// through opens a burst: the interval restarts even when the live state
// matched the newest snapshot and nothing was pushed.
func (h *History[T]) CheckpointDebounced() bool {
	if h.browsing {
		return false
	}
	now := h.opts.now()
	if now.Sub(h.last) < h.opts.debounce {
		return false
	}
	pushed := h.Checkpoint()
	h.last = now
	return pushed
}

// Undo steps back one snapshot. It reports whether the live state changed.
func (h *History[T]) Undo() bool {
	n := len(h.undo)
	if n == 0 {
		return false
	}
	if !h.browsing {
		cur := h.get()
		atTop := h.equal(h.undo[n-1], cur)
		if atTop && n == 1 {
			// Nothing older to go back to.
			return false
		}
		h.redo = append(h.redo, cur)
		h.browsing = true
		if atTop {
			h.undo = h.undo[:n-1]
		}
		h.restore(h.undo[len(h.undo)-1])
		return true
	}
	if n == 1 {
		return false
	}
	h.redo = append(h.redo, h.undo[n-1])
	h.undo = h.undo[:n-1]
	h.restore(h.undo[n-2])
	return true
}

// Redo re-applies the most recently undone snapshot.
func (h *History[T]) Redo() bool {
	n := len(h.redo)
	if n == 0 {
		return false
	}
	if !h.browsing {
		panic(fmt.Sprintf("history: %d redo entries while not browsing", n))
	}
	next := h.redo[n-1]
	h.redo = h.redo[:n-1]
	h.undo = append(h.undo, next)
	h.restore(next)
	return true
}
