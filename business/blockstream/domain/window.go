package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultWindowCapacity is the number of headers kept when no capacity is given.
const DefaultWindowCapacity = 256

// Window is a bounded, ordered run of linked headers. Entries ascend by
// number and each entry's parent is the entry before it; the oldest entry's
// parent is outside the window. Window is not safe for concurrent use.
type Window struct {
	headers  []Header
	capacity int
}

// NewWindow creates an empty window holding at most capacity headers.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &Window{
		headers:  make([]Header, 0, capacity),
		capacity: capacity,
	}
}

// Append adds h as the newest entry, evicting the oldest at capacity.
func (w *Window) Append(h Header) error {
	if last, ok := w.Last(); ok && !last.IsParentOf(h) {
		return fmt.Errorf("%w: %s after %s", ErrNotContiguous, h.ID(), last.ID())
	}

	if len(w.headers) == w.capacity {
		copy(w.headers, w.headers[1:])
		w.headers[len(w.headers)-1] = h
		return nil
	}
	w.headers = append(w.headers, h)
	return nil
}

// IndexOf returns the position of hash, or -1.
func (w *Window) IndexOf(hash common.Hash) int {
	for i := len(w.headers) - 1; i >= 0; i-- {
		if w.headers[i].Hash == hash {
			return i
		}
	}
	return -1
}

// Contains reports whether hash is in the window.
func (w *Window) Contains(hash common.Hash) bool {
	return w.IndexOf(hash) >= 0
}

// At returns the header at position i.
func (w *Window) At(i int) Header {
	return w.headers[i]
}

// Last returns the newest header.
func (w *Window) Last() (Header, bool) {
	if len(w.headers) == 0 {
		return Header{}, false
	}
	return w.headers[len(w.headers)-1], true
}

// Oldest returns the oldest header.
func (w *Window) Oldest() (Header, bool) {
	if len(w.headers) == 0 {
		return Header{}, false
	}
	return w.headers[0], true
}

// TruncateAfter drops every entry after position i and returns them oldest
// first. i == -1 empties the window.
func (w *Window) TruncateAfter(i int) []Header {
	if i >= len(w.headers)-1 {
		return nil
	}
	removed := make([]Header, len(w.headers)-i-1)
	copy(removed, w.headers[i+1:])

	clear(w.headers[i+1:])
	w.headers = w.headers[:i+1]
	return removed
}

// Headers returns a copy of the window, oldest first.
func (w *Window) Headers() []Header {
	out := make([]Header, len(w.headers))
	copy(out, w.headers)
	return out
}

// Len returns the number of headers held.
func (w *Window) Len() int { return len(w.headers) }

// Cap returns the window capacity.
func (w *Window) Cap() int { return w.capacity }
