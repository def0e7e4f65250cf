package events

import "sync"

const DefaultHistorySize = 100

// History keeps the most recent live events, oldest first.
type History struct {
	mu   sync.RWMutex
	buf  []Event
	next int
	full bool
}

// NewHistory returns a buffer holding up to capacity events. capacity <= 0
// uses DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]Event, capacity)}
}

// Append records ev, overwriting the oldest entry when full.
func (h *History) Append(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = ev
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// Events returns a copy of the buffered events, oldest first.
func (h *History) Events() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.full {
		return append([]Event(nil), h.buf[:h.next]...)
	}
	out := make([]Event, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

// Len reports the number of buffered events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Cap reports the buffer capacity.
func (h *History) Cap() int { return len(h.buf) }
