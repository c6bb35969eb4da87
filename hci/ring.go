package hci

import "sync"

// EvtRingEntry is one queued command-complete/command-status reply.
type EvtRingEntry struct {
	Opcode  uint16
	Status  uint8
	IsStatus bool
	Payload []byte
}

// EventRing is the bounded command-reply ring of spec section 4.3: it
// never blocks the reader goroutine. When full, it drops the oldest
// quarter of entries and the caller is expected to log a warning (spec
// testable property I7).
type EventRing struct {
	mu       sync.Mutex
	buf      []EvtRingEntry
	cap      int
	dropped  int
}

// NewEventRing returns a ring with the given capacity (spec default 64).
func NewEventRing(capacity int) *EventRing {
	if capacity <= 0 {
		capacity = 64
	}
	return &EventRing{cap: capacity}
}

// Push appends e, dropping the oldest cap/4 entries first if full.
// Returns the number of entries dropped by this call (0 normally).
func (r *EventRing) Push(e EvtRingEntry) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	if len(r.buf) >= r.cap {
		dropped = r.cap / 4
		if dropped < 1 {
			dropped = 1
		}
		r.buf = append([]EvtRingEntry(nil), r.buf[dropped:]...)
		r.dropped += dropped
	}
	r.buf = append(r.buf, e)
	return dropped
}

// Dropped returns the cumulative number of entries ever dropped due to
// overflow.
func (r *EventRing) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Len returns the number of entries currently queued.
func (r *EventRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// TakeMatching removes and returns the oldest entry with the given
// opcode, if any (used when a waiter arrives after its reply was already
// queued).
func (r *EventRing) TakeMatching(opcode uint16) (EvtRingEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.buf {
		if e.Opcode == opcode {
			r.buf = append(r.buf[:i], r.buf[i+1:]...)
			return e, true
		}
	}
	return EvtRingEntry{}, false
}
