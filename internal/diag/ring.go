// Package diag keeps a small bounded ring of recent link diagnostics
// (decode failures, dropped sends, handshake errors). Purely informational;
// the durable journal lives in the repository layer.
package diag

import (
	"sync"
	"time"
)

// Entry is one diagnostic line.
type Entry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Ring is an append-only bounded log; the oldest entry is evicted first.
type Ring struct {
	mu  sync.Mutex
	buf []Entry
	cap int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{cap: capacity}
}

func (r *Ring) Append(at time.Time, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, Entry{At: at, Message: msg})
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

// Entries returns a copy, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.buf))
	copy(out, r.buf)
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}
