package monitor

import (
	"sync"

	"github.com/vuchq/crashwatch/internal/core/domain"
)

// Ring is a fixed-capacity buffer of the most recent rounds, for fast
// in-memory lookups by in-process consumers.
type Ring struct {
	mu       sync.RWMutex
	rounds   []*domain.Round
	capacity int
	head     int
	size     int
}

// NewRing creates a ring buffer holding up to capacity rounds.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		rounds:   make([]*domain.Round, capacity),
		capacity: capacity,
	}
}

// Add appends a round, evicting the oldest when full.
func (r *Ring) Add(round *domain.Round) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rounds[r.head] = round
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Recent returns up to n rounds, newest first.
func (r *Ring) Recent(n int) []*domain.Round {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.size {
		n = r.size
	}
	out := make([]*domain.Round, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.head - i + r.capacity*2) % r.capacity
		out = append(out, r.rounds[idx])
	}
	return out
}

// Len returns the number of buffered rounds.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
