// Package inbox is the process-lifetime history of normalized messages.
package inbox

import (
	"sync"

	"whatsbridge/internal/domain"
	"whatsbridge/internal/metrics"
)

// Store is an append-only, arrival-ordered log. It is unbounded: callers that
// need bounded memory must evict externally.
type Store struct {
	mu   sync.RWMutex
	msgs []domain.NormalizedMessage
}

func New() *Store {
	return &Store{}
}

// Append adds msg at the end. Existing entries are never modified.
func (s *Store) Append(msg domain.NormalizedMessage) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	n := len(s.msgs)
	s.mu.Unlock()
	metrics.InboxSize.Set(float64(n))
}

// Snapshot returns a point-in-time copy of the history in arrival order.
// The copy is shallow: MediaRef pointers are shared, which is safe because
// messages are immutable once appended.
func (s *Store) Snapshot() []domain.NormalizedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.NormalizedMessage, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
