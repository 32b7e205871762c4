package memory

import (
	"context"
	"sync"

	"github.com/linkside/gateway/ports"
)

// Stats is an in-memory implementation of ports.RateLimitStatsStore.
type Stats struct {
	mu     sync.RWMutex
	events []ports.StatsEvent
	err    error
}

// NewStats creates a new in-memory stats store.
func NewStats() *Stats {
	return &Stats{}
}

// Record appends a rate-limit decision.
func (s *Stats) Record(ctx context.Context, ev ports.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

// SetError forces subsequent calls to fail with err.
func (s *Stats) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Events returns all recorded decisions (for testing).
func (s *Stats) Events() []ports.StatsEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ports.StatsEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Ensure interface compliance.
var _ ports.RateLimitStatsStore = (*Stats)(nil)
