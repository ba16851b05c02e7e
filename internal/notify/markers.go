package notify

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/meetings/internal/clock"
)

// MemoryMarkers is a process-local MarkerStore.
type MemoryMarkers struct {
	mu      sync.Mutex
	clock   clock.Clock
	expires map[string]time.Time
}

func NewMemoryMarkers(c clock.Clock) *MemoryMarkers {
	if c == nil {
		c = clock.Real{}
	}
	return &MemoryMarkers{clock: c, expires: make(map[string]time.Time)}
}

func (m *MemoryMarkers) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if exp, ok := m.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.expires[key] = now.Add(ttl)

	for k, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.expires, k)
		}
	}
	return true, nil
}
