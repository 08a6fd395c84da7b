package store

import (
	"context"
	"sync"
	"time"
)

// Request statuses recorded by the relay.
const (
	StatusAccepted      = "accepted"
	StatusResolved      = "resolved"
	StatusFailed        = "failed"
	StatusTimedOut      = "timed_out"
	StatusForwardFailed = "forward_failed"
	StatusCancelled     = "cancelled"
)

// Store remembers which correlation ids have been used and the last known
// status of each request.
type Store interface {
	ClaimID(ctx context.Context, correlationID string, ttl time.Duration) (bool, error)
	SetStatus(ctx context.Context, correlationID, status string, ttl time.Duration) error
	GetStatus(ctx context.Context, correlationID string) (string, error)
}

// sweepInterval bounds how often MemoryStore scans for expired entries.
// Expiry itself is checked on every read.
const sweepInterval = time.Minute

type entry struct {
	value    string
	expireAt time.Time
}

type MemoryStore struct {
	mu       sync.RWMutex
	claims   map[string]time.Time
	statuses map[string]entry
	now      func() time.Time

	lastSweep time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims:   make(map[string]time.Time),
		statuses: make(map[string]entry),
		now:      time.Now,
	}
}

func (m *MemoryStore) ClaimID(_ context.Context, correlationID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if expireAt, ok := m.claims[correlationID]; ok && now.Before(expireAt) {
		return false, nil
	}
	m.claims[correlationID] = now.Add(ttl)
	if now.Sub(m.lastSweep) >= sweepInterval {
		m.sweepLocked(now)
		m.lastSweep = now
	}
	return true, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, correlationID, status string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[correlationID] = entry{value: status, expireAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) GetStatus(_ context.Context, correlationID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.statuses[correlationID]
	if !ok || !m.now().Before(e.expireAt) {
		return "", nil
	}
	return e.value, nil
}

// sweepLocked drops expired entries. Caller must hold mu.
func (m *MemoryStore) sweepLocked(now time.Time) {
	for id, expireAt := range m.claims {
		if !now.Before(expireAt) {
			delete(m.claims, id)
		}
	}
	for id, e := range m.statuses {
		if !now.Before(e.expireAt) {
			delete(m.statuses, id)
		}
	}
}
