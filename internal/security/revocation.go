package security

import (
	"context"
	"sync"
	"time"
)

// RevocationStore records token ids that were logged out before they expired.
type RevocationStore interface {
	// Revoke marks tokenID as revoked until expiresAt. Revoking an already-expired token is a no-op.
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time)
	// IsRevoked reports whether tokenID is currently revoked.
	IsRevoked(ctx context.Context, tokenID string) bool
}

// MemoryRevocationStore is an in-memory RevocationStore. Entries disappear once the token would have expired anyway.
type MemoryRevocationStore struct {
	mu   sync.RWMutex
	m    map[string]time.Time
	nowF func() time.Time
}

// NewMemoryRevocationStore returns an empty store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		m:    make(map[string]time.Time),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Revoke stores tokenID until expiresAt.
func (s *MemoryRevocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) {
	if tokenID == "" || !expiresAt.After(s.nowF()) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[tokenID] = expiresAt
}

// IsRevoked returns true while the entry for tokenID has not expired; expired entries are dropped.
func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, tokenID string) bool {
	s.mu.RLock()
	exp, ok := s.m[tokenID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if !exp.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, tokenID)
		s.mu.Unlock()
		return false
	}
	return true
}

// Len returns the number of entries held, expired or not.
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Sweep removes expired entries and returns how many were removed.
func (s *MemoryRevocationStore) Sweep() int {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, exp := range s.m {
		if !exp.After(now) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is cancelled. It blocks; start it in its own goroutine.
func (s *MemoryRevocationStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
