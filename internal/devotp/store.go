// Package devotp keeps the latest verification code per destination in memory. It backs
// GET /dev/otp and is only wired when dev OTP mode is enabled outside production.
package devotp

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store holds plaintext codes by destination for dev-only retrieval.
type Store interface {
	// Put records code for destination until expiresAt, replacing any earlier code.
	Put(ctx context.Context, destination, code string, expiresAt time.Time)
	// Get returns the code for destination if present and not expired.
	Get(ctx context.Context, destination string) (code string, ok bool)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev code store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock returns a MemoryStore that reads the time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{m: make(map[string]entry), nowF: now}
}

func key(destination string) string {
	return strings.ToLower(strings.TrimSpace(destination))
}

// Put records code for destination until expiresAt.
func (s *MemoryStore) Put(_ context.Context, destination, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(destination)] = entry{code: code, expiresAt: expiresAt}
}

// Get returns the code for destination if present and not expired. Expired entries are dropped.
func (s *MemoryStore) Get(_ context.Context, destination string) (string, bool) {
	k := key(destination)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}
