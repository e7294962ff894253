package lock

import (
	"context"
	"sync"
	"time"
)

type memoryLease struct {
	holder    string
	expiresAt time.Time
}

// MemoryStore is an in-process Store implementation. The single mutex makes
// every operation trivially atomic, matching the contract the Redis store
// gets from SET NX and the release script.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]memoryLease
}

// NewMemoryStore creates an empty in-memory lock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leases: make(map[string]memoryLease)}
}

func (s *MemoryStore) AcquireIfFree(_ context.Context, path, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if lease, ok := s.leases[path]; ok && lease.expiresAt.After(now) {
		return false, nil
	}
	s.leases[path] = memoryLease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) ReleaseIfHeld(_ context.Context, path, holder string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lease, ok := s.leases[path]
	if !ok || !lease.expiresAt.After(time.Now()) || lease.holder != holder {
		return false, nil
	}
	delete(s.leases, path)
	return true, nil
}

func (s *MemoryStore) Inspect(_ context.Context, path string) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lease, ok := s.leases[path]
	if !ok {
		return nil, nil
	}
	remaining := time.Until(lease.expiresAt)
	if remaining <= 0 {
		delete(s.leases, path) // lazy expiry
		return nil, nil
	}
	return &Info{Path: path, Holder: lease.holder, Remaining: remaining}, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var locks []Info
	for path, lease := range s.leases {
		remaining := lease.expiresAt.Sub(now)
		if remaining <= 0 {
			delete(s.leases, path)
			continue
		}
		locks = append(locks, Info{Path: path, Holder: lease.holder, Remaining: remaining})
	}
	return locks, nil
}

func (s *MemoryStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.leases)
	s.leases = make(map[string]memoryLease)
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
