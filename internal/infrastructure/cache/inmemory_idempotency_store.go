package cache

import (
	"context"
	"sync"
	"time"

	"github.com/billflow/backend/internal/domain/shared"
)

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)

// InMemoryIdempotencyStore implements shared.IdempotencyStore with an
// in-process map. Suitable for single-instance deployments and tests;
// distributed deployments need the Redis store so consumers share dedupe
// state.
type InMemoryIdempotencyStore struct {
	mu        sync.RWMutex
	expiries  map[string]time.Time
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// evictionInterval bounds how long expired event IDs linger in memory.
const evictionInterval = 5 * time.Minute

// NewInMemoryIdempotencyStore creates a store and starts its eviction
// goroutine. Callers must Close it to stop the goroutine.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		expiries: make(map[string]time.Time),
		stop:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.evictLoop()
	return s
}

// MarkProcessed records an event ID with a TTL. Returns true when the ID
// was newly recorded, false when an unexpired entry already exists.
func (s *InMemoryIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, seen := s.expiries[eventID]; seen && now.Before(expiry) {
		return false, nil
	}
	s.expiries[eventID] = now.Add(ttl)
	return true, nil
}

// IsProcessed reports whether an event ID is recorded and unexpired.
func (s *InMemoryIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, seen := s.expiries[eventID]
	return seen && time.Now().Before(expiry), nil
}

// Close stops the eviction goroutine. Safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of recorded event IDs, expired entries included
// until the next eviction pass.
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.expiries)
}

func (s *InMemoryIdempotencyStore) evictLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *InMemoryIdempotencyStore) evictExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for eventID, expiry := range s.expiries {
		if now.After(expiry) {
			delete(s.expiries, eventID)
		}
	}
}
