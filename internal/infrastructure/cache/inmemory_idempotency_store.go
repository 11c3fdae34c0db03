package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kambio/backend/internal/domain/shared"
)

// sweepInterval is how often expired keys are purged from the map.
// Reads already treat expired keys as absent, so the sweep only bounds
// memory growth.
const sweepInterval = 5 * time.Minute

// InMemoryIdempotencyStore keeps processed keys in a map with their
// expiry deadline. Suitable for single-instance deployments and tests;
// distributed setups use the Redis store.
type InMemoryIdempotencyStore struct {
	mu        sync.RWMutex
	deadlines map[string]time.Time

	done sync.Once
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewInMemoryIdempotencyStore creates the store and starts its sweep
// goroutine. Call Close to stop it.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		deadlines: make(map[string]time.Time),
		stop:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

// MarkProcessed records a key for ttl. It reports true when the key
// was new and false when it is still within a previous ttl.
func (s *InMemoryIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if deadline, ok := s.deadlines[key]; ok && now.Before(deadline) {
		return false, nil
	}
	s.deadlines[key] = now.Add(ttl)
	return true, nil
}

// IsProcessed reports whether key is recorded and not yet expired.
func (s *InMemoryIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deadline, ok := s.deadlines[key]
	return ok && time.Now().Before(deadline), nil
}

// Size reports the number of stored keys, expired ones included until
// the next sweep.
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deadlines)
}

// Close stops the sweep goroutine. Safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.done.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryIdempotencyStore) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, deadline := range s.deadlines {
		if now.After(deadline) {
			delete(s.deadlines, key)
		}
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
