package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed keys so retried work is not
// performed twice. Keys are client idempotency keys or job run IDs.
type IdempotencyStore interface {
	// MarkProcessed records a key with the given TTL. It reports true when
	// the key was newly recorded and false when it had been seen already.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether a key has been recorded and not yet expired.
	IsProcessed(ctx context.Context, key string) (bool, error)

	Close() error
}

// IdempotencyConfig controls deduplication for event handlers and
// scheduled jobs.
type IdempotencyConfig struct {
	// TTL bounds how long a processed key suppresses repeats. Once it
	// lapses the same key is accepted again.
	TTL time.Duration

	// Enabled turns the dedup check off entirely when false.
	Enabled bool
}

// DefaultIdempotencyConfig keeps processed keys for a day.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
