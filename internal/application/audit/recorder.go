package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kambio/backend/internal/domain/audit"
)

// RecorderConfig tunes the buffered writer
type RecorderConfig struct {
	BufferSize    int
	FlushInterval time.Duration
	FlushBatch    int
}

// DefaultRecorderConfig returns default configuration
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BufferSize:    1024,
		FlushInterval: 2 * time.Second,
		FlushBatch:    64,
	}
}

// Recorder buffers audit events and writes them off the hot path. A
// full buffer drops the oldest pending event rather than blocking the
// caller; at most one event may be lost on crash.
type Recorder struct {
	repo   audit.Repository
	config RecorderConfig
	logger *zap.Logger

	mu      sync.Mutex
	pending []*audit.Event
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewRecorder creates a recorder and starts its flush loop
func NewRecorder(repo audit.Repository, config RecorderConfig, logger *zap.Logger) *Recorder {
	if config.BufferSize <= 0 {
		config = DefaultRecorderConfig()
	}
	r := &Recorder{
		repo:   repo,
		config: config,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go r.flushLoop()
	return r
}

// Record enqueues an event for asynchronous persistence. Invalid
// events are logged and dropped.
func (r *Recorder) Record(ev *audit.Event) {
	if err := ev.Validate(); err != nil {
		r.logger.Warn("Dropping invalid audit event", zap.Error(err))
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if len(r.pending) >= r.config.BufferSize {
		r.logger.Warn("Audit buffer full, dropping oldest event",
			zap.String("dropped_action", r.pending[0].Action))
		r.pending = r.pending[1:]
	}
	r.pending = append(r.pending, ev)
	urgent := ev.Risk == audit.RiskCritical || len(r.pending) >= r.config.FlushBatch
	r.mu.Unlock()

	if urgent {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// Flush writes everything pending synchronously
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := r.repo.Append(ctx, batch...); err != nil {
		r.logger.Error("Audit flush failed", zap.Int("events", len(batch)), zap.Error(err))
		return err
	}
	return nil
}

// Close flushes and stops the flush loop
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	return r.Flush(ctx)
}

func (r *Recorder) flushLoop() {
	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-r.wake:
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.Flush(ctx)
		cancel()
	}
}
