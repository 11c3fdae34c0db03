package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kambio/backend/internal/domain/shared"
)

var (
	// ErrSchedulerRunning is returned when registering a job after Start
	ErrSchedulerRunning = errors.New("scheduler is already running")

	// ErrInvalidDailySpec is returned for an unparseable daily schedule
	ErrInvalidDailySpec = errors.New("invalid daily schedule spec")
)

// Job is a unit of background work the scheduler drives
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// entry pairs a job with its trigger. Interval entries fire on a
// ticker; daily entries fire once per day at hour:minute.
type entry struct {
	job      Job
	interval time.Duration
	hour     int
	minute   int
	daily    bool

	mu          sync.Mutex
	lastRunDate string
}

// Scheduler drives the periodic sweeps: stuck-transaction recovery,
// remittance reconciliation, refresh-token cleanup, and audit
// retention. Each job runs on its own loop so a slow sweep cannot
// starve the others. An optional idempotency store keys each run by
// its schedule slot, so two instances sharing a redis will not both
// run the same slot.
type Scheduler struct {
	jobTimeout time.Duration
	store      shared.IdempotencyStore
	logger     *zap.Logger

	entries []*entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// Option configures the Scheduler
type Option func(*Scheduler)

// WithRunGuard dedups job runs across instances through the store
func WithRunGuard(store shared.IdempotencyStore) Option {
	return func(s *Scheduler) {
		s.store = store
	}
}

// New creates a scheduler with no jobs registered
func New(jobTimeout time.Duration, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobTimeout: jobTimeout,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Every registers a job that runs on a fixed interval
func (s *Scheduler) Every(interval time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerRunning
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name())
	}
	s.entries = append(s.entries, &entry{job: job, interval: interval})
	return nil
}

// Daily registers a job that runs once a day. The spec is the daily
// subset of cron: "minute hour * * *".
func (s *Scheduler) Daily(spec string, job Job) error {
	hour, minute, err := parseDailySpec(spec)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerRunning
	}
	s.entries = append(s.entries, &entry{job: job, hour: hour, minute: minute, daily: true})
	return nil
}

// Start launches one loop per registered job
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, e := range s.entries {
		s.wg.Add(1)
		if e.daily {
			go s.dailyLoop(ctx, e)
		} else {
			go s.intervalLoop(ctx, e)
		}
	}

	s.logger.Info("Scheduler started",
		zap.Int("jobs", len(s.entries)),
		zap.Duration("job_timeout", s.jobTimeout),
	)
	return nil
}

// Stop cancels the loops and waits for in-flight runs
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) intervalLoop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			slot := tick.UTC().Truncate(e.interval).Format(time.RFC3339)
			s.runOnce(ctx, e, slot, 2*e.interval)
		}
	}
}

func (s *Scheduler) dailyLoop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if now.Hour() != e.hour || now.Minute() != e.minute {
				continue
			}
			date := now.Format("2006-01-02")
			e.mu.Lock()
			alreadyRan := e.lastRunDate == date
			if !alreadyRan {
				e.lastRunDate = date
			}
			e.mu.Unlock()
			if alreadyRan {
				continue
			}
			s.runOnce(ctx, e, date, 48*time.Hour)
		}
	}
}

// runOnce executes the job for one schedule slot. The slot key guards
// against a second instance running the same slot when a shared store
// is configured.
func (s *Scheduler) runOnce(ctx context.Context, e *entry, slot string, guardTTL time.Duration) {
	name := e.job.Name()

	if s.store != nil {
		key := "job:" + name + ":" + slot
		fresh, err := s.store.MarkProcessed(ctx, key, guardTTL)
		if err != nil {
			s.logger.Warn("Run guard check failed, running anyway",
				zap.String("job", name), zap.Error(err))
		} else if !fresh {
			s.logger.Debug("Slot already claimed, skipping",
				zap.String("job", name), zap.String("slot", slot))
			return
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if s.jobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.execute(runCtx, e.job)
	elapsed := time.Since(start)

	if err != nil {
		s.logger.Error("Job failed",
			zap.String("job", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Job completed",
		zap.String("job", name),
		zap.Duration("elapsed", elapsed),
	)
}

func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

// parseDailySpec accepts the "minute hour * * *" cron form
func parseDailySpec(spec string) (hour, minute int, err error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 || fields[2] != "*" || fields[3] != "*" || fields[4] != "*" {
		return 0, 0, ErrInvalidDailySpec
	}
	minute, err = strconv.Atoi(fields[0])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, ErrInvalidDailySpec
	}
	hour, err = strconv.Atoi(fields[1])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, ErrInvalidDailySpec
	}
	return hour, minute, nil
}
