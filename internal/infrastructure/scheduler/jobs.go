package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/identity"
)

// Sweeper is the shape shared by the recovery and reconciliation
// services: one pass over the backlog, returning how many rows moved.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweeperFunc adapts a plain sweep function to the Sweeper interface
type SweeperFunc func(ctx context.Context) (int, error)

func (f SweeperFunc) Sweep(ctx context.Context) (int, error) { return f(ctx) }

// SweepJob adapts a Sweeper into a scheduled job
type SweepJob struct {
	name    string
	sweeper Sweeper
	logger  *zap.Logger
}

// NewSweepJob wraps a sweeper under the given job name
func NewSweepJob(name string, sweeper Sweeper, logger *zap.Logger) *SweepJob {
	return &SweepJob{name: name, sweeper: sweeper, logger: logger}
}

func (j *SweepJob) Name() string { return j.name }

func (j *SweepJob) Run(ctx context.Context) error {
	n, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.Info("Sweep moved rows", zap.String("job", j.name), zap.Int("count", n))
	}
	return nil
}

// TokenSweepJob deletes refresh-token rows whose expiry has passed.
// Revoked rows are kept until they expire so reuse detection still
// sees them.
type TokenSweepJob struct {
	tokens identity.RefreshTokenRepository
	logger *zap.Logger
}

func NewTokenSweepJob(tokens identity.RefreshTokenRepository, logger *zap.Logger) *TokenSweepJob {
	return &TokenSweepJob{tokens: tokens, logger: logger}
}

func (j *TokenSweepJob) Name() string { return "refresh_token_sweep" }

func (j *TokenSweepJob) Run(ctx context.Context) error {
	n, err := j.tokens.DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.Info("Expired refresh tokens removed", zap.Int64("count", n))
	}
	return nil
}

// AuditRetentionJob purges audit events older than the retention window
type AuditRetentionJob struct {
	audits    audit.Repository
	retention time.Duration
	logger    *zap.Logger
}

func NewAuditRetentionJob(audits audit.Repository, retention time.Duration, logger *zap.Logger) *AuditRetentionJob {
	return &AuditRetentionJob{audits: audits, retention: retention, logger: logger}
}

func (j *AuditRetentionJob) Name() string { return "audit_retention" }

func (j *AuditRetentionJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retention)
	n, err := j.audits.PurgeBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.Info("Audit events purged",
			zap.Int64("count", n),
			zap.Time("cutoff", cutoff))
	}
	return nil
}
