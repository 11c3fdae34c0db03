package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/identity"
)

type fakeSweeper struct {
	moved int
	err   error
	calls int
}

func (f *fakeSweeper) Sweep(context.Context) (int, error) {
	f.calls++
	return f.moved, f.err
}

type fakeTokenRepo struct {
	identity.RefreshTokenRepository
	deleted int64
	cutoff  time.Time
}

func (f *fakeTokenRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, nil
}

type fakeAuditRepo struct {
	purged int64
	cutoff time.Time
	err    error
}

func (f *fakeAuditRepo) Append(context.Context, ...*audit.Event) error { return nil }

func (f *fakeAuditRepo) FindByFilter(context.Context, uuid.UUID, *audit.Filter) ([]*audit.Event, error) {
	return nil, nil
}

func (f *fakeAuditRepo) CountByFilter(context.Context, uuid.UUID, *audit.Filter) (int64, error) {
	return 0, nil
}

func (f *fakeAuditRepo) FindByEntity(context.Context, uuid.UUID, string, uuid.UUID) ([]*audit.Event, error) {
	return nil, nil
}

func (f *fakeAuditRepo) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.purged, f.err
}

func TestSweepJob(t *testing.T) {
	sweeper := &fakeSweeper{moved: 3}
	job := NewSweepJob("transaction_recovery", sweeper, zap.NewNop())

	assert.Equal(t, "transaction_recovery", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sweeper.calls)

	sweeper.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))
}

func TestTokenSweepJob(t *testing.T) {
	repo := &fakeTokenRepo{deleted: 5}
	job := NewTokenSweepJob(repo, zap.NewNop())

	before := time.Now()
	require.NoError(t, job.Run(context.Background()))

	assert.False(t, repo.cutoff.Before(before), "cutoff should be now, not in the past")
}

func TestAuditRetentionJob(t *testing.T) {
	repo := &fakeAuditRepo{purged: 12}
	job := NewAuditRetentionJob(repo, 365*24*time.Hour, zap.NewNop())

	require.NoError(t, job.Run(context.Background()))

	wantCutoff := time.Now().Add(-365 * 24 * time.Hour)
	assert.WithinDuration(t, wantCutoff, repo.cutoff, time.Minute)

	repo.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))
}
