package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/ledger"
	"github.com/kambio/backend/internal/domain/shared"
)

// memAuditRepo captures appended audit events
type memAuditRepo struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (m *memAuditRepo) Append(_ context.Context, events ...*audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memAuditRepo) FindByFilter(context.Context, uuid.UUID, *audit.Filter) ([]*audit.Event, error) {
	return nil, nil
}

func (m *memAuditRepo) CountByFilter(context.Context, uuid.UUID, *audit.Filter) (int64, error) {
	return 0, nil
}

func (m *memAuditRepo) FindByEntity(context.Context, uuid.UUID, string, uuid.UUID) ([]*audit.Event, error) {
	return nil, nil
}

func (m *memAuditRepo) PurgeBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memAuditRepo) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Action)
	}
	return out
}

// memAccountRepo is an in-memory AccountRepository with real CAS
// semantics: a save only lands when it advances the stored version by
// exactly one.
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]ledger.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[uuid.UUID]ledger.Account)}
}

func (m *memAccountRepo) Create(_ context.Context, account *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; ok {
		return shared.ErrAlreadyExists
	}
	m.accounts[account.ID] = *account
	return nil
}

func (m *memAccountRepo) SaveWithLock(_ context.Context, account *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[account.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if account.Version != stored.Version+1 {
		return shared.ErrConcurrencyConflict
	}
	m.accounts[account.ID] = *account
	return nil
}

func (m *memAccountRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[id]
	if !ok || stored.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copy := stored
	return &copy, nil
}

func (m *memAccountRepo) FindByNumber(_ context.Context, accountNumber string) (*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.accounts {
		if stored.AccountNumber == accountNumber {
			copy := stored
			return &copy, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memAccountRepo) FindByNaturalKey(_ context.Context, tenantID, ownerUserID uuid.UUID, currency string, accountType ledger.AccountType) (*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.accounts {
		if stored.TenantID == tenantID && stored.OwnerUserID == ownerUserID &&
			stored.Currency == currency && stored.Type == accountType {
			copy := stored
			return &copy, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memAccountRepo) FindByOwner(_ context.Context, tenantID, ownerUserID uuid.UUID) ([]*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Account
	for _, stored := range m.accounts {
		if stored.TenantID == tenantID && stored.OwnerUserID == ownerUserID {
			copy := stored
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *memAccountRepo) FindByTenant(_ context.Context, tenantID uuid.UUID, currency string) ([]*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Account
	for _, stored := range m.accounts {
		if stored.TenantID == tenantID && (currency == "" || stored.Currency == currency) {
			copy := stored
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *memAccountRepo) FindWithReservations(_ context.Context, updatedBefore time.Time, limit int) ([]*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Account
	for _, stored := range m.accounts {
		if !stored.Frozen.IsPositive() || stored.UpdatedAt.After(updatedBefore) {
			continue
		}
		copy := stored
		out = append(out, &copy)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// conflictNTimes wraps a repo and forces the first n saves to lose the
// version race.
type conflictNTimes struct {
	*memAccountRepo
	mu        sync.Mutex
	remaining int
}

func (c *conflictNTimes) SaveWithLock(ctx context.Context, account *ledger.Account) error {
	c.mu.Lock()
	fail := c.remaining > 0
	if fail {
		c.remaining--
	}
	c.mu.Unlock()
	if fail {
		return shared.ErrConcurrencyConflict
	}
	return c.memAccountRepo.SaveWithLock(ctx, account)
}

// memJournalRepo stores entries and hands out gap-free sequences per
// (tenant, year).
type memJournalRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*ledger.JournalEntry
	seqs    map[string]int64
}

func newMemJournalRepo() *memJournalRepo {
	return &memJournalRepo{
		entries: make(map[uuid.UUID]*ledger.JournalEntry),
		seqs:    make(map[string]int64),
	}
}

func (m *memJournalRepo) Create(_ context.Context, entry *ledger.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.ID]; ok {
		return shared.ErrAlreadyExists
	}
	m.entries[entry.ID] = entry
	return nil
}

func (m *memJournalRepo) Update(_ context.Context, entry *ledger.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	return nil
}

func (m *memJournalRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok || entry.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return entry, nil
}

func (m *memJournalRepo) FindByNumber(_ context.Context, tenantID uuid.UUID, entryNumber string) (*ledger.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.entries {
		if entry.TenantID == tenantID && entry.EntryNumber == entryNumber {
			return entry, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memJournalRepo) FindByPeriod(_ context.Context, tenantID uuid.UUID, year, month int) ([]*ledger.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.JournalEntry
	for _, entry := range m.entries {
		if entry.TenantID == tenantID && entry.Period.Year == year && entry.Period.Month == month {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memJournalRepo) FindBySourceTxn(_ context.Context, tenantID, txnID uuid.UUID) ([]*ledger.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.JournalEntry
	for _, entry := range m.entries {
		if entry.TenantID == tenantID && entry.SourceTxnID != nil && *entry.SourceTxnID == txnID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memJournalRepo) NextEntryNumber(_ context.Context, tenantID uuid.UUID, year int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s:%d", tenantID, year)
	m.seqs[key]++
	return m.seqs[key], nil
}

func (m *memJournalRepo) PostedLinesThrough(_ context.Context, tenantID uuid.UUID, asOf time.Time) ([]ledger.JournalLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.JournalLine
	for _, entry := range m.entries {
		if entry.TenantID != tenantID || entry.EntryDate.After(asOf) {
			continue
		}
		if entry.Status != ledger.EntryStatusPosted && entry.Status != ledger.EntryStatusReversed {
			continue
		}
		out = append(out, entry.Lines...)
	}
	return out, nil
}

// memScope executes the unit directly; the fakes are individually
// atomic, which is enough for single-threaded service tests.
type memScope struct {
	accounts ledger.AccountRepository
	journal  ledger.JournalEntryRepository
}

func (s *memScope) AccountRepo() ledger.AccountRepository        { return s.accounts }
func (s *memScope) JournalRepo() ledger.JournalEntryRepository   { return s.journal }
func (s *memScope) Execute(ctx context.Context, fn func(LedgerRepositories) error) error {
	return fn(s)
}

// memTenantRepo holds a single tenant
type memTenantRepo struct {
	mu     sync.Mutex
	tenant *identity.Tenant
}

func (m *memTenantRepo) FindByID(_ context.Context, id uuid.UUID) (*identity.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tenant == nil || m.tenant.ID != id {
		return nil, shared.ErrNotFound
	}
	return m.tenant, nil
}

func (m *memTenantRepo) FindByCode(_ context.Context, code string) (*identity.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tenant == nil || m.tenant.Code != code {
		return nil, shared.ErrNotFound
	}
	return m.tenant, nil
}

func (m *memTenantRepo) FindAll(context.Context, shared.Filter) ([]identity.Tenant, error) {
	return nil, nil
}

func (m *memTenantRepo) FindByStatus(context.Context, identity.TenantStatus, shared.Filter) ([]identity.Tenant, error) {
	return nil, nil
}

func (m *memTenantRepo) FindBranches(context.Context, uuid.UUID) ([]identity.Tenant, error) {
	return nil, nil
}

func (m *memTenantRepo) FindTrialExpiring(context.Context, int) ([]identity.Tenant, error) {
	return nil, nil
}

func (m *memTenantRepo) Save(_ context.Context, tenant *identity.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant = tenant
	return nil
}

func (m *memTenantRepo) Delete(context.Context, uuid.UUID) error { return nil }

func (m *memTenantRepo) Count(context.Context, shared.Filter) (int64, error) { return 0, nil }

func (m *memTenantRepo) ExistsByCode(context.Context, string) (bool, error) { return false, nil }
