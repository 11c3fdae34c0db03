package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appledger "github.com/kambio/backend/internal/application/ledger"
	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/exchange"
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

// memTxnRepo is an in-memory TransactionRepository with optimistic
// locking on the explicit expected version.
type memTxnRepo struct {
	mu   sync.Mutex
	txns map[uuid.UUID]exchange.Transaction
}

func newMemTxnRepo() *memTxnRepo {
	return &memTxnRepo{txns: make(map[uuid.UUID]exchange.Transaction)}
}

func (m *memTxnRepo) Create(_ context.Context, txn *exchange.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txns[txn.ID]; ok {
		return shared.ErrAlreadyExists
	}
	if txn.IdempotencyKey != nil {
		for _, stored := range m.txns {
			if stored.TenantID == txn.TenantID && stored.IdempotencyKey != nil &&
				*stored.IdempotencyKey == *txn.IdempotencyKey {
				return shared.ErrAlreadyExists
			}
		}
	}
	m.txns[txn.ID] = *txn
	return nil
}

func (m *memTxnRepo) SaveWithLock(_ context.Context, txn *exchange.Transaction, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.txns[txn.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return shared.ErrConcurrencyConflict
	}
	m.txns[txn.ID] = *txn
	return nil
}

func (m *memTxnRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.txns[id]
	if !ok || stored.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copy := stored
	return &copy, nil
}

func (m *memTxnRepo) FindByReference(_ context.Context, tenantID uuid.UUID, reference string) (*exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.txns {
		if stored.TenantID == tenantID && stored.Reference == reference {
			copy := stored
			return &copy, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memTxnRepo) FindByIdempotencyKey(_ context.Context, tenantID uuid.UUID, key string) (*exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.txns {
		if stored.TenantID == tenantID && stored.IdempotencyKey != nil && *stored.IdempotencyKey == key {
			copy := stored
			return &copy, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memTxnRepo) FindByCorrelation(_ context.Context, correlationID uuid.UUID) ([]*exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*exchange.Transaction
	for _, stored := range m.txns {
		if stored.CorrelationID != nil && *stored.CorrelationID == correlationID {
			copy := stored
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *memTxnRepo) FindByCustomer(_ context.Context, tenantID, customerID uuid.UUID, _ *exchange.TransactionFilter) ([]*exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*exchange.Transaction
	for _, stored := range m.txns {
		if stored.TenantID == tenantID && stored.CustomerID == customerID {
			copy := stored
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *memTxnRepo) FindByFilter(_ context.Context, tenantID uuid.UUID, filter *exchange.TransactionFilter) ([]*exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*exchange.Transaction
	for _, stored := range m.txns {
		if stored.TenantID != tenantID {
			continue
		}
		if filter != nil && filter.Status != nil && stored.Status != *filter.Status {
			continue
		}
		if filter != nil && filter.Type != nil && stored.Type != *filter.Type {
			continue
		}
		copy := stored
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memTxnRepo) CountByFilter(ctx context.Context, tenantID uuid.UUID, filter *exchange.TransactionFilter) (int64, error) {
	found, err := m.FindByFilter(ctx, tenantID, filter)
	return int64(len(found)), err
}

func (m *memTxnRepo) FindStuck(_ context.Context, updatedBefore time.Time, limit int) ([]*exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*exchange.Transaction
	for _, stored := range m.txns {
		if stored.Status.IsTerminal() || stored.Status == exchange.TxnStatusOnHold {
			continue
		}
		if stored.UpdatedAt.After(updatedBefore) {
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

func (m *memTxnRepo) CountActiveByFromAccount(_ context.Context, tenantID, accountID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, stored := range m.txns {
		if stored.TenantID != tenantID || stored.Status.IsTerminal() {
			continue
		}
		if stored.FromAccountID != nil && *stored.FromAccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (m *memTxnRepo) FindUnreconciledRemittances(_ context.Context, olderThan time.Time, limit int) ([]*exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*exchange.Transaction
	for _, stored := range m.txns {
		if stored.Type != exchange.TxnTypeRemittanceSend && stored.Type != exchange.TxnTypeRemittanceRecv {
			continue
		}
		if stored.Status != exchange.TxnStatusCompleted || stored.ReconciledAt != nil {
			continue
		}
		if stored.CreatedAt.After(olderThan) {
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

func (m *memTxnRepo) SumSettledForCustomerSince(_ context.Context, tenantID, customerID uuid.UUID, currency string, since time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, stored := range m.txns {
		if stored.TenantID != tenantID || stored.CustomerID != customerID {
			continue
		}
		if stored.FromCurrency != currency || stored.CreatedAt.Before(since) {
			continue
		}
		if stored.Status != exchange.TxnStatusSettled && stored.Status != exchange.TxnStatusCompleted {
			continue
		}
		sum = sum.Add(stored.Amount)
	}
	return sum, nil
}

// memRateRepo is an in-memory RateRepository
type memRateRepo struct {
	mu    sync.Mutex
	rates []*exchange.ExchangeRate
}

func (m *memRateRepo) Create(_ context.Context, rate *exchange.ExchangeRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates = append(m.rates, rate)
	return nil
}

func (m *memRateRepo) Update(_ context.Context, rate *exchange.ExchangeRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, stored := range m.rates {
		if stored.ID == rate.ID {
			m.rates[i] = rate
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *memRateRepo) FindCurrent(_ context.Context, tenantID uuid.UUID, from, to string) (*exchange.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *exchange.ExchangeRate
	for _, stored := range m.rates {
		if stored.TenantID != tenantID || stored.FromCurrency != from || stored.ToCurrency != to {
			continue
		}
		if stored.EffectiveTo != nil {
			continue
		}
		if latest == nil || stored.EffectiveFrom.After(latest.EffectiveFrom) {
			latest = stored
		}
	}
	if latest == nil {
		return nil, shared.ErrNotFound
	}
	return latest, nil
}

func (m *memRateRepo) FindEffectiveAt(_ context.Context, tenantID uuid.UUID, from, to string, at time.Time) (*exchange.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.rates {
		if stored.TenantID == tenantID && stored.FromCurrency == from && stored.ToCurrency == to && stored.IsEffectiveAt(at) {
			return stored, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRateRepo) FindHistory(_ context.Context, tenantID uuid.UUID, from, to string, since time.Time) ([]*exchange.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*exchange.ExchangeRate
	for _, stored := range m.rates {
		if stored.TenantID == tenantID && stored.FromCurrency == from && stored.ToCurrency == to && !stored.EffectiveFrom.Before(since) {
			out = append(out, stored)
		}
	}
	return out, nil
}

func (m *memRateRepo) FindAllCurrent(_ context.Context, tenantID uuid.UUID) ([]*exchange.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*exchange.ExchangeRate
	for _, stored := range m.rates {
		if stored.TenantID == tenantID && stored.EffectiveTo == nil {
			out = append(out, stored)
		}
	}
	return out, nil
}

// memUserRepo holds users by id
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*identity.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*identity.User)}
}

func (m *memUserRepo) Create(_ context.Context, user *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memUserRepo) Update(_ context.Context, user *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memUserRepo) Delete(_ context.Context, _, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memUserRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (m *memUserRepo) FindByUsername(_ context.Context, tenantID uuid.UUID, username string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.TenantID == tenantID && user.Username == username {
			return user, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memUserRepo) FindByEmail(_ context.Context, tenantID uuid.UUID, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.TenantID == tenantID && user.Email == email {
			return user, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memUserRepo) FindAll(context.Context, uuid.UUID, identity.UserFilter) ([]*identity.User, int64, error) {
	return nil, 0, nil
}

func (m *memUserRepo) ExistsByUsername(context.Context, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (m *memUserRepo) ExistsByEmail(context.Context, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (m *memUserRepo) Count(context.Context, uuid.UUID) (int64, error) { return 0, nil }

// memAccountRepo mirrors the persistence CAS contract: a save lands
// only when it advances the stored version by exactly one.
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

func (s *memScope) AccountRepo() ledger.AccountRepository      { return s.accounts }
func (s *memScope) JournalRepo() ledger.JournalEntryRepository { return s.journal }
func (s *memScope) Execute(ctx context.Context, fn func(appledger.LedgerRepositories) error) error {
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

// memEventBus captures published domain events
type memEventBus struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (m *memEventBus) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memEventBus) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType())
	}
	return out
}
