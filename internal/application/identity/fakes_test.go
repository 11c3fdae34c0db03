package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/identity"
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

// memUserRepo is an in-memory identity.UserRepository
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

func (m *memUserRepo) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok && u.TenantID == tenantID {
		delete(m.users, id)
		return nil
	}
	return shared.ErrNotFound
}

func (m *memUserRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok && u.TenantID == tenantID {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (m *memUserRepo) FindByUsername(_ context.Context, tenantID uuid.UUID, username string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Username == strings.ToLower(username) {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memUserRepo) FindByEmail(_ context.Context, tenantID uuid.UUID, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memUserRepo) FindAll(_ context.Context, tenantID uuid.UUID, filter identity.UserFilter) ([]*identity.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*identity.User
	for _, u := range m.users {
		if u.TenantID != tenantID {
			continue
		}
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.Status != nil && u.Status != *filter.Status {
			continue
		}
		if filter.KYCStatus != nil && u.KYCStatus != *filter.KYCStatus {
			continue
		}
		out = append(out, u)
	}
	return out, int64(len(out)), nil
}

func (m *memUserRepo) ExistsByUsername(_ context.Context, tenantID uuid.UUID, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Username == strings.ToLower(username) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUserRepo) ExistsByEmail(_ context.Context, tenantID uuid.UUID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUserRepo) Count(_ context.Context, tenantID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// memTenantRepo is an in-memory identity.TenantRepository
type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*identity.Tenant
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{tenants: make(map[uuid.UUID]*identity.Tenant)}
}

func (m *memTenantRepo) FindByID(_ context.Context, id uuid.UUID) (*identity.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[id]; ok {
		return t, nil
	}
	return nil, shared.ErrNotFound
}

func (m *memTenantRepo) FindByCode(_ context.Context, code string) (*identity.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Code == strings.ToUpper(code) {
			return t, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memTenantRepo) FindAll(_ context.Context, _ shared.Filter) ([]identity.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]identity.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memTenantRepo) FindByStatus(_ context.Context, status identity.TenantStatus, _ shared.Filter) ([]identity.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []identity.Tenant
	for _, t := range m.tenants {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTenantRepo) FindBranches(_ context.Context, parentID uuid.UUID) ([]identity.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []identity.Tenant
	for _, t := range m.tenants {
		if t.ParentTenantID != nil && *t.ParentTenantID == parentID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTenantRepo) FindTrialExpiring(_ context.Context, withinDays int) ([]identity.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, withinDays)
	var out []identity.Tenant
	for _, t := range m.tenants {
		if t.TrialEndsAt != nil && t.TrialEndsAt.Before(cutoff) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTenantRepo) Save(_ context.Context, tenant *identity.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[tenant.ID] = tenant
	return nil
}

func (m *memTenantRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, id)
	return nil
}

func (m *memTenantRepo) Count(_ context.Context, _ shared.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.tenants)), nil
}

func (m *memTenantRepo) ExistsByCode(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Code == strings.ToUpper(code) {
			return true, nil
		}
	}
	return false, nil
}

// memTokenRepo is an in-memory identity.RefreshTokenRepository
type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*identity.RefreshToken // keyed by hash
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]*identity.RefreshToken)}
}

func (m *memTokenRepo) Create(_ context.Context, token *identity.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token.TokenHash]; ok {
		return shared.ErrAlreadyExists
	}
	m.tokens[token.TokenHash] = token
	return nil
}

func (m *memTokenRepo) Update(_ context.Context, token *identity.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.TokenHash] = token
	return nil
}

func (m *memTokenRepo) FindByHash(_ context.Context, hash string) (*identity.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[hash]; ok {
		return t, nil
	}
	return nil, shared.ErrNotFound
}

func (m *memTokenRepo) RevokeAllForUser(_ context.Context, tenantID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TenantID == tenantID && t.UserID == userID && !t.IsRevoked() {
			t.Revoke()
		}
	}
	return nil
}

func (m *memTokenRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, t := range m.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(m.tokens, hash)
			n++
		}
	}
	return n, nil
}

func (m *memTokenRepo) liveCountFor(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.UserID == userID && t.IsUsable() {
			n++
		}
	}
	return n
}

// passCipher is a reversible stand-in for the field cipher
type passCipher struct{}

func (passCipher) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }

func (passCipher) Decrypt(ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}
