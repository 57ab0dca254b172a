package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"careportal.org/internal/ids"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs unit tests and
// single-process development runs; production deployments use the pg and
// redis stores.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*User
	byEmail  map[string]string
	roles    map[string]map[Role]struct{}
	refresh  map[string]*RefreshToken
	auditLog []*AuditEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		roles:   make(map[string]map[Role]struct{}),
		refresh: make(map[string]*RefreshToken),
	}
}

func (m *MemoryStore) Users(context.Context) UserStore                 { return (*memoryUsers)(m) }
func (m *MemoryStore) Roles(context.Context) RoleStore                 { return (*memoryRoles)(m) }
func (m *MemoryStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memoryRefresh)(m) }
func (m *MemoryStore) Audit(context.Context) AuditStore                { return (*memoryAudit)(m) }

type memoryUsers MemoryStore

func (m *memoryUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := m.byEmail[email]; ok {
		return ErrConflict
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.Email = email
	cp := *u
	m.users[u.ID] = &cp
	m.byEmail[email] = u.ID
	return nil
}

func (m *memoryUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	id, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Find(ctx, id)
}

func (m *memoryUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

type memoryRoles MemoryStore

func (m *memoryRoles) RolesForUser(_ context.Context, userID string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.roles[userID]
	if !ok {
		return nil, nil
	}
	out := make([]Role, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryRoles) Assign(_ context.Context, userID string, role Role) error {
	if !role.IsValid() {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles[userID] == nil {
		m.roles[userID] = make(map[Role]struct{})
	}
	m.roles[userID][role] = struct{}{}
	return nil
}

func (m *memoryRoles) Remove(_ context.Context, userID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles[userID], role)
	return nil
}

type memoryRefresh MemoryStore

func (m *memoryRefresh) Create(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	cp := *tok
	m.refresh[tok.TokenHash] = &cp
	return nil
}

func (m *memoryRefresh) FindByHash(_ context.Context, hash string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.refresh[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *memoryRefresh) Consume(_ context.Context, hash string, now time.Time) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.refresh[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if tok.Consumed {
		return nil, ErrTokenAlreadyUsed
	}
	if tok.RevokedAt != nil || !now.Before(tok.ExpiresAt) {
		return nil, ErrTokenNotFound
	}
	tok.Consumed = true
	revoked := now.UTC()
	tok.RevokedAt = &revoked
	cp := *tok
	return &cp, nil
}

func (m *memoryRefresh) Revoke(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, hash)
	return nil
}

func (m *memoryRefresh) RevokeAllForUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for hash, tok := range m.refresh {
		if tok.UserID == userID {
			delete(m.refresh, hash)
			count++
		}
	}
	return count, nil
}

func (m *memoryRefresh) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for hash, tok := range m.refresh {
		if !now.Before(tok.ExpiresAt) {
			delete(m.refresh, hash)
			count++
		}
	}
	return count, nil
}

type memoryAudit MemoryStore

func (m *memoryAudit) Append(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	cp := *entry
	m.auditLog = append(m.auditLog, &cp)
	return nil
}
