package auth

import (
	"context"
	"sync"
	"time"

	"bloodsync.org/internal/ids"
)

// MemoryStore is an in-memory Directory and SessionStore. It backs tests and
// local development without Postgres; the version semantics match the
// Postgres implementation exactly.
type MemoryStore struct {
	mu         sync.Mutex
	accounts   map[string]*Account // by ID
	byUsername map[string]string
	byEmail    map[string]string
	sessions   map[string]SessionState
}

var (
	_ Directory    = (*MemoryStore)(nil)
	_ SessionStore = (*MemoryStore)(nil)
)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		sessions:   make(map[string]SessionState),
	}
}

func (m *MemoryStore) Create(ctx context.Context, acct *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUsername[acct.Username]; ok {
		return ErrDuplicateUsername
	}
	if _, ok := m.byEmail[acct.Email]; ok {
		return ErrDuplicateEmail
	}
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	cp := *acct
	m.accounts[acct.ID] = &cp
	m.byUsername[acct.Username] = acct.ID
	m.byEmail[acct.Email] = acct.ID
	return nil
}

func (m *MemoryStore) Find(ctx context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (m *MemoryStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	m.mu.Lock()
	id, ok := m.byUsername[username]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Find(ctx, id)
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.Lock()
	id, ok := m.byEmail[email]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Find(ctx, id)
}

func (m *MemoryStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byUsername[username]
	return ok, nil
}

func (m *MemoryStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byEmail[email]
	return ok, nil
}

func (m *MemoryStore) Save(ctx context.Context, acct *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.accounts[acct.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Username != acct.Username {
		if _, taken := m.byUsername[acct.Username]; taken {
			return ErrDuplicateUsername
		}
		delete(m.byUsername, prev.Username)
		m.byUsername[acct.Username] = acct.ID
	}
	if prev.Email != acct.Email {
		if _, taken := m.byEmail[acct.Email]; taken {
			return ErrDuplicateEmail
		}
		delete(m.byEmail, prev.Email)
		m.byEmail[acct.Email] = acct.ID
	}
	acct.UpdatedAt = time.Now().UTC()
	cp := *acct
	m.accounts[acct.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, accountID string) (SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[accountID]
	if !ok {
		return SessionState{AccountID: accountID}, nil
	}
	return st, nil
}

func (m *MemoryStore) Update(ctx context.Context, st SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[st.AccountID]
	if !ok {
		if st.Version != 0 {
			return ErrVersionConflict
		}
		st.Version = 1
		m.sessions[st.AccountID] = st
		return nil
	}
	if stored.Version != st.Version {
		return ErrVersionConflict
	}
	st.Version++
	m.sessions[st.AccountID] = st
	return nil
}
