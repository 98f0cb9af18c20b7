// Package userstest provides an in-memory users.RepositoryPort for tests.
package userstest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/larrabee/ceph/internal/shared"
	"github.com/larrabee/ceph/internal/users"
)

// MemoryRepository keeps users in insertion order. A single mutex guards all
// records, so MutateUser callbacks are serialized.
type MemoryRepository struct {
	mu    sync.Mutex
	order []string
	users map[string]users.User
	now   func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]users.User),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for last_update.
func (m *MemoryRepository) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func clone(u users.User) users.User {
	u.Roles = slices.Clone(u.Roles)
	if u.Roles == nil {
		u.Roles = []string{}
	}
	u.PasswordHistory = slices.Clone(u.PasswordHistory)
	if u.Name != nil {
		name := *u.Name
		u.Name = &name
	}
	if u.Email != nil {
		email := *u.Email
		u.Email = &email
	}
	return u
}

func (m *MemoryRepository) CreateUser(_ context.Context, user users.User) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return users.User{}, users.ErrUsernameTaken
	}
	user = clone(user)
	user.LastUpdate = m.now()
	m.users[user.Username] = user
	m.order = append(m.order, user.Username)
	return clone(user), nil
}

func (m *MemoryRepository) GetUser(_ context.Context, username string) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[username]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return clone(user), nil
}

func (m *MemoryRepository) ListUsers(_ context.Context) ([]users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]users.User, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, clone(m.users[name]))
	}
	return out, nil
}

func (m *MemoryRepository) DeleteUser(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, username)
	m.order = slices.DeleteFunc(m.order, func(name string) bool { return name == username })
	return nil
}

func (m *MemoryRepository) MutateUser(_ context.Context, username string, fn func(*users.User) error) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[username]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	working := clone(stored)
	if err := fn(&working); err != nil {
		return users.User{}, err
	}
	working.Username = username
	working.LastUpdate = m.now()
	m.users[username] = clone(working)
	return clone(working), nil
}

func (m *MemoryRepository) CountWithRole(_ context.Context, role string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, user := range m.users {
		if slices.Contains(user.Roles, role) {
			n++
		}
	}
	return n, nil
}

var _ users.RepositoryPort = (*MemoryRepository)(nil)
