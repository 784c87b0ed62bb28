package store

import (
	"context"
	"slices"
	"sync"

	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// Memory is a UserStore held in process memory. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	users  []User
	nextID int64
}

var _ UserStore = (*Memory)(nil)

// DefaultSeed is the demo dataset served before anything is submitted.
func DefaultSeed() []User {
	return []User{
		{ID: 1, Name: "Sai"},
		{ID: 2, Name: "kanchi"},
	}
}

// NewMemory returns a store holding seed. New ids continue after the
// highest seeded id.
func NewMemory(seed ...User) *Memory {
	m := &Memory{users: slices.Clone(seed), nextID: 1}
	for _, u := range seed {
		if u.ID >= m.nextID {
			m.nextID = u.ID + 1
		}
	}
	return m
}

func (m *Memory) List(ctx context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.users), nil
}

func (m *Memory) Get(ctx context.Context, id int64) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, xerrors.Wrapf(ErrUserNotFound, "id %d", id)
}

func (m *Memory) Create(ctx context.Context, in NewUser) (User, error) {
	in, err := prepare(in)
	if err != nil {
		return User{}, err
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	u := User{ID: m.nextID, Name: in.Name, Age: intPtr(in.Age), Email: in.Email}
	m.nextID++
	m.users = append(m.users, u)
	return u, nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }
