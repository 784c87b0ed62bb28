// Package store persists user records. Memory backs development and tests;
// Postgres backs deployments that set a database URL.
package store

import (
	"context"
	"errors"

	"github.com/keithlinneman/linnemanlabs-api/internal/sanitize"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidUser  = errors.New("invalid user")
)

const (
	MinAge = 0
	MaxAge = 120
)

// User is a stored user record. Seed records carry no age or email.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Age   *int   `json:"age,omitempty"`
	Email string `json:"email,omitempty"`
}

// NewUser is the input to Create. ID is assigned by the store.
type NewUser struct {
	Name  string
	Age   int
	Email string
}

// UserStore is the storage collaborator of the users and data routes.
// Implementations serialise their own writes.
type UserStore interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, u NewUser) (User, error)
	Ping(ctx context.Context) error
}

// prepare re-sanitises free text and checks the age bound. Handlers sanitise
// first, so for them this is a no-op; it guards any other caller.
func prepare(u NewUser) (NewUser, error) {
	u.Name = sanitize.Text(u.Name)
	if u.Name == "" {
		return u, xerrors.Wrap(ErrInvalidUser, "name is empty")
	}
	if u.Age < MinAge || u.Age > MaxAge {
		return u, xerrors.Wrapf(ErrInvalidUser, "age %d out of range", u.Age)
	}
	u.Email = sanitize.Text(u.Email)
	return u, nil
}

func intPtr(n int) *int { return &n }
