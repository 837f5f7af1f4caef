// Package storage declares the persistence contracts used by the auth
// service. Implementations live in subpackages.
package storage

import (
	"context"
	"time"

	"github.com/tbranch/accountlink/internal/auth/user"
	"github.com/tbranch/accountlink/internal/platform/errors"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// Directory persists users and their linked provider identities.
type Directory interface {
	// GetUser fetches a user by ID. Returns ErrNotFound when absent.
	GetUser(ctx context.Context, id string) (*user.User, error)

	// FindByProviderIdentity fetches the user linked to the given external
	// account. Returns ErrNotFound when no user is linked.
	FindByProviderIdentity(ctx context.Context, key user.IdentityKey) (*user.User, error)

	// FindByEmail fetches the user holding the given email. An empty email
	// matches nothing. Returns ErrNotFound when absent.
	FindByEmail(ctx context.Context, email string) (*user.User, error)

	// Create inserts a new user. Fails with CodeEmailTaken or
	// CodeIdentityTaken when a uniqueness constraint is violated.
	Create(ctx context.Context, u *user.User) error

	// Save replaces the stored user and its identities.
	Save(ctx context.Context, u *user.User) error
}

// Session is a persisted browser session. UserID is empty while the
// session is unauthenticated.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore persists sessions.
type SessionStore interface {
	PutSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ClearSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// ProviderState is a short-lived OAuth state nonce bound to a redirect flow.
type ProviderState struct {
	State     string
	Provider  user.Provider
	SessionID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ProviderStateStore persists OAuth flow state between redirect and callback.
type ProviderStateStore interface {
	PutProviderState(ctx context.Context, s ProviderState) error
	// ConsumeProviderState fetches and deletes a state in one step so each
	// nonce is usable exactly once. Returns ErrNotFound for unknown or
	// already-consumed states.
	ConsumeProviderState(ctx context.Context, state string) (ProviderState, error)
	DeleteExpiredProviderStates(ctx context.Context, now time.Time) (int64, error)
}

// OutboxEvent is a pending integration event awaiting delivery.
type OutboxEvent struct {
	ID        int64
	Topic     string
	Payload   string
	CreatedAt time.Time
}

// OutboxStore persists integration events for asynchronous delivery.
type OutboxStore interface {
	EnqueueOutboxEvent(ctx context.Context, topic, payload string) error
	ListOutboxEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	DeleteOutboxEvents(ctx context.Context, ids []int64) error
}

// Store is the full persistence surface the auth service depends on.
type Store interface {
	Directory
	SessionStore
	ProviderStateStore
	OutboxStore
}
