// Package session binds authenticated users to persisted browser sessions.
package session

import (
	"context"
	stderrors "errors"
	"log"
	"time"

	"github.com/tbranch/accountlink/internal/auth/events"
	"github.com/tbranch/accountlink/internal/auth/storage"
	"github.com/tbranch/accountlink/internal/auth/user"
	"github.com/tbranch/accountlink/internal/platform/errors"
	"github.com/tbranch/accountlink/internal/platform/id"
)

// DefaultTTL bounds how long a session stays valid without renewal.
const DefaultTTL = 30 * 24 * time.Hour

// Manager establishes and tears down authenticated sessions.
type Manager struct {
	Sessions  storage.SessionStore
	Directory storage.Directory
	Bus       events.Bus
	Logger    *log.Logger
	TTL       time.Duration

	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewManager wires a manager with production defaults.
func NewManager(sessions storage.SessionStore, directory storage.Directory, bus events.Bus) *Manager {
	return &Manager{
		Sessions:  sessions,
		Directory: directory,
		Bus:       bus,
		TTL:       DefaultTTL,
	}
}

func (m *Manager) now() time.Time {
	if m.clock != nil {
		return m.clock()
	}
	return time.Now().UTC()
}

func (m *Manager) newID() (string, error) {
	if m.idGenerator != nil {
		return m.idGenerator()
	}
	return id.NewID()
}

func (m *Manager) logger() *log.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return log.Default()
}

func (m *Manager) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}
	return DefaultTTL
}

// Begin creates and persists a fresh unauthenticated session.
func (m *Manager) Begin(ctx context.Context) (storage.Session, error) {
	sessionID, err := m.newID()
	if err != nil {
		return storage.Session{}, err
	}
	now := m.now()
	session := storage.Session{
		ID:        sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl()),
	}
	if err := m.Sessions.PutSession(ctx, session); err != nil {
		return storage.Session{}, err
	}
	return session, nil
}

// Load resolves the session's user reference back to a full user.
//
// An unauthenticated session, or a reference to a user that no longer
// exists, yields a nil user and no error.
func (m *Manager) Load(ctx context.Context, session storage.Session) (*user.User, error) {
	if session.UserID == "" {
		return nil, nil
	}
	u, err := m.Directory.GetUser(ctx, session.UserID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// PersistReference reduces a user to the reference stored in the session.
func (m *Manager) PersistReference(u *user.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

// SignIn binds the user to the session and persists the binding.
//
// When persistence fails the in-memory session is restored to its prior
// state so the caller never observes a half-established session. The
// sign-in event is published only after the binding is durable.
func (m *Manager) SignIn(ctx context.Context, session *storage.Session, u *user.User) error {
	if session == nil {
		return errors.New(errors.CodeSessionBindFailed, "session is required")
	}
	if u == nil || u.ID == "" {
		return errors.New(errors.CodeSessionBindFailed, "user is required")
	}

	previous := session.UserID
	session.UserID = m.PersistReference(u)
	if err := m.Sessions.PutSession(ctx, *session); err != nil {
		session.UserID = previous
		return errors.Wrap(errors.CodeSessionBindFailed, "persist session binding", err)
	}

	if m.Bus != nil {
		m.Bus.Publish(ctx, events.TopicSignIn, events.SessionEvent{
			UserID:    u.ID,
			SessionID: session.ID,
		})
	}
	return nil
}

// SignOut detaches the user from the session.
//
// The in-memory detach always succeeds. Store cleanup is best-effort and
// logged on failure; SignOut never returns an error.
func (m *Manager) SignOut(ctx context.Context, session *storage.Session) {
	if session == nil {
		return
	}
	userID := session.UserID
	session.UserID = ""

	// Persist the unbound session first so the store never holds a stale
	// binding even when the delete below fails.
	if err := m.Sessions.PutSession(ctx, *session); err != nil {
		m.logger().Printf("sign out: unbind session %s: %v", session.ID, err)
	}
	if err := m.Sessions.ClearSession(ctx, session.ID); err != nil {
		m.logger().Printf("sign out: clear session %s: %v", session.ID, err)
	}

	if m.Bus != nil && userID != "" {
		m.Bus.Publish(ctx, events.TopicSignOut, events.SessionEvent{
			UserID:    userID,
			SessionID: session.ID,
		})
	}
}

// StartCleanup deletes expired sessions and provider states on an interval
// until ctx is cancelled.
func StartCleanup(ctx context.Context, store interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredProviderStates(ctx context.Context, now time.Time) (int64, error)
}, interval time.Duration, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if _, err := store.DeleteExpiredSessions(ctx, now.UTC()); err != nil {
					logger.Printf("cleanup: delete expired sessions: %v", err)
				}
				if _, err := store.DeleteExpiredProviderStates(ctx, now.UTC()); err != nil {
					logger.Printf("cleanup: delete expired provider states: %v", err)
				}
			}
		}
	}()
}
