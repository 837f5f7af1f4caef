package sqlite

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tbranch/accountlink/internal/auth/storage"
	"github.com/tbranch/accountlink/internal/auth/user"
	"github.com/tbranch/accountlink/internal/platform/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testUser(id, email string) *user.User {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return &user.User{
		ID:        id,
		Email:     email,
		Name:      "Test User",
		Roles:     []user.Role{user.RoleAuthenticated},
		CreatedAt: now,
		UpdatedAt: now,
		Providers: []user.ProviderIdentity{
			{
				Provider:    user.ProviderGoogle,
				SubjectID:   "g-" + id,
				ProfileJSON: `{"displayName":"Test User"}`,
				AccessToken: "at-" + id,
				CreatedAt:   now,
				UpdatedAt:   now,
			},
		},
	}
}

func TestCreateAndGetUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u := testUser("u1", "u1@example.com")
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Email != "u1@example.com" || got.Name != "Test User" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if len(got.Roles) != 1 || got.Roles[0] != user.RoleAuthenticated {
		t.Fatalf("unexpected roles: %v", got.Roles)
	}
	if len(got.Providers) != 1 || got.Providers[0].SubjectID != "g-u1" {
		t.Fatalf("unexpected identities: %+v", got.Providers)
	}
	if got.CreatedAt != u.CreatedAt {
		t.Fatalf("expected created at %v, got %v", u.CreatedAt, got.CreatedAt)
	}
}

func TestGetUserNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetUser(context.Background(), "missing"); !stderrors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByProviderIdentity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, testUser("u1", "u1@example.com")); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := store.FindByProviderIdentity(ctx, user.IdentityKey{Provider: user.ProviderGoogle, SubjectID: "g-u1"})
	if err != nil {
		t.Fatalf("find by provider identity: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("expected u1, got %q", got.ID)
	}

	_, err = store.FindByProviderIdentity(ctx, user.IdentityKey{Provider: user.ProviderTwitter, SubjectID: "t-9"})
	if !stderrors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByEmail(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, testUser("u1", "u1@example.com")); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := store.FindByEmail(ctx, "u1@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("expected u1, got %q", got.ID)
	}

	if _, err := store.FindByEmail(ctx, ""); !stderrors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty email, got %v", err)
	}
}

func TestCreateConflicts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, testUser("u1", "u1@example.com")); err != nil {
		t.Fatalf("create user: %v", err)
	}

	t.Run("duplicate email", func(t *testing.T) {
		dup := testUser("u2", "u1@example.com")
		dup.Providers[0].SubjectID = "g-u2"
		err := store.Create(ctx, dup)
		if errors.CodeOf(err) != errors.CodeEmailTaken {
			t.Fatalf("expected %s, got %v", errors.CodeEmailTaken, err)
		}
	})

	t.Run("duplicate identity", func(t *testing.T) {
		dup := testUser("u3", "u3@example.com")
		dup.Providers[0].SubjectID = "g-u1"
		err := store.Create(ctx, dup)
		if errors.CodeOf(err) != errors.CodeIdentityTaken {
			t.Fatalf("expected %s, got %v", errors.CodeIdentityTaken, err)
		}
	})

	t.Run("empty emails do not collide", func(t *testing.T) {
		first := testUser("u4", "")
		first.Providers[0].SubjectID = "g-u4"
		if err := store.Create(ctx, first); err != nil {
			t.Fatalf("create first empty-email user: %v", err)
		}
		second := testUser("u5", "")
		second.Providers[0].SubjectID = "g-u5"
		if err := store.Create(ctx, second); err != nil {
			t.Fatalf("create second empty-email user: %v", err)
		}
	})
}

func TestSaveReplacesIdentities(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	u := testUser("u1", "u1@example.com")
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	now := u.UpdatedAt.Add(time.Minute)
	u.Providers[0].AccessToken = "rotated"
	u.Providers = append(u.Providers, user.ProviderIdentity{
		Provider:    user.ProviderFacebook,
		SubjectID:   "f-1",
		ProfileJSON: "{}",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	u.Name = "Renamed"
	u.UpdatedAt = now
	if err := store.Save(ctx, u); err != nil {
		t.Fatalf("save user: %v", err)
	}

	got, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Name != "Renamed" {
		t.Fatalf("expected renamed user, got %q", got.Name)
	}
	if len(got.Providers) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(got.Providers))
	}
	if got.Providers[0].AccessToken != "rotated" {
		t.Fatalf("expected rotated token, got %q", got.Providers[0].AccessToken)
	}
	if got.Providers[1].Provider != user.ProviderFacebook {
		t.Fatalf("expected identity order preserved, got %+v", got.Providers)
	}
}

func TestSaveMissingUser(t *testing.T) {
	store := openTestStore(t)
	err := store.Save(context.Background(), testUser("ghost", "ghost@example.com"))
	if !stderrors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	session := storage.Session{ID: "s1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := store.PutSession(ctx, session); err != nil {
		t.Fatalf("put session: %v", err)
	}

	session.UserID = "u1"
	if err := store.PutSession(ctx, session); err != nil {
		t.Fatalf("update session: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.UserID != "u1" {
		t.Fatalf("expected bound session, got %+v", got)
	}

	if err := store.ClearSession(ctx, "s1"); err != nil {
		t.Fatalf("clear session: %v", err)
	}
	if _, err := store.GetSession(ctx, "s1"); !stderrors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
	if err := store.ClearSession(ctx, "s1"); err != nil {
		t.Fatalf("clearing absent session should not fail: %v", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	expired := storage.Session{ID: "old", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	live := storage.Session{ID: "live", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	for _, session := range []storage.Session{expired, live} {
		if err := store.PutSession(ctx, session); err != nil {
			t.Fatalf("put session: %v", err)
		}
	}

	deleted, err := store.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("delete expired sessions: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted session, got %d", deleted)
	}
	if _, err := store.GetSession(ctx, "live"); err != nil {
		t.Fatalf("live session should survive: %v", err)
	}
}

func TestProviderStateConsumedOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	state := storage.ProviderState{
		State:     "nonce-1",
		Provider:  user.ProviderGoogle,
		SessionID: "s1",
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}
	if err := store.PutProviderState(ctx, state); err != nil {
		t.Fatalf("put provider state: %v", err)
	}

	got, err := store.ConsumeProviderState(ctx, "nonce-1")
	if err != nil {
		t.Fatalf("consume provider state: %v", err)
	}
	if got.Provider != user.ProviderGoogle || got.SessionID != "s1" {
		t.Fatalf("unexpected state: %+v", got)
	}

	if _, err := store.ConsumeProviderState(ctx, "nonce-1"); !stderrors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on replay, got %v", err)
	}
}

func TestDeleteExpiredProviderStates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	if err := store.PutProviderState(ctx, storage.ProviderState{
		State: "stale", Provider: user.ProviderTwitter,
		CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-30 * time.Minute),
	}); err != nil {
		t.Fatalf("put provider state: %v", err)
	}

	deleted, err := store.DeleteExpiredProviderStates(ctx, now)
	if err != nil {
		t.Fatalf("delete expired provider states: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted state, got %d", deleted)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.EnqueueOutboxEvent(ctx, "auth.signIn", `{"userId":"u1"}`); err != nil {
		t.Fatalf("enqueue event: %v", err)
	}
	if err := store.EnqueueOutboxEvent(ctx, "auth.signOut", ""); err != nil {
		t.Fatalf("enqueue event with empty payload: %v", err)
	}

	events, err := store.ListOutboxEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Topic != "auth.signIn" || events[1].Topic != "auth.signOut" {
		t.Fatalf("expected enqueue order, got %+v", events)
	}
	if events[1].Payload != "{}" {
		t.Fatalf("expected empty payload normalized to {}, got %q", events[1].Payload)
	}

	if err := store.DeleteOutboxEvents(ctx, []int64{events[0].ID}); err != nil {
		t.Fatalf("delete events: %v", err)
	}
	events, err = store.ListOutboxEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list events after delete: %v", err)
	}
	if len(events) != 1 || events[0].Topic != "auth.signOut" {
		t.Fatalf("expected only signOut event, got %+v", events)
	}
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if _, err := store.GetUser(ctx, "u1"); errors.CodeOf(err) != errors.CodeStoreUnavailable {
		t.Fatalf("expected %s, got %v", errors.CodeStoreUnavailable, err)
	}
	err := store.PutSession(ctx, storage.Session{
		ID:        "s1",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if errors.CodeOf(err) != errors.CodeStoreUnavailable {
		t.Fatalf("expected %s, got %v", errors.CodeStoreUnavailable, err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
