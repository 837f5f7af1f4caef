package user

import (
	"testing"
	"time"

	"github.com/tbranch/accountlink/internal/platform/errors"
)

func testIDGenerator() (string, error) { return "user-1", nil }

func validUser() *User {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &User{
		ID:        "user-1",
		Email:     "ada@example.com",
		Name:      "Ada",
		Roles:     []Role{RoleAuthenticated},
		CreatedAt: now,
		UpdatedAt: now,
		Providers: []ProviderIdentity{
			{Provider: ProviderGoogle, SubjectID: "g-123", CreatedAt: now, UpdatedAt: now},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid user passes", func(t *testing.T) {
		if err := validUser().Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("empty id rejected", func(t *testing.T) {
		u := validUser()
		u.ID = ""
		if got := errors.CodeOf(u.Validate()); got != errors.CodeUserEmptyID {
			t.Fatalf("expected %s, got %s", errors.CodeUserEmptyID, got)
		}
	})

	t.Run("malformed email rejected", func(t *testing.T) {
		u := validUser()
		u.Email = "not-an-email"
		if got := errors.CodeOf(u.Validate()); got != errors.CodeUserInvalidEmail {
			t.Fatalf("expected %s, got %s", errors.CodeUserInvalidEmail, got)
		}
	})

	t.Run("empty email allowed", func(t *testing.T) {
		u := validUser()
		u.Email = ""
		if err := u.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("both anonymous and authenticated rejected", func(t *testing.T) {
		u := validUser()
		u.Roles = []Role{RoleAnonymous, RoleAuthenticated}
		if got := errors.CodeOf(u.Validate()); got != errors.CodeUserInvalidRoles {
			t.Fatalf("expected %s, got %s", errors.CodeUserInvalidRoles, got)
		}
	})

	t.Run("neither anonymous nor authenticated rejected", func(t *testing.T) {
		u := validUser()
		u.Roles = []Role{RoleAdmin}
		if got := errors.CodeOf(u.Validate()); got != errors.CodeUserInvalidRoles {
			t.Fatalf("expected %s, got %s", errors.CodeUserInvalidRoles, got)
		}
	})

	t.Run("duplicate identity rejected", func(t *testing.T) {
		u := validUser()
		u.Providers = append(u.Providers, u.Providers[0])
		if got := errors.CodeOf(u.Validate()); got != errors.CodeUserDuplicateIdentity {
			t.Fatalf("expected %s, got %s", errors.CodeUserDuplicateIdentity, got)
		}
	})

	t.Run("identity missing subject rejected", func(t *testing.T) {
		u := validUser()
		u.Providers[0].SubjectID = ""
		if got := errors.CodeOf(u.Validate()); got != errors.CodeIdentityEmptySubject {
			t.Fatalf("expected %s, got %s", errors.CodeIdentityEmptySubject, got)
		}
	})
}

func TestNew(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	identity := &ProviderIdentity{Provider: ProviderFacebook, SubjectID: "f-42", ProfileJSON: "{}"}

	u, err := New(NewInput{Email: "ada@example.com", Name: "Ada", PasswordHash: "x", Identity: identity}, now, testIDGenerator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "user-1" {
		t.Fatalf("expected generated id, got %q", u.ID)
	}
	if !u.HasRole(RoleAuthenticated) || u.IsAnonymous() {
		t.Fatalf("expected authenticated user, got roles %v", u.Roles)
	}
	if len(u.Providers) != 1 || u.Providers[0].CreatedAt != now {
		t.Fatalf("expected identity stamped at %v, got %+v", now, u.Providers)
	}
	if u.EmailVerified {
		t.Fatal("new users must start unverified")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	u := validUser()
	clone := u.Clone()
	clone.Email = "other@example.com"
	clone.Roles[0] = RoleAnonymous
	clone.Providers[0].AccessToken = "leaked"

	if u.Email != "ada@example.com" {
		t.Fatal("clone mutated original email")
	}
	if u.Roles[0] != RoleAuthenticated {
		t.Fatal("clone shares roles slice")
	}
	if u.Providers[0].AccessToken != "" {
		t.Fatal("clone shares providers slice")
	}
}

func TestIdentityLookup(t *testing.T) {
	u := validUser()
	key := IdentityKey{Provider: ProviderGoogle, SubjectID: "g-123"}
	if !u.LinkedTo(key) {
		t.Fatal("expected identity to be linked")
	}
	if u.IdentityIndex(key) != 0 {
		t.Fatalf("expected index 0, got %d", u.IdentityIndex(key))
	}
	if u.LinkedTo(IdentityKey{Provider: ProviderTwitter, SubjectID: "t-1"}) {
		t.Fatal("unexpected link for foreign identity")
	}
}
