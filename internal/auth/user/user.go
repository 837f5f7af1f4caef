// Package user defines the account model shared by the auth packages.
package user

import (
	"net/mail"
	"time"

	"github.com/tbranch/accountlink/internal/platform/errors"
)

// Provider identifies an external identity provider.
type Provider string

const (
	ProviderFacebook Provider = "facebook"
	ProviderGoogle   Provider = "google"
	ProviderTwitter  Provider = "twitter"
)

// Role is a coarse authorization grant attached to a user.
type Role string

const (
	RoleAnonymous     Role = "anonymous"
	RoleAuthenticated Role = "authenticated"
	RoleAdmin         Role = "admin"
)

// ProviderIdentity records one external account linked to a user.
type ProviderIdentity struct {
	Provider     Provider
	SubjectID    string
	ProfileJSON  string
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key returns the provider-scoped identity key.
func (p ProviderIdentity) Key() IdentityKey {
	return IdentityKey{Provider: p.Provider, SubjectID: p.SubjectID}
}

// IdentityKey uniquely identifies an external account across the system.
type IdentityKey struct {
	Provider  Provider
	SubjectID string
}

// User is a single account with zero or more linked provider identities.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	PasswordHash  string
	Roles         []Role
	Providers     []ProviderIdentity
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewInput carries the fields needed to mint a fresh user.
type NewInput struct {
	Email        string
	Name         string
	PasswordHash string
	Identity     *ProviderIdentity
}

// New builds a validated authenticated user with a generated ID.
func New(input NewInput, now time.Time, idGenerator func() (string, error)) (*User, error) {
	id, err := idGenerator()
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:            id,
		Email:         input.Email,
		EmailVerified: false,
		Name:          input.Name,
		PasswordHash:  input.PasswordHash,
		Roles:         []Role{RoleAuthenticated},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if input.Identity != nil {
		identity := *input.Identity
		identity.CreatedAt = now
		identity.UpdatedAt = now
		u.Providers = []ProviderIdentity{identity}
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Clone returns a deep copy so callers can mutate freely before persisting.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Roles = append([]Role(nil), u.Roles...)
	clone.Providers = append([]ProviderIdentity(nil), u.Providers...)
	return &clone
}

// IdentityIndex returns the position of the identity for key, or -1.
func (u *User) IdentityIndex(key IdentityKey) int {
	for i, identity := range u.Providers {
		if identity.Provider == key.Provider && identity.SubjectID == key.SubjectID {
			return i
		}
	}
	return -1
}

// LinkedTo reports whether the user carries an identity for key.
func (u *User) LinkedTo(key IdentityKey) bool {
	return u.IdentityIndex(key) >= 0
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAnonymous reports whether the user is a guest account.
func (u *User) IsAnonymous() bool {
	return u.HasRole(RoleAnonymous)
}

// Validate checks the structural invariants every persisted user must hold.
//
// A user carries exactly one of the anonymous or authenticated roles, a
// parseable email when one is set, and at most one identity per provider
// subject.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New(errors.CodeUserEmptyID, "user id is required")
	}
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return errors.WithMetadata(errors.CodeUserInvalidEmail, "user email is not a valid address", map[string]string{
				"email": u.Email,
			})
		}
	}
	anonymous := u.HasRole(RoleAnonymous)
	authenticated := u.HasRole(RoleAuthenticated)
	if anonymous == authenticated {
		return errors.New(errors.CodeUserInvalidRoles, "user must hold exactly one of the anonymous or authenticated roles")
	}
	seen := make(map[IdentityKey]struct{}, len(u.Providers))
	for _, identity := range u.Providers {
		if identity.Provider == "" {
			return errors.New(errors.CodeIdentityEmptyProvider, "identity provider is required")
		}
		if identity.SubjectID == "" {
			return errors.New(errors.CodeIdentityEmptySubject, "identity subject id is required")
		}
		key := identity.Key()
		if _, dup := seen[key]; dup {
			return errors.WithMetadata(errors.CodeUserDuplicateIdentity, "user carries duplicate provider identity", map[string]string{
				"provider":   string(key.Provider),
				"subject_id": key.SubjectID,
			})
		}
		seen[key] = struct{}{}
	}
	return nil
}
