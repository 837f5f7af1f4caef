// Package identity decides how a verified provider assertion maps onto
// user accounts.
//
// The resolver is pure decision logic: it reads at most one directory
// record (the email lookup for brand-new accounts) and performs no writes.
// Callers apply the returned Outcome.
package identity

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/tbranch/accountlink/internal/auth/credentials"
	"github.com/tbranch/accountlink/internal/auth/storage"
	"github.com/tbranch/accountlink/internal/auth/user"
	"github.com/tbranch/accountlink/internal/platform/errors"
	"github.com/tbranch/accountlink/internal/platform/id"
)

// TokenPair carries the provider tokens issued with an assertion.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Assertion is a provider-verified claim that the caller controls an
// external account. Email and DisplayName come from the normalized
// profile and may be empty.
type Assertion struct {
	Provider    user.Provider
	SubjectID   string
	Email       string
	DisplayName string
	ProfileJSON string
	Tokens      TokenPair
}

// Key returns the identity key the assertion refers to.
func (a Assertion) Key() user.IdentityKey {
	return user.IdentityKey{Provider: a.Provider, SubjectID: a.SubjectID}
}

// RejectReason classifies why an assertion cannot proceed.
type RejectReason string

const (
	// RejectLinkedToOther means the external account already belongs to a
	// different user than the one signed in.
	RejectLinkedToOther RejectReason = "identity_linked_to_other_user"
	// RejectNoUsableEmail means a new account would be needed but the
	// profile carried no usable email.
	RejectNoUsableEmail RejectReason = "no_usable_email"
	// RejectEmailInUse means a new account would collide with an existing
	// user holding the same email.
	RejectEmailInUse RejectReason = "email_in_use"
)

// Outcome is the resolver's decision. Exactly one concrete variant is
// returned per resolution.
type Outcome interface {
	outcome()
}

// SignIn establishes a session for an existing user. When TokensUpdated
// is set the user carries refreshed provider tokens and must be saved.
// Precache marks first sign-ins of the browser session whose profile data
// is worth warming downstream caches for.
type SignIn struct {
	User          *user.User
	TokensUpdated bool
	Precache      bool
}

// Link attaches the asserted identity to the already signed-in user. The
// user must be saved; the session is unchanged.
type Link struct {
	User     *user.User
	Identity user.ProviderIdentity
}

// Create provisions a brand-new user for the assertion. The user must be
// created and a session established for it.
type Create struct {
	User *user.User
}

// Reject refuses the assertion without touching any account.
type Reject struct {
	Reason RejectReason
}

func (SignIn) outcome() {}
func (Link) outcome()   {}
func (Create) outcome() {}
func (Reject) outcome() {}

// EmailLookup is the single directory read the resolver may perform.
type EmailLookup interface {
	FindByEmail(ctx context.Context, email string) (*user.User, error)
}

// Resolver maps assertions onto accounts.
type Resolver struct {
	Emails EmailLookup

	clock        func() time.Time
	idGenerator  func() (string, error)
	passwordHash func() (string, error)
}

// NewResolver wires a resolver with production defaults.
func NewResolver(emails EmailLookup) *Resolver {
	return &Resolver{Emails: emails}
}

func (r *Resolver) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now().UTC()
}

func (r *Resolver) newID() (string, error) {
	if r.idGenerator != nil {
		return r.idGenerator()
	}
	return id.NewID()
}

func (r *Resolver) placeholderHash() (string, error) {
	if r.passwordHash != nil {
		return r.passwordHash()
	}
	return credentials.PlaceholderHash()
}

// Resolve decides the outcome for an assertion.
//
// sessionUser is the user already signed in on the browser session, or
// nil. matchedUser is the user the directory holds for the asserted
// identity, or nil. Both are cloned before any mutation so the caller's
// copies stay untouched.
//
// The email lookup runs only on the new-account path, strictly after all
// other branches are excluded.
func (r *Resolver) Resolve(ctx context.Context, sessionUser, matchedUser *user.User, assertion Assertion) (Outcome, error) {
	if assertion.Provider == "" {
		return nil, errors.New(errors.CodeIdentityEmptyProvider, "assertion provider is required")
	}
	if assertion.SubjectID == "" {
		return nil, errors.New(errors.CodeIdentityEmptySubject, "assertion subject id is required")
	}

	sessionUser = sessionUser.Clone()
	matchedUser = matchedUser.Clone()
	key := assertion.Key()

	switch {
	case sessionUser != nil && matchedUser != nil:
		if sessionUser.ID != matchedUser.ID {
			return Reject{Reason: RejectLinkedToOther}, nil
		}
		// Same account asserting an identity it already owns. Without a
		// fresh refresh token the stored identity stays untouched.
		if assertion.Tokens.RefreshToken == "" {
			if matchedUser.IdentityIndex(key) < 0 {
				return nil, corruptedIdentity(matchedUser, assertion)
			}
			return SignIn{User: matchedUser}, nil
		}
		updated, err := r.refreshIdentity(matchedUser, assertion)
		if err != nil {
			return nil, err
		}
		return SignIn{User: matchedUser, TokensUpdated: updated}, nil

	case sessionUser != nil:
		return r.link(sessionUser, assertion, key)

	case matchedUser != nil:
		updated, err := r.refreshIdentity(matchedUser, assertion)
		if err != nil {
			return nil, err
		}
		return SignIn{User: matchedUser, TokensUpdated: updated, Precache: true}, nil

	default:
		return r.provision(ctx, assertion)
	}
}

// refreshIdentity rotates the stored tokens and profile for an identity
// the user is known to own. A missing identity record means the directory
// and the identity index disagree, which is unrecoverable here.
func (r *Resolver) refreshIdentity(u *user.User, assertion Assertion) (bool, error) {
	idx := u.IdentityIndex(assertion.Key())
	if idx < 0 {
		return false, corruptedIdentity(u, assertion)
	}

	identity := &u.Providers[idx]
	changed := false
	if assertion.Tokens.AccessToken != "" && identity.AccessToken != assertion.Tokens.AccessToken {
		identity.AccessToken = assertion.Tokens.AccessToken
		changed = true
	}
	if assertion.Tokens.RefreshToken != "" && identity.RefreshToken != assertion.Tokens.RefreshToken {
		identity.RefreshToken = assertion.Tokens.RefreshToken
		changed = true
	}
	if assertion.ProfileJSON != "" && identity.ProfileJSON != assertion.ProfileJSON {
		identity.ProfileJSON = assertion.ProfileJSON
		changed = true
	}
	if changed {
		now := r.now()
		identity.UpdatedAt = now
		u.UpdatedAt = now
	}
	return changed, nil
}

func corruptedIdentity(u *user.User, assertion Assertion) error {
	return errors.WithMetadata(errors.CodeIdentityCorrupted, "user matched by identity does not carry it", map[string]string{
		"user_id":    u.ID,
		"provider":   string(assertion.Provider),
		"subject_id": assertion.SubjectID,
	})
}

// link attaches a previously unclaimed identity to the signed-in user,
// adopting profile fields the account is still missing.
func (r *Resolver) link(sessionUser *user.User, assertion Assertion, key user.IdentityKey) (Outcome, error) {
	if sessionUser.LinkedTo(key) {
		return nil, errors.WithMetadata(errors.CodeIdentityCorrupted, "session user carries identity the directory did not match", map[string]string{
			"user_id":    sessionUser.ID,
			"provider":   string(assertion.Provider),
			"subject_id": assertion.SubjectID,
		})
	}

	now := r.now()
	if sessionUser.Email == "" && assertion.Email != "" {
		sessionUser.Email = assertion.Email
		sessionUser.EmailVerified = false
	}
	if sessionUser.Name == "" && assertion.DisplayName != "" {
		sessionUser.Name = assertion.DisplayName
	}

	identity := user.ProviderIdentity{
		Provider:     assertion.Provider,
		SubjectID:    assertion.SubjectID,
		ProfileJSON:  assertion.ProfileJSON,
		AccessToken:  assertion.Tokens.AccessToken,
		RefreshToken: assertion.Tokens.RefreshToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	sessionUser.Providers = append(sessionUser.Providers, identity)
	sessionUser.UpdatedAt = now

	if err := sessionUser.Validate(); err != nil {
		return nil, err
	}
	return Link{User: sessionUser, Identity: identity}, nil
}

// provision decides between creating a new account and rejecting.
func (r *Resolver) provision(ctx context.Context, assertion Assertion) (Outcome, error) {
	if assertion.Email == "" {
		return Reject{Reason: RejectNoUsableEmail}, nil
	}

	_, err := r.Emails.FindByEmail(ctx, assertion.Email)
	switch {
	case err == nil:
		return Reject{Reason: RejectEmailInUse}, nil
	case !stderrors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	hash, err := r.placeholderHash()
	if err != nil {
		return nil, err
	}
	now := r.now()
	u, err := user.New(user.NewInput{
		Email:        assertion.Email,
		Name:         assertion.DisplayName,
		PasswordHash: hash,
		Identity: &user.ProviderIdentity{
			Provider:     assertion.Provider,
			SubjectID:    assertion.SubjectID,
			ProfileJSON:  assertion.ProfileJSON,
			AccessToken:  assertion.Tokens.AccessToken,
			RefreshToken: assertion.Tokens.RefreshToken,
		},
	}, now, r.newID)
	if err != nil {
		return nil, err
	}
	return Create{User: u}, nil
}
