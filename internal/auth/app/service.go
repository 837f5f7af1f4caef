// Package app wires the auth components into an HTTP service.
package app

import (
	"context"
	stderrors "errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tbranch/accountlink/internal/auth/account"
	"github.com/tbranch/accountlink/internal/auth/credentials"
	"github.com/tbranch/accountlink/internal/auth/identity"
	"github.com/tbranch/accountlink/internal/auth/profile"
	"github.com/tbranch/accountlink/internal/auth/providers"
	"github.com/tbranch/accountlink/internal/auth/session"
	"github.com/tbranch/accountlink/internal/auth/storage"
	"github.com/tbranch/accountlink/internal/auth/user"
	"github.com/tbranch/accountlink/internal/auth/verify"
	"github.com/tbranch/accountlink/internal/platform/errors"
	"github.com/tbranch/accountlink/internal/platform/id"
)

// stateTTL bounds how long an OAuth redirect may take before its state
// nonce expires.
const stateTTL = 10 * time.Minute

// Service orchestrates provider flows, local login, and account status.
type Service struct {
	Store    storage.Store
	Registry *providers.Registry
	Resolver *identity.Resolver
	Sessions *session.Manager
	Verifier *verify.Issuer
	Mailer   verify.Mailer
	Logger   *log.Logger

	tracer   trace.Tracer
	precache singleflight.Group

	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService wires a service with production defaults.
func NewService(store storage.Store, registry *providers.Registry, resolver *identity.Resolver, sessions *session.Manager) *Service {
	return &Service{
		Store:    store,
		Registry: registry,
		Resolver: resolver,
		Sessions: sessions,
		tracer:   otel.Tracer("accountlink/auth"),
	}
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now().UTC()
}

func (s *Service) newID() (string, error) {
	if s.idGenerator != nil {
		return s.idGenerator()
	}
	return id.NewID()
}

func (s *Service) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// StartProviderFlow stores a one-time state nonce and returns the
// provider authorization URL to redirect to.
func (s *Service) StartProviderFlow(ctx context.Context, providerName, sessionID string) (string, error) {
	provider, ok := s.Registry.Get(providerName)
	if !ok {
		return "", storage.ErrNotFound
	}

	state, err := s.newID()
	if err != nil {
		return "", err
	}
	now := s.now()
	if err := s.Store.PutProviderState(ctx, storage.ProviderState{
		State:     state,
		Provider:  provider.Name,
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(stateTTL),
	}); err != nil {
		return "", err
	}
	return provider.OAuth.AuthCodeURL(state), nil
}

// HandleCallback runs the full callback flow: state check, code exchange,
// profile fetch, resolution, and outcome application.
func (s *Service) HandleCallback(ctx context.Context, providerName, code, stateValue string, sess *storage.Session) (identity.Outcome, error) {
	provider, ok := s.Registry.Get(providerName)
	if !ok {
		return nil, storage.ErrNotFound
	}

	state, err := s.Store.ConsumeProviderState(ctx, stateValue)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.New(errors.CodeInvalidCredential, "state is not valid")
		}
		return nil, err
	}
	if state.Provider != provider.Name {
		return nil, errors.New(errors.CodeInvalidCredential, "state does not match provider")
	}
	if state.SessionID != sess.ID {
		return nil, errors.New(errors.CodeInvalidCredential, "state belongs to another session")
	}
	if !state.ExpiresAt.After(s.now()) {
		return nil, errors.New(errors.CodeInvalidCredential, "state expired")
	}

	token, err := provider.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidCredential, "exchange authorization code", err)
	}

	raw, rawJSON, err := provider.FetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}
	normalized := profile.Normalize(raw)

	assertion := identity.Assertion{
		Provider:    provider.Name,
		SubjectID:   normalized.SubjectID,
		Email:       normalized.Email,
		DisplayName: normalized.DisplayName,
		ProfileJSON: rawJSON,
		Tokens: identity.TokenPair{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
		},
	}

	matched, err := s.Store.FindByProviderIdentity(ctx, assertion.Key())
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	sessionUser, err := s.Sessions.Load(ctx, *sess)
	if err != nil {
		return nil, err
	}

	resolveCtx, span := s.tracer.Start(ctx, "identity.Resolve",
		trace.WithAttributes(
			attribute.String("auth.provider", string(provider.Name)),
			attribute.Bool("auth.session_user", sessionUser != nil),
			attribute.Bool("auth.matched_user", matched != nil),
		),
	)
	outcome, err := s.Resolver.Resolve(resolveCtx, sessionUser, matched, assertion)
	span.End()
	if err != nil {
		return nil, err
	}

	if err := s.apply(ctx, outcome, sess); err != nil {
		return nil, err
	}
	return outcome, nil
}

// apply performs the writes an outcome calls for.
func (s *Service) apply(ctx context.Context, outcome identity.Outcome, sess *storage.Session) error {
	switch o := outcome.(type) {
	case identity.SignIn:
		if o.TokensUpdated {
			if err := s.Store.Save(ctx, o.User); err != nil {
				return err
			}
		}
		if err := s.Sessions.SignIn(ctx, sess, o.User); err != nil {
			return err
		}
		if o.Precache {
			s.warmProfiles(o.User)
		}
		return nil
	case identity.Link:
		if err := s.Store.Save(ctx, o.User); err != nil {
			return err
		}
		// Linking re-establishes the session so downstream consumers see
		// a signIn for the callback.
		return s.Sessions.SignIn(ctx, sess, o.User)
	case identity.Create:
		if err := s.Store.Create(ctx, o.User); err != nil {
			return err
		}
		return s.Sessions.SignIn(ctx, sess, o.User)
	case identity.Reject:
		return nil
	default:
		return errors.New(errors.CodeUnknown, "unhandled resolution outcome")
	}
}

// LoginWithPassword signs in a local account by email and password.
//
// Unknown emails and wrong passwords report the same error so the
// endpoint does not reveal which emails have accounts.
func (s *Service) LoginWithPassword(ctx context.Context, email, password string, sess *storage.Session) (*user.User, error) {
	invalid := errors.New(errors.CodeInvalidCredential, "email or password is not valid")

	u, err := s.Store.FindByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if !credentials.Verify(u.PasswordHash, password) {
		return nil, invalid
	}
	if err := s.Sessions.SignIn(ctx, sess, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Logout detaches the session's user.
func (s *Service) Logout(ctx context.Context, sess *storage.Session) {
	s.Sessions.SignOut(ctx, sess)
}

// Status projects the session's account for clients.
func (s *Service) Status(ctx context.Context, sess storage.Session) (account.Status, error) {
	u, err := s.Sessions.Load(ctx, sess)
	if err != nil {
		return account.Status{}, err
	}
	return account.StatusFor(u, s.Registry.Configured()), nil
}

// RequestVerification issues and mails a verification link for the
// session user's current email.
func (s *Service) RequestVerification(ctx context.Context, sess storage.Session) error {
	if s.Verifier == nil {
		return errors.New(errors.CodeNotFound, "verification is not configured")
	}
	u, err := s.Sessions.Load(ctx, sess)
	if err != nil {
		return err
	}
	if u == nil || u.IsAnonymous() || u.Email == "" {
		return errors.New(errors.CodeInvalidCredential, "verification requires a signed-in account with an email")
	}

	token, err := s.Verifier.Issue(u.ID, u.Email)
	if err != nil {
		return err
	}
	mailer := s.Mailer
	if mailer == nil {
		mailer = verify.LogMailer{Logger: s.Logger}
	}
	return mailer.SendVerification(ctx, u.Email, s.Verifier.Link(token))
}

// RedeemVerification marks the token's email verified when the account
// still holds it.
func (s *Service) RedeemVerification(ctx context.Context, token string) error {
	if s.Verifier == nil {
		return errors.New(errors.CodeNotFound, "verification is not configured")
	}
	claims, err := s.Verifier.Redeem(token)
	if err != nil {
		return err
	}

	u, err := s.Store.GetUser(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if u.Email != claims.Email {
		return errors.New(errors.CodeVerifyTokenInvalid, "account no longer holds the token's email")
	}
	if u.EmailVerified {
		return nil
	}
	u.EmailVerified = true
	u.UpdatedAt = s.now()
	return s.Store.Save(ctx, u)
}
