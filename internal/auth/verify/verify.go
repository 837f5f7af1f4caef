// Package verify issues and redeems email verification tokens.
package verify

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbranch/accountlink/internal/platform/errors"
)

// Config carries email verification settings.
type Config struct {
	// Secret signs verification tokens. Verification is disabled when empty.
	Secret string `env:"ACCOUNTLINK_VERIFY_SECRET"`
	// TTL bounds how long a verification link stays valid.
	TTL time.Duration `env:"ACCOUNTLINK_VERIFY_TTL" envDefault:"24h"`
	// BaseURL is the public link prefix embedded in verification emails.
	BaseURL string `env:"ACCOUNTLINK_VERIFY_BASE_URL" envDefault:"http://localhost:8080/auth/verify"`
}

// Claims bind a verification token to one user and email so a token
// cannot verify an address the account no longer holds.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer mints and checks verification tokens.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	baseURL string

	clock func() time.Time
}

// NewIssuer builds an issuer from config. Returns nil when verification
// is not configured.
func NewIssuer(cfg Config) *Issuer {
	if cfg.Secret == "" {
		return nil
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{
		secret:  []byte(cfg.Secret),
		ttl:     ttl,
		baseURL: cfg.BaseURL,
	}
}

func (i *Issuer) now() time.Time {
	if i.clock != nil {
		return i.clock()
	}
	return time.Now().UTC()
}

// Issue mints a signed verification token for the user's current email.
func (i *Issuer) Issue(userID, email string) (string, error) {
	now := i.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return signed, nil
}

// Link builds the full verification URL for a token.
func (i *Issuer) Link(token string) string {
	return i.baseURL + "?token=" + url.QueryEscape(token)
}

// Redeem checks a token and returns its claims.
func (i *Issuer) Redeem(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, errors.Wrap(errors.CodeVerifyTokenExpired, "verification token expired", err)
		}
		return Claims{}, errors.Wrap(errors.CodeVerifyTokenInvalid, "verification token is not valid", err)
	}
	if !token.Valid || claims.UserID == "" || claims.Email == "" {
		return Claims{}, errors.New(errors.CodeVerifyTokenInvalid, "verification token is not valid")
	}
	return claims, nil
}

// Mailer delivers verification emails.
type Mailer interface {
	SendVerification(ctx context.Context, email, link string) error
}

// LogMailer writes verification links to the process log instead of
// sending mail. It is the default mailer for local development.
type LogMailer struct {
	Logger *log.Logger
}

// SendVerification logs the link.
func (m LogMailer) SendVerification(_ context.Context, email, link string) error {
	logger := m.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("verification email for %s: %s", email, link)
	return nil
}
