package verify

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/tbranch/accountlink/internal/platform/errors"
)

func testIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer := NewIssuer(Config{
		Secret:  "test-secret",
		TTL:     time.Hour,
		BaseURL: "https://example.test/auth/verify",
	})
	if issuer == nil {
		t.Fatal("expected issuer")
	}
	return issuer
}

func TestIssueAndRedeem(t *testing.T) {
	issuer := testIssuer(t)

	token, err := issuer.Issue("u1", "u1@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Redeem(token)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "u1@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRedeemExpiredToken(t *testing.T) {
	issuer := testIssuer(t)
	issued := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	issuer.clock = func() time.Time { return issued }

	token, err := issuer.Issue("u1", "u1@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	issuer.clock = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = issuer.Redeem(token)
	if errors.CodeOf(err) != errors.CodeVerifyTokenExpired {
		t.Fatalf("expected %s, got %v", errors.CodeVerifyTokenExpired, err)
	}
}

func TestRedeemTamperedToken(t *testing.T) {
	issuer := testIssuer(t)
	token, err := issuer.Issue("u1", "u1@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewIssuer(Config{Secret: "other-secret", TTL: time.Hour})
	if _, err := other.Redeem(token); errors.CodeOf(err) != errors.CodeVerifyTokenInvalid {
		t.Fatalf("expected %s, got %v", errors.CodeVerifyTokenInvalid, err)
	}

	if _, err := issuer.Redeem("not-a-token"); errors.CodeOf(err) != errors.CodeVerifyTokenInvalid {
		t.Fatalf("expected %s, got %v", errors.CodeVerifyTokenInvalid, err)
	}
}

func TestLinkEscapesToken(t *testing.T) {
	issuer := testIssuer(t)
	link := issuer.Link("a b+c")
	if link != "https://example.test/auth/verify?token=a+b%2Bc" {
		t.Fatalf("unexpected link: %q", link)
	}
}

func TestNewIssuerDisabledWithoutSecret(t *testing.T) {
	if NewIssuer(Config{}) != nil {
		t.Fatal("expected nil issuer without secret")
	}
}

func TestLogMailerWritesLink(t *testing.T) {
	var buf bytes.Buffer
	mailer := LogMailer{Logger: log.New(&buf, "", 0)}
	if err := mailer.SendVerification(context.Background(), "u1@example.com", "https://example.test/v?token=x"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), "u1@example.com") || !strings.Contains(buf.String(), "token=x") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
