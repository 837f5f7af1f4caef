package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMatchesByCode(t *testing.T) {
	err := New(CodeEmailTaken, "email already in use")
	wrapped := fmt.Errorf("create user: %w", err)

	if !stderrors.Is(wrapped, New(CodeEmailTaken, "different message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(wrapped, New(CodeNotFound, "email already in use")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeStoreUnavailable, "save user", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if err.Error() != "save user" {
		t.Fatalf("expected internal message, got %q", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeSessionBindFailed, "bind"))
	if got := CodeOf(err); got != CodeSessionBindFailed {
		t.Fatalf("expected session bind code, got %q", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("expected unknown code, got %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeUserInvalidEmail:   http.StatusBadRequest,
		CodeEmailTaken:         http.StatusConflict,
		CodeNotFound:           http.StatusNotFound,
		CodeStoreUnavailable:   http.StatusServiceUnavailable,
		CodeVerifyTokenExpired: http.StatusGone,
		CodeIdentityCorrupted:  http.StatusInternalServerError,
		CodeUnknown:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("code %s: expected %d, got %d", code, want, got)
		}
	}
}

func TestWithMetadata(t *testing.T) {
	err := WithMetadata(CodeIdentityCorrupted, "no stored identity", map[string]string{
		"provider": "google",
	})
	if err.Metadata["provider"] != "google" {
		t.Fatalf("expected metadata to be preserved, got %v", err.Metadata)
	}
}
