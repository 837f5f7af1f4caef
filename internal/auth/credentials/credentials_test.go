package credentials

import "testing"

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Verify(hash, "correct horse battery staple") {
		t.Fatal("expected matching password to verify")
	}
	if Verify(hash, "wrong password") {
		t.Fatal("expected mismatched password to fail")
	}
}

func TestVerifyEmptyHashNeverMatches(t *testing.T) {
	if Verify("", "") {
		t.Fatal("empty hash must not verify")
	}
	if Verify("", "anything") {
		t.Fatal("empty hash must not verify")
	}
}

func TestPlaceholderHashIsUnguessable(t *testing.T) {
	hash, err := PlaceholderHash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if Verify(hash, "") {
		t.Fatal("placeholder hash must not match empty password")
	}

	other, err := PlaceholderHash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == other {
		t.Fatal("expected distinct placeholder hashes")
	}
}
