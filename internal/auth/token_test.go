package auth

import "testing"

func TestHashAndVerifyToken(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("s3cret-trigger-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !VerifyToken("s3cret-trigger-token", hash) {
		t.Fatalf("token should verify against its own hash")
	}
	if !VerifyToken("  s3cret-trigger-token  ", hash) {
		t.Fatalf("surrounding whitespace should be ignored")
	}
	if VerifyToken("wrong-token", hash) {
		t.Fatalf("wrong token must not verify")
	}
}

func TestVerifyTokenEmptyInputs(t *testing.T) {
	t.Parallel()

	if VerifyToken("", "$2a$12$notahash") {
		t.Fatalf("empty token must not verify")
	}
	if VerifyToken("token", "") {
		t.Fatalf("empty hash must not verify")
	}
	if VerifyToken("", "") {
		t.Fatalf("empty inputs must not verify")
	}
}

func TestHashTokenRejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := HashToken("   "); err == nil {
		t.Fatalf("expected error for blank token")
	}
}
