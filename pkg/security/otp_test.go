package security_test

import (
	"testing"

	"github.com/localkart/localkart-backend/pkg/security"
)

func TestGenerateNumericCode(t *testing.T) {
	code, err := security.GenerateNumericCode(6)
	if err != nil {
		t.Fatalf("GenerateNumericCode returned error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("expected digits only, got %q", code)
		}
	}

	if _, err := security.GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for non-positive length")
	}
}

func TestHashAndVerifyCode(t *testing.T) {
	hash, err := security.HashCode("482915")
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashCode returned empty string")
	}

	ok, err := security.VerifyCode("482915", hash)
	if err != nil {
		t.Fatalf("VerifyCode returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyCode failed for the correct code")
	}

	ok, err = security.VerifyCode("000000", hash)
	if err != nil {
		t.Fatalf("VerifyCode returned error for wrong code: %v", err)
	}
	if ok {
		t.Fatal("VerifyCode returned true for an incorrect code")
	}
}

func TestVerifyCodeBadHash(t *testing.T) {
	if _, err := security.VerifyCode("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}
