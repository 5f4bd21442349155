package security

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("password123")

	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if hash == "password123" {
		t.Fatalf("hash must not equal the plaintext")
	}

	if err := CheckPassword(hash, "password123"); err != nil {
		t.Fatalf("expected matching password to verify: %v", err)
	}

	if err := CheckPassword(hash, "wrong-password"); err == nil {
		t.Fatalf("expected mismatched password to fail")
	}
}
