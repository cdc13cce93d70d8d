package password

import (
	"errors"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("rahasia-123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "rahasia-123" {
		t.Fatal("hash must not equal plaintext")
	}
	if err := Verify(hash, "rahasia-123"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := Verify(hash, "salah-123"); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	if _, err := Hash("pendek"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestVerifyEmptyHashFails(t *testing.T) {
	if err := Verify("", "whatever"); err == nil {
		t.Fatal("expected error for empty hash")
	}
}
