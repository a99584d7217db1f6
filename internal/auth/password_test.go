package auth

import "testing"

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret123", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := ComparePassword(hash, "secret123"); err != nil {
		t.Fatalf("ComparePassword: %v", err)
	}
	if err := ComparePassword(hash, "wrong"); err == nil {
		t.Fatal("wrong password must not match")
	}
}

func TestHashPasswordInvalidCostFallsBack(t *testing.T) {
	hash, err := HashPassword("secret123", 0)
	if err != nil {
		t.Fatalf("HashPassword with out-of-range cost: %v", err)
	}
	if err := ComparePassword(hash, "secret123"); err != nil {
		t.Fatalf("ComparePassword: %v", err)
	}
}
