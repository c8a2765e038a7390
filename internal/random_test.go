package internal

import (
	"strconv"
	"testing"
)

func TestNewOTPAlwaysSixDigits(t *testing.T) {
	for i := 0; i < 1_000_000; i++ {
		otp := NewOTP()
		if len(otp) != 6 {
			t.Fatalf("expected 6 digits, got %q", otp)
		}
		n, err := strconv.Atoi(otp)
		if err != nil {
			t.Fatalf("non-numeric otp %q", otp)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("otp %d out of range", n)
		}
	}
}

func TestGenerateTokenLength(t *testing.T) {
	if got := len(GenerateToken(TokenSizeShort)); got != 32 {
		t.Fatalf("expected 32 hex chars, got %d", got)
	}
	if got := len(GenerateToken(0)); got != TokenSizeStrong*2 {
		t.Fatalf("expected default size, got %d", got)
	}
	if got := len(NewSessionID()); got != SessionIDSize*2 {
		t.Fatalf("expected session id of %d chars, got %d", SessionIDSize*2, got)
	}
	if GenerateToken(TokenSizeStrong) == GenerateToken(TokenSizeStrong) {
		t.Fatal("expected distinct tokens")
	}
}

func TestHashTokenStable(t *testing.T) {
	a := HashToken("abc")
	if a != HashToken("abc") {
		t.Fatal("expected stable digest")
	}
	if a == HashToken("abd") {
		t.Fatal("expected different digest")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}
