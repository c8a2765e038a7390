package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// TokenSizeShort is the byte length for low-value opaque identifiers.
	TokenSizeShort = 16
	// TokenSizeStrong is the default byte length for tokens.
	TokenSizeStrong = 32
	// SessionIDSize is the byte length of session identifiers.
	SessionIDSize = 32

	otpMin  = 100000
	otpSpan = 900000
)

// GenerateToken returns size random bytes, hex encoded. A failing system
// random source is not recoverable, so it panics instead of returning.
func GenerateToken(size int) string {
	if size <= 0 {
		size = TokenSizeStrong
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("internal: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}

// NewSessionID returns a fresh opaque session identifier.
func NewSessionID() string {
	return GenerateToken(SessionIDSize)
}

// NewOTP returns a uniformly random six digit code in [100000, 999999].
func NewOTP() string {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		panic(fmt.Sprintf("internal: crypto/rand failed: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin)
}

// HashToken returns the hex SHA-256 digest used to store bearer tokens at rest.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
