package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	costN     = 16384
	costR     = 8
	costP     = 1
	keyLength = 64

	// SaltSize is the number of random bytes in a salt before hex encoding.
	SaltSize = 16
)

// Parameters describes the scrypt cost used by Hash.
type Parameters struct {
	N         int
	R         int
	P         int
	KeyLength int
	SaltSize  int
}

// Params returns the scrypt cost used by Hash.
func Params() Parameters {
	return Parameters{N: costN, R: costR, P: costP, KeyLength: keyLength, SaltSize: SaltSize}
}

// ErrMissingSalt is returned when hashing or verifying without a salt.
var ErrMissingSalt = errors.New("password salt is empty")

// GenerateSalt returns a fresh hex-encoded salt. It panics if the system
// random source fails.
func GenerateSalt() string {
	buf := make([]byte, SaltSize)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("password: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}

// Hash derives the hex-encoded scrypt key for password and salt. The
// result is deterministic for a given pair.
func Hash(password, salt string) (string, error) {
	key, err := derive(password, salt)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// Verify reports whether password matches the stored hash and salt. The
// comparison runs in constant time over the decoded key bytes.
func Verify(password, hash, salt string) (bool, error) {
	expected, err := hex.DecodeString(hash)
	if err != nil {
		return false, fmt.Errorf("decode password hash: %w", err)
	}
	if len(expected) != keyLength {
		return false, errors.New("password hash has unexpected length")
	}

	computed, err := derive(password, salt)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(expected, computed) == 1, nil
}

func derive(password, salt string) ([]byte, error) {
	if salt == "" {
		return nil, ErrMissingSalt
	}
	key, err := scrypt.Key([]byte(norm.NFC.String(password)), []byte(salt), costN, costR, costP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	return key, nil
}
