package account

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("account: record not found")
	// ErrEmailTaken is returned when a verified user already owns the email.
	ErrEmailTaken = errors.New("account: email already registered")
)

// Role is the authorization role stored on a user and mirrored in sessions.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Provider names an OAuth identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

// User is a verified account. PasswordHash and Salt are both set or both
// empty; OAuth-only accounts have neither.
type User struct {
	ID               string
	Email            string
	Name             string
	PasswordHash     string
	Salt             string
	Avatar           string
	TwoFactorEnabled bool
	Role             Role
	Providers        []ProviderLink
	CreatedAt        time.Time
}

// HasPassword reports whether the user can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != "" && u.Salt != ""
}

// Linked reports whether the user has an identity at p.
func (u User) Linked(p Provider) bool {
	for _, l := range u.Providers {
		if l.Provider == p {
			return true
		}
	}
	return false
}

// ProviderLink binds a user to an external identity.
type ProviderLink struct {
	UserID     string
	Provider   Provider
	ExternalID string
}

// Identity is a normalized external identity presented at OAuth callback.
type Identity struct {
	Provider   Provider
	ExternalID string
	Email      string
	Name       string
	Avatar     string
}

// PendingUser stages a sign-up until its email is verified.
type PendingUser struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Salt         string
	Code         string
	ExpiresAt    time.Time
}

// PasswordReset is an outstanding reset link. Only the SHA-256 of the
// emailed token is stored.
type PasswordReset struct {
	ID        string
	Email     string
	TokenHash string
	ExpiresAt time.Time
}

// TwoFactor is an outstanding sign-in or step-up code.
type TwoFactor struct {
	ID        string
	UserID    string
	Code      string
	ExpiresAt time.Time
}

// DeleteAccount is an outstanding account deletion code.
type DeleteAccount struct {
	ID        string
	UserID    string
	Code      string
	ExpiresAt time.Time
}

// Expired reports whether expiresAt is at or before now.
func Expired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}
