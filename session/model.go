package session

import "time"

// Data is the payload stored for a session.
type Data struct {
	UserID             string     `json:"id" validate:"required"`
	Role               string     `json:"role" validate:"required,oneof=USER ADMIN"`
	TwoFactorVerified  bool       `json:"isTwoFactorVerified,omitempty"`
	TwoFactorExpiresAt *time.Time `json:"twoFactorExpiresAt,omitempty"`
}

// Session is a live session and its opaque id.
type Session struct {
	ID string
	Data
}

// Elevated reports whether the two-factor marker is present and unexpired at now.
func (d Data) Elevated(now time.Time) bool {
	return d.TwoFactorVerified && d.TwoFactorExpiresAt != nil && now.Before(*d.TwoFactorExpiresAt)
}

// WithElevation returns a copy of d carrying a two-factor marker valid until expiresAt.
func (d Data) WithElevation(expiresAt time.Time) Data {
	t := expiresAt.UTC()
	d.TwoFactorVerified = true
	d.TwoFactorExpiresAt = &t
	return d
}
