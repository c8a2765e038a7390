package credflow

import (
	"strings"

	"github.com/MrEthical07/credflow/account"
	"github.com/go-playground/validator/v10"
)

// Redirect is the navigation a flow asks its caller to perform.
type Redirect string

const (
	RedirectNone              Redirect = ""
	RedirectHome              Redirect = "/"
	RedirectSignIn            Redirect = "/signin"
	RedirectSignUp            Redirect = "/signup"
	RedirectDashboard         Redirect = "/dashboard"
	RedirectTwoFactor         Redirect = "/two-factor"
	RedirectEmailVerification Redirect = "/email-verification"
)

// Outcome is the successful result of a flow.
type Outcome struct {
	Redirect Redirect `json:"redirect,omitempty"`
}

// SignInInput is the sign-in form.
type SignInInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"min=8,max=256"`
}

// SignUpInput is the sign-up form.
type SignUpInput struct {
	Name     string `json:"name" validate:"min=2"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"min=8,max=256"`
}

// VerifyEmailInput carries the pending email and the code sent to it.
type VerifyEmailInput struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Code  string `json:"code" validate:"len=6,number"`
}

// ResetPasswordInput carries the emailed token and the new password.
type ResetPasswordInput struct {
	Token    string `json:"token" validate:"len=64,hexadecimal"`
	Password string `json:"password" validate:"min=8,max=256"`
}

// Profile is the current user as shown on the dashboard.
type Profile struct {
	ID               string             `json:"id"`
	Email            string             `json:"email"`
	Name             string             `json:"name"`
	Avatar           string             `json:"avatar,omitempty"`
	Role             account.Role       `json:"role"`
	TwoFactorEnabled bool               `json:"isTwoFactorEnabled"`
	HasPassword      bool               `json:"hasPassword"`
	Providers        []account.Provider `json:"providers"`
}

func profileOf(u account.User) Profile {
	providers := make([]account.Provider, 0, len(u.Providers))
	for _, l := range u.Providers {
		providers = append(providers, l.Provider)
	}
	return Profile{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Avatar:           u.Avatar,
		Role:             u.Role,
		TwoFactorEnabled: u.TwoFactorEnabled,
		HasPassword:      u.HasPassword(),
		Providers:        providers,
	}
}

var validate = validator.New()

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (in *SignInInput) normalize()      { in.Email = normalizeEmail(in.Email) }
func (in *VerifyEmailInput) normalize() { in.Email = normalizeEmail(in.Email) }

func (in *SignUpInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
}

// checkStruct validates in and reports fail on any violation, so callers
// never see which field was rejected.
func checkStruct(in any, fail error) error {
	if err := validate.Struct(in); err != nil {
		return fail
	}
	return nil
}

func checkEmail(email string) (string, error) {
	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email,max=255"); err != nil {
		return "", ErrInvalidInput
	}
	return email, nil
}

func checkCode(code string) error {
	if err := validate.Var(code, "len=6,number"); err != nil {
		return ErrInvalidCode
	}
	return nil
}

func checkName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := validate.Var(name, "min=2"); err != nil {
		return "", ErrInvalidInput
	}
	return name, nil
}

func checkPassword(pw string) error {
	if err := validate.Var(pw, "min=8,max=256"); err != nil {
		return ErrInvalidInput
	}
	return nil
}
