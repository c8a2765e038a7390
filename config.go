package credflow

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/internal/rate"
	"github.com/MrEthical07/credflow/oauth"
	"github.com/caarlos0/env/v11"
)

// Config is the complete engine configuration. DefaultConfig returns the
// production values; LoadConfig overlays CREDFLOW_* environment variables.
type Config struct {
	BaseURL       string              `env:"CREDFLOW_BASE_URL"`
	Session       SessionConfig       `envPrefix:"CREDFLOW_SESSION_"`
	Cookie        CookieConfig        `envPrefix:"CREDFLOW_COOKIE_"`
	Verification  VerificationConfig  `envPrefix:"CREDFLOW_VERIFICATION_"`
	TwoFactor     TwoFactorConfig     `envPrefix:"CREDFLOW_TWO_FACTOR_"`
	PasswordReset PasswordResetConfig `envPrefix:"CREDFLOW_PASSWORD_RESET_"`
	DeleteAccount DeleteAccountConfig `envPrefix:"CREDFLOW_DELETE_ACCOUNT_"`
	OAuth         OAuthConfig         `envPrefix:"CREDFLOW_OAUTH_"`
	RateLimit     RateLimitConfig     `envPrefix:"CREDFLOW_RATE_LIMIT_"`
	Mail          MailConfig          `envPrefix:"CREDFLOW_MAIL_"`
	Audit         AuditConfig         `envPrefix:"CREDFLOW_AUDIT_"`
	Metrics       MetricsConfig       `envPrefix:"CREDFLOW_METRICS_"`
}

/*
====================================
SESSION AND COOKIES
====================================
*/

// SessionConfig controls the sliding session lifetime.
type SessionConfig struct {
	TTL time.Duration `env:"TTL"`
}

// CookieConfig holds attributes shared by every cookie the engine sets.
type CookieConfig struct {
	Secure bool   `env:"SECURE"`
	Domain string `env:"DOMAIN"`
}

func (c CookieConfig) policy() cookie.Policy {
	return cookie.Policy{Secure: c.Secure, Domain: c.Domain}
}

/*
====================================
CODES AND TOKENS
====================================
*/

// VerificationConfig controls sign-up email verification.
type VerificationConfig struct {
	CodeTTL   time.Duration `env:"CODE_TTL"`
	CookieTTL time.Duration `env:"COOKIE_TTL"`
}

// TwoFactorConfig controls the email OTP second factor. The reference
// cookie lives as long as the code.
type TwoFactorConfig struct {
	CodeTTL      time.Duration `env:"CODE_TTL"`
	ElevationTTL time.Duration `env:"ELEVATION_TTL"`
}

type PasswordResetConfig struct {
	TokenTTL time.Duration `env:"TOKEN_TTL"`
}

type DeleteAccountConfig struct {
	CodeTTL time.Duration `env:"CODE_TTL"`
}

/*
====================================
OAUTH
====================================
*/

// OAuthConfig holds provider credentials. A provider with incomplete
// credentials is not offered.
type OAuthConfig struct {
	Google oauth.Credentials `envPrefix:"GOOGLE_"`
	GitHub oauth.Credentials `envPrefix:"GITHUB_"`
}

/*
====================================
RATE LIMITING
====================================
*/

// WindowConfig admits Limit requests per trailing Period.
type WindowConfig struct {
	Limit  int           `env:"LIMIT"`
	Period time.Duration `env:"PERIOD"`
}

// RateLimitConfig holds one sliding window per operation category plus the
// coarse per-IP edge window.
type RateLimitConfig struct {
	Prefix            string       `env:"PREFIX"`
	SignIn            WindowConfig `envPrefix:"SIGN_IN_"`
	SignUp            WindowConfig `envPrefix:"SIGN_UP_"`
	EmailVerification WindowConfig `envPrefix:"EMAIL_VERIFICATION_"`
	PasswordReset     WindowConfig `envPrefix:"PASSWORD_RESET_"`
	TwoFactor         WindowConfig `envPrefix:"TWO_FACTOR_"`
	SendEmail         WindowConfig `envPrefix:"SEND_EMAIL_"`
	DeleteAccount     WindowConfig `envPrefix:"DELETE_ACCOUNT_"`
	Global            WindowConfig `envPrefix:"GLOBAL_"`
}

func (c RateLimitConfig) windows() map[rate.Category]WindowConfig {
	return map[rate.Category]WindowConfig{
		rate.SignIn:            c.SignIn,
		rate.SignUp:            c.SignUp,
		rate.EmailVerification: c.EmailVerification,
		rate.PasswordReset:     c.PasswordReset,
		rate.TwoFactor:         c.TwoFactor,
		rate.SendEmail:         c.SendEmail,
		rate.DeleteAccount:     c.DeleteAccount,
		rate.Global:            c.Global,
	}
}

// LimiterConfig converts the windows to the limiter's representation.
func (c RateLimitConfig) LimiterConfig() rate.Config {
	out := rate.Config{Prefix: c.Prefix, Windows: map[rate.Category]rate.Window{}}
	for cat, w := range c.windows() {
		out.Windows[cat] = rate.Window{Limit: w.Limit, Period: w.Period}
	}
	return out
}

/*
====================================
MAIL, AUDIT, METRICS
====================================
*/

// MailConfig selects and configures the outbound email transport used by
// the server binary.
type MailConfig struct {
	Transport    string `env:"TRANSPORT"`
	From         string `env:"FROM"`
	FromName     string `env:"FROM_NAME"`
	ResendAPIKey string `env:"RESEND_API_KEY"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
}

const (
	MailTransportLog    = "log"
	MailTransportSMTP   = "smtp"
	MailTransportResend = "resend"
)

type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	limits := rate.DefaultConfig()
	window := func(c rate.Category) WindowConfig {
		w := limits.Windows[c]
		return WindowConfig{Limit: w.Limit, Period: w.Period}
	}

	return Config{
		BaseURL: "http://localhost:3000",
		Session: SessionConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Cookie: CookieConfig{
			Secure: true,
		},
		Verification: VerificationConfig{
			CodeTTL:   24 * time.Hour,
			CookieTTL: 15 * time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			CodeTTL:      15 * time.Minute,
			ElevationTTL: 15 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: 24 * time.Hour,
		},
		DeleteAccount: DeleteAccountConfig{
			CodeTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Prefix:            limits.Prefix,
			SignIn:            window(rate.SignIn),
			SignUp:            window(rate.SignUp),
			EmailVerification: window(rate.EmailVerification),
			PasswordReset:     window(rate.PasswordReset),
			TwoFactor:         window(rate.TwoFactor),
			SendEmail:         window(rate.SendEmail),
			DeleteAccount:     window(rate.DeleteAccount),
			Global:            window(rate.Global),
		},
		Mail: MailConfig{
			Transport: MailTransportLog,
			From:      "onboarding@resend.dev",
			SMTPPort:  587,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfig returns DefaultConfig overlaid with any CREDFLOW_* variables
// present in the environment, validated.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("BaseURL must be an absolute URL")
	}

	// Lifetimes
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"Session TTL", c.Session.TTL},
		{"Verification CodeTTL", c.Verification.CodeTTL},
		{"Verification CookieTTL", c.Verification.CookieTTL},
		{"TwoFactor CodeTTL", c.TwoFactor.CodeTTL},
		{"TwoFactor ElevationTTL", c.TwoFactor.ElevationTTL},
		{"PasswordReset TokenTTL", c.PasswordReset.TokenTTL},
		{"DeleteAccount CodeTTL", c.DeleteAccount.CodeTTL},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be > 0", d.name)
		}
	}

	// Rate limits
	if c.RateLimit.Prefix == "" {
		return errors.New("RateLimit Prefix must not be empty")
	}
	for cat, w := range c.RateLimit.windows() {
		if w.Limit <= 0 || w.Period <= 0 {
			return fmt.Errorf("RateLimit %s window must have positive limit and period", cat)
		}
	}

	// Mail
	switch c.Mail.Transport {
	case MailTransportLog:
	case MailTransportSMTP:
		if c.Mail.SMTPHost == "" || c.Mail.SMTPPort <= 0 {
			return errors.New("Mail smtp transport requires SMTPHost and SMTPPort")
		}
	case MailTransportResend:
		if c.Mail.ResendAPIKey == "" {
			return errors.New("Mail resend transport requires ResendAPIKey")
		}
	default:
		return fmt.Errorf("Mail Transport %q is not supported", c.Mail.Transport)
	}
	if c.Mail.Transport != MailTransportLog && c.Mail.From == "" {
		return errors.New("Mail From must not be empty")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
