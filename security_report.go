package credflow

import (
	"time"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/password"
)

// SecurityReport summarises the security-relevant settings an engine runs
// with. It carries no secrets and is safe to log at startup.
type SecurityReport struct {
	SecureCookies      bool
	SessionTTL         time.Duration
	TwoFactorCodeTTL   time.Duration
	ElevationTTL       time.Duration
	ResetTokenTTL      time.Duration
	Scrypt             password.Parameters
	RateLimitingActive bool
	AuditEnabled       bool
	MetricsEnabled     bool
	OAuthProviders     []account.Provider
}

// SecurityReport reports the engine's effective settings. A nil engine
// yields the zero report.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	return SecurityReport{
		SecureCookies:      e.config.Cookie.Secure,
		SessionTTL:         e.config.Session.TTL,
		TwoFactorCodeTTL:   e.config.TwoFactor.CodeTTL,
		ElevationTTL:       e.config.TwoFactor.ElevationTTL,
		ResetTokenTTL:      e.config.PasswordReset.TokenTTL,
		Scrypt:             password.Params(),
		RateLimitingActive: e.limiter != nil,
		AuditEnabled:       e.audit != nil,
		MetricsEnabled:     e.metrics.Enabled(),
		OAuthProviders:     e.Providers(),
	}
}
