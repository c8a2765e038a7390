package credflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/internal"
	"github.com/MrEthical07/credflow/internal/rate"
	"github.com/MrEthical07/credflow/password"
)

// RequestPasswordReset emails a reset link to a registered address. Only
// the hash of the link's token is stored.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	defer e.observe(e.now())

	email, err := checkEmail(email)
	if err != nil {
		return e.reject(ctx, auditEventPasswordResetRequest, "", err)
	}
	if err := e.allow(ctx, "password_reset_request", rate.SendEmail, email); err != nil {
		return e.reject(ctx, auditEventPasswordResetRequest, "", err)
	}

	u, err := e.accounts.UserByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return e.reject(ctx, auditEventPasswordResetRequest, "", ErrUserNotFound)
	}
	if err != nil {
		return e.reject(ctx, auditEventPasswordResetRequest, "", fmt.Errorf("find user: %w", err))
	}

	token := internal.GenerateToken(internal.TokenSizeStrong)
	if _, err := e.accounts.UpsertPasswordReset(ctx, account.PasswordReset{
		Email:     u.Email,
		TokenHash: internal.HashToken(token),
		ExpiresAt: e.now().Add(e.config.PasswordReset.TokenTTL),
	}); err != nil {
		return e.reject(ctx, auditEventPasswordResetRequest, u.ID, fmt.Errorf("store password reset: %w", err))
	}

	if err := e.mailer.SendPasswordReset(ctx, u.Email, token); err != nil {
		return e.reject(ctx, auditEventPasswordResetRequest, u.ID, err)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, u.ID, nil, nil)
	return nil
}

// ResetPassword consumes a reset token. On success every existing session of
// the user is invalidated and a new one is started for this client.
func (e *Engine) ResetPassword(ctx context.Context, jar cookie.Jar, in ResetPasswordInput) (Outcome, error) {
	defer e.observe(e.now())

	in.Token = strings.ToLower(strings.TrimSpace(in.Token))
	if err := checkStruct(in, ErrInvalidResetRequest); err != nil {
		return Outcome{}, e.resetFailed(ctx, "", err)
	}
	if err := e.allow(ctx, "password_reset", rate.PasswordReset, rateKeyIP(ctx)); err != nil {
		return Outcome{}, e.resetFailed(ctx, "", err)
	}

	reset, err := e.accounts.PasswordResetByTokenHash(ctx, internal.HashToken(in.Token))
	if errors.Is(err, account.ErrNotFound) {
		return Outcome{}, e.resetFailed(ctx, "", ErrTokenInvalid)
	}
	if err != nil {
		return Outcome{}, e.resetFailed(ctx, "", fmt.Errorf("find password reset: %w", err))
	}

	if account.Expired(reset.ExpiresAt, e.now()) {
		if err := e.accounts.DeletePasswordReset(ctx, reset.ID); err != nil {
			return Outcome{}, e.resetFailed(ctx, "", fmt.Errorf("delete password reset: %w", err))
		}
		return Outcome{}, e.resetFailed(ctx, "", ErrTokenExpired)
	}

	salt := password.GenerateSalt()
	hash, err := password.Hash(in.Password, salt)
	if err != nil {
		return Outcome{}, e.resetFailed(ctx, "", fmt.Errorf("hash password: %w", err))
	}

	u, err := e.accounts.ConsumePasswordReset(ctx, reset.ID, hash, salt)
	if errors.Is(err, account.ErrNotFound) {
		return Outcome{}, e.resetFailed(ctx, "", ErrTokenInvalid)
	}
	if err != nil {
		return Outcome{}, e.resetFailed(ctx, "", fmt.Errorf("consume password reset: %w", err))
	}

	if err := e.sessions.InvalidateAll(ctx, u.ID); err != nil {
		return Outcome{}, e.resetFailed(ctx, u.ID, fmt.Errorf("invalidate sessions: %w", err))
	}
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionsInvalidated, u.ID, nil, func() map[string]string {
		return map[string]string{"reason": "password_reset"}
	})

	if _, err := e.startSession(ctx, jar, sessionData(u)); err != nil {
		return Outcome{}, e.resetFailed(ctx, u.ID, err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetSuccess, u.ID, nil, nil)
	return Outcome{Redirect: RedirectDashboard}, nil
}

func (e *Engine) resetFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricPasswordResetFailure)
	return e.reject(ctx, auditEventPasswordResetFailure, userID, err)
}
