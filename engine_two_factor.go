package credflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/internal/rate"
)

// VerifyTwoFactor confirms the code referenced by the two-factor cookie.
//
// A matching code is consumed before its expiry is checked, so it cannot be
// replayed either way. On success the session gains an elevation marker: a
// new session is started when the client had none (completing sign-in),
// otherwise the current session is elevated in place, provided it belongs
// to the code's owner.
func (e *Engine) VerifyTwoFactor(ctx context.Context, jar cookie.Jar, code string) (Outcome, error) {
	defer e.observe(e.now())

	if err := checkCode(code); err != nil {
		return Outcome{}, e.twoFactorFailed(ctx, "", err)
	}
	if err := e.allow(ctx, "two_factor", rate.TwoFactor, rateKeyIP(ctx)); err != nil {
		return Outcome{}, e.twoFactorFailed(ctx, "", err)
	}

	id, ok := jar.Get(cookie.TwoFactorID)
	if !ok || id == "" {
		return Outcome{}, e.twoFactorFailed(ctx, "", ErrCodeExpired)
	}
	tf, err := e.accounts.TwoFactorByID(ctx, id)
	if errors.Is(err, account.ErrNotFound) {
		return Outcome{}, e.twoFactorFailed(ctx, "", ErrCodeExpired)
	}
	if err != nil {
		return Outcome{}, e.twoFactorFailed(ctx, "", fmt.Errorf("find two-factor code: %w", err))
	}

	if subtle.ConstantTimeCompare([]byte(tf.Code), []byte(code)) != 1 {
		return Outcome{}, e.twoFactorFailed(ctx, tf.UserID, ErrIncorrectCode)
	}

	if err := e.accounts.DeleteTwoFactor(ctx, tf.ID); err != nil {
		return Outcome{}, e.twoFactorFailed(ctx, tf.UserID, fmt.Errorf("delete two-factor code: %w", err))
	}
	e.expireCookie(jar, cookie.TwoFactorID)

	if account.Expired(tf.ExpiresAt, e.now()) {
		return Outcome{}, e.twoFactorFailed(ctx, tf.UserID, ErrCodeExpired)
	}

	u, err := e.accounts.UserByID(ctx, tf.UserID)
	if errors.Is(err, account.ErrNotFound) {
		return Outcome{}, e.twoFactorFailed(ctx, tf.UserID, ErrUserNotFound)
	}
	if err != nil {
		return Outcome{}, e.twoFactorFailed(ctx, tf.UserID, fmt.Errorf("find user: %w", err))
	}

	elevatedUntil := e.now().Add(e.config.TwoFactor.ElevationTTL)

	sess, err := e.sessions.Get(ctx, jar)
	if err != nil {
		return Outcome{}, e.twoFactorFailed(ctx, u.ID, fmt.Errorf("load session: %w", err))
	}
	if sess == nil {
		if _, err := e.startSession(ctx, jar, sessionData(u).WithElevation(elevatedUntil)); err != nil {
			return Outcome{}, e.twoFactorFailed(ctx, u.ID, err)
		}
		e.metricInc(MetricTwoFactorSuccess)
		e.emitAudit(ctx, auditEventTwoFactorSuccess, u.ID, nil, nil)
		return Outcome{Redirect: RedirectDashboard}, nil
	}

	if sess.UserID != u.ID {
		return Outcome{}, e.twoFactorFailed(ctx, u.ID, ErrSessionMismatch)
	}
	if err := e.updateSession(ctx, jar, resync(sess.Data, u).WithElevation(elevatedUntil)); err != nil {
		return Outcome{}, e.twoFactorFailed(ctx, u.ID, err)
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, u.ID, nil, func() map[string]string {
		return map[string]string{"step_up": "true"}
	})
	return Outcome{}, nil
}

func (e *Engine) twoFactorFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricTwoFactorFailure)
	return e.reject(ctx, auditEventTwoFactorFailure, userID, err)
}

// SendTwoFactor emails a fresh code. The recipient is the signed-in user,
// or, during sign-in, the owner of the code in the two-factor cookie.
func (e *Engine) SendTwoFactor(ctx context.Context, jar cookie.Jar) error {
	u, err := e.twoFactorRecipient(ctx, jar)
	if err != nil {
		return e.reject(ctx, auditEventTwoFactorSent, "", err)
	}
	if err := e.allow(ctx, "send_email", rate.SendEmail, u.Email); err != nil {
		return e.reject(ctx, auditEventTwoFactorSent, u.ID, err)
	}
	if err := e.issueTwoFactor(ctx, jar, u); err != nil {
		return e.reject(ctx, auditEventTwoFactorSent, u.ID, err)
	}

	e.emitAudit(ctx, auditEventTwoFactorSent, u.ID, nil, nil)
	return nil
}

func (e *Engine) twoFactorRecipient(ctx context.Context, jar cookie.Jar) (account.User, error) {
	sess, err := e.sessions.Get(ctx, jar)
	if err != nil {
		return account.User{}, fmt.Errorf("load session: %w", err)
	}

	userID := ""
	if sess != nil {
		userID = sess.UserID
	} else {
		id, ok := jar.Get(cookie.TwoFactorID)
		if !ok || id == "" {
			return account.User{}, ErrCodeExpired
		}
		tf, err := e.accounts.TwoFactorByID(ctx, id)
		if errors.Is(err, account.ErrNotFound) {
			return account.User{}, ErrCodeExpired
		}
		if err != nil {
			return account.User{}, fmt.Errorf("find two-factor code: %w", err)
		}
		userID = tf.UserID
	}

	u, err := e.accounts.UserByID(ctx, userID)
	if errors.Is(err, account.ErrNotFound) {
		return account.User{}, ErrUserNotFound
	}
	if err != nil {
		return account.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// EnableTwoFactor turns on email codes at sign-in for the current user.
func (e *Engine) EnableTwoFactor(ctx context.Context, jar cookie.Jar) error {
	_, u, err := e.requireUser(ctx, jar)
	if err != nil {
		return e.reject(ctx, auditEventTwoFactorEnabled, "", err)
	}
	if err := e.accounts.SetTwoFactorEnabled(ctx, u.ID, true); err != nil {
		return e.reject(ctx, auditEventTwoFactorEnabled, u.ID, fmt.Errorf("enable two-factor: %w", err))
	}

	e.emitAudit(ctx, auditEventTwoFactorEnabled, u.ID, nil, nil)
	return nil
}

// DisableTwoFactor turns off two-factor. It needs a current elevation and
// fails with ErrTwoFactorRequired otherwise, so the caller can run
// VerifyTwoFactor and retry.
func (e *Engine) DisableTwoFactor(ctx context.Context, jar cookie.Jar) error {
	sess, u, err := e.requireUser(ctx, jar)
	if err != nil {
		return e.reject(ctx, auditEventTwoFactorDisabled, "", err)
	}
	if !sess.Elevated(e.now()) {
		return e.reject(ctx, auditEventTwoFactorDisabled, u.ID, ErrTwoFactorRequired)
	}
	if err := e.accounts.SetTwoFactorEnabled(ctx, u.ID, false); err != nil {
		return e.reject(ctx, auditEventTwoFactorDisabled, u.ID, fmt.Errorf("disable two-factor: %w", err))
	}

	e.emitAudit(ctx, auditEventTwoFactorDisabled, u.ID, nil, nil)
	return nil
}
