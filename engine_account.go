package credflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/internal"
	"github.com/MrEthical07/credflow/internal/rate"
	"github.com/MrEthical07/credflow/password"
)

// CurrentUser returns the profile of the signed-in user.
func (e *Engine) CurrentUser(ctx context.Context, jar cookie.Jar) (Profile, error) {
	_, u, err := e.requireUser(ctx, jar)
	if err != nil {
		var flowErr *Error
		if !errors.As(err, &flowErr) {
			e.log.WithError(err).Error("load current user")
			e.metricInc(MetricUnexpectedError)
			return Profile{}, ErrUnexpected
		}
		return Profile{}, err
	}
	return profileOf(u), nil
}

// ChangePassword sets a new password under a fresh salt and signs out every
// other session of the user. Accounts with two-factor enabled need a
// current elevation.
func (e *Engine) ChangePassword(ctx context.Context, jar cookie.Jar, newPassword string) error {
	defer e.observe(e.now())

	if err := checkPassword(newPassword); err != nil {
		return e.reject(ctx, auditEventPasswordChange, "", err)
	}
	sess, u, err := e.requireUser(ctx, jar)
	if err != nil {
		return e.reject(ctx, auditEventPasswordChange, "", err)
	}
	if u.TwoFactorEnabled && !sess.Elevated(e.now()) {
		return e.reject(ctx, auditEventPasswordChange, u.ID, ErrTwoFactorRequired)
	}

	salt := password.GenerateSalt()
	hash, err := password.Hash(newPassword, salt)
	if err != nil {
		return e.reject(ctx, auditEventPasswordChange, u.ID, fmt.Errorf("hash password: %w", err))
	}
	if err := e.accounts.UpdateUserPassword(ctx, u.ID, hash, salt); err != nil {
		return e.reject(ctx, auditEventPasswordChange, u.ID, fmt.Errorf("update password: %w", err))
	}

	if err := e.sessions.InvalidateOthers(ctx, u.ID, sess.ID); err != nil {
		return e.reject(ctx, auditEventPasswordChange, u.ID, fmt.Errorf("invalidate sessions: %w", err))
	}
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionsInvalidated, u.ID, nil, func() map[string]string {
		return map[string]string{"reason": "password_change"}
	})

	e.metricInc(MetricPasswordChange)
	e.emitAudit(ctx, auditEventPasswordChange, u.ID, nil, nil)
	return nil
}

// UpdateName renames the current user and resynchronises the session.
func (e *Engine) UpdateName(ctx context.Context, jar cookie.Jar, name string) (Profile, error) {
	name, err := checkName(name)
	if err != nil {
		return Profile{}, e.reject(ctx, auditEventNameUpdate, "", err)
	}
	sess, err := e.requireSession(ctx, jar)
	if err != nil {
		return Profile{}, e.reject(ctx, auditEventNameUpdate, "", err)
	}

	u, err := e.accounts.UpdateUserName(ctx, sess.UserID, name)
	if errors.Is(err, account.ErrNotFound) {
		return Profile{}, e.reject(ctx, auditEventNameUpdate, sess.UserID, ErrUserNotFound)
	}
	if err != nil {
		return Profile{}, e.reject(ctx, auditEventNameUpdate, sess.UserID, fmt.Errorf("update name: %w", err))
	}
	if err := e.updateSession(ctx, jar, resync(sess.Data, u)); err != nil {
		return Profile{}, e.reject(ctx, auditEventNameUpdate, u.ID, err)
	}

	e.emitAudit(ctx, auditEventNameUpdate, u.ID, nil, nil)
	return profileOf(u), nil
}

// UpdateRole changes the current user's role. The session moves to a new id
// carrying the stored role.
func (e *Engine) UpdateRole(ctx context.Context, jar cookie.Jar, role account.Role) (Profile, error) {
	if !role.Valid() {
		return Profile{}, e.reject(ctx, auditEventRoleUpdate, "", ErrInvalidInput)
	}
	sess, err := e.requireSession(ctx, jar)
	if err != nil {
		return Profile{}, e.reject(ctx, auditEventRoleUpdate, "", err)
	}

	u, err := e.accounts.UpdateUserRole(ctx, sess.UserID, role)
	if errors.Is(err, account.ErrNotFound) {
		return Profile{}, e.reject(ctx, auditEventRoleUpdate, sess.UserID, ErrUserNotFound)
	}
	if err != nil {
		return Profile{}, e.reject(ctx, auditEventRoleUpdate, sess.UserID, fmt.Errorf("update role: %w", err))
	}
	if _, err := e.sessions.Rotate(ctx, jar, resync(sess.Data, u)); err != nil {
		return Profile{}, e.reject(ctx, auditEventRoleUpdate, u.ID, fmt.Errorf("rotate session: %w", err))
	}
	e.metricInc(MetricSessionCreated)

	e.emitAudit(ctx, auditEventRoleUpdate, u.ID, nil, func() map[string]string {
		return map[string]string{"role": string(u.Role)}
	})
	return profileOf(u), nil
}

// DisconnectProvider removes the link between the current user and an
// OAuth provider.
func (e *Engine) DisconnectProvider(ctx context.Context, jar cookie.Jar, provider string) error {
	p := account.Provider(provider)
	if !p.Valid() {
		return e.reject(ctx, auditEventProviderDisconnected, "", ErrInvalidInput)
	}
	_, u, err := e.requireUser(ctx, jar)
	if err != nil {
		return e.reject(ctx, auditEventProviderDisconnected, "", err)
	}
	if !u.Linked(p) {
		return e.reject(ctx, auditEventProviderDisconnected, u.ID, ErrProviderNotLinked)
	}

	err = e.accounts.UnlinkProvider(ctx, u.ID, p)
	if errors.Is(err, account.ErrNotFound) {
		return e.reject(ctx, auditEventProviderDisconnected, u.ID, ErrProviderNotLinked)
	}
	if err != nil {
		return e.reject(ctx, auditEventProviderDisconnected, u.ID, fmt.Errorf("unlink provider: %w", err))
	}

	e.emitAudit(ctx, auditEventProviderDisconnected, u.ID, nil, func() map[string]string {
		return map[string]string{"provider": string(p)}
	})
	return nil
}

// SendDeleteAccountCode emails the current user a code confirming account
// deletion.
func (e *Engine) SendDeleteAccountCode(ctx context.Context, jar cookie.Jar) error {
	_, u, err := e.requireUser(ctx, jar)
	if err != nil {
		return e.reject(ctx, auditEventDeleteAccountCodeSent, "", err)
	}
	if err := e.allow(ctx, "send_email", rate.SendEmail, u.ID); err != nil {
		return e.reject(ctx, auditEventDeleteAccountCodeSent, u.ID, err)
	}

	d, err := e.accounts.UpsertDeleteAccount(ctx, account.DeleteAccount{
		UserID:    u.ID,
		Code:      internal.NewOTP(),
		ExpiresAt: e.now().Add(e.config.DeleteAccount.CodeTTL),
	})
	if err != nil {
		return e.reject(ctx, auditEventDeleteAccountCodeSent, u.ID, fmt.Errorf("store delete-account code: %w", err))
	}
	if err := e.mailer.SendDeleteAccountCode(ctx, u.Email, d.Code); err != nil {
		return e.reject(ctx, auditEventDeleteAccountCodeSent, u.ID, err)
	}

	e.emitAudit(ctx, auditEventDeleteAccountCodeSent, u.ID, nil, nil)
	return nil
}

// DeleteAccount removes the current user once the emailed code is
// confirmed, then signs out all of the user's sessions.
func (e *Engine) DeleteAccount(ctx context.Context, jar cookie.Jar, code string) (Outcome, error) {
	defer e.observe(e.now())

	if err := checkCode(code); err != nil {
		return Outcome{}, e.reject(ctx, auditEventAccountDeleted, "", err)
	}
	sess, err := e.requireSession(ctx, jar)
	if err != nil {
		return Outcome{}, e.reject(ctx, auditEventAccountDeleted, "", err)
	}
	userID := sess.UserID
	if err := e.allow(ctx, "delete_account", rate.DeleteAccount, userID); err != nil {
		return Outcome{}, e.reject(ctx, auditEventAccountDeleted, userID, err)
	}

	d, err := e.accounts.DeleteAccountByUser(ctx, userID)
	if errors.Is(err, account.ErrNotFound) {
		return Outcome{}, e.reject(ctx, auditEventAccountDeleted, userID, ErrCodeExpired)
	}
	if err != nil {
		return Outcome{}, e.reject(ctx, auditEventAccountDeleted, userID, fmt.Errorf("find delete-account code: %w", err))
	}
	if subtle.ConstantTimeCompare([]byte(d.Code), []byte(code)) != 1 {
		return Outcome{}, e.reject(ctx, auditEventAccountDeleted, userID, ErrIncorrectCode)
	}
	if account.Expired(d.ExpiresAt, e.now()) {
		if err := e.accounts.DeleteDeleteAccount(ctx, userID); err != nil {
			return Outcome{}, e.reject(ctx, auditEventAccountDeleted, userID, fmt.Errorf("delete delete-account code: %w", err))
		}
		return Outcome{}, e.reject(ctx, auditEventAccountDeleted, userID, ErrCodeExpired)
	}

	if err := e.accounts.DeleteUser(ctx, userID); err != nil {
		return Outcome{}, e.reject(ctx, auditEventAccountDeleted, userID, fmt.Errorf("delete user: %w", err))
	}

	// The account is gone; session cleanup failures only leave entries that
	// can no longer resolve a user.
	if err := e.sessions.Delete(ctx, jar); err != nil {
		e.log.WithField("user_id", userID).WithError(err).Warn("delete session after account deletion")
	}
	if err := e.sessions.InvalidateAll(ctx, userID); err != nil {
		e.log.WithField("user_id", userID).WithError(err).Warn("invalidate sessions after account deletion")
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, userID, nil, nil)
	return Outcome{Redirect: RedirectHome}, nil
}
