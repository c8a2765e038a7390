package credflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/internal"
	"github.com/MrEthical07/credflow/internal/rate"
	"github.com/MrEthical07/credflow/password"
)

// SignIn checks an email and password. Accounts with two-factor enabled get
// an emailed code and a redirect to the two-factor step instead of a
// session.
func (e *Engine) SignIn(ctx context.Context, jar cookie.Jar, in SignInInput) (Outcome, error) {
	defer e.observe(e.now())

	in.normalize()
	if err := checkStruct(in, ErrInvalidCredentials); err != nil {
		return Outcome{}, e.signInFailed(ctx, "", err)
	}
	if err := e.allow(ctx, "sign_in", rate.SignIn, in.Email); err != nil {
		return Outcome{}, e.signInFailed(ctx, "", err)
	}

	u, err := e.accounts.UserByEmail(ctx, in.Email)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return Outcome{}, e.signInFailed(ctx, "", ErrUserNotFound)
	case err != nil:
		return Outcome{}, e.signInFailed(ctx, "", fmt.Errorf("find user: %w", err))
	case !u.HasPassword():
		return Outcome{}, e.signInFailed(ctx, u.ID, ErrUserNotFound)
	}

	ok, err := password.Verify(in.Password, u.PasswordHash, u.Salt)
	if err != nil {
		return Outcome{}, e.signInFailed(ctx, u.ID, fmt.Errorf("verify password: %w", err))
	}
	if !ok {
		return Outcome{}, e.signInFailed(ctx, u.ID, ErrIncorrectPassword)
	}

	if u.TwoFactorEnabled {
		if err := e.issueTwoFactor(ctx, jar, u); err != nil {
			return Outcome{}, e.signInFailed(ctx, u.ID, err)
		}
		e.metricInc(MetricTwoFactorChallenge)
		e.emitAudit(ctx, auditEventTwoFactorChallenge, u.ID, nil, nil)
		return Outcome{Redirect: RedirectTwoFactor}, nil
	}

	if _, err := e.startSession(ctx, jar, sessionData(u)); err != nil {
		return Outcome{}, e.signInFailed(ctx, u.ID, err)
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, u.ID, nil, nil)
	return Outcome{Redirect: RedirectDashboard}, nil
}

func (e *Engine) signInFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricSignInFailure)
	return e.reject(ctx, auditEventSignInFailure, userID, err)
}

// SignOut deletes the current session. Without one it only redirects.
func (e *Engine) SignOut(ctx context.Context, jar cookie.Jar) (Outcome, error) {
	sess, err := e.sessions.Get(ctx, jar)
	if err != nil {
		return Outcome{}, e.reject(ctx, auditEventSignOut, "", fmt.Errorf("load session: %w", err))
	}
	if sess == nil {
		return Outcome{Redirect: RedirectHome}, nil
	}

	if err := e.sessions.Delete(ctx, jar); err != nil {
		return Outcome{}, e.reject(ctx, auditEventSignOut, sess.UserID, fmt.Errorf("delete session: %w", err))
	}

	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, auditEventSignOut, sess.UserID, nil, nil)
	return Outcome{Redirect: RedirectHome}, nil
}

// issueTwoFactor replaces the user's outstanding code, points the
// two-factor cookie at it and emails it.
func (e *Engine) issueTwoFactor(ctx context.Context, jar cookie.Jar, u account.User) error {
	ttl := e.config.TwoFactor.CodeTTL
	tf, err := e.accounts.UpsertTwoFactor(ctx, account.TwoFactor{
		UserID:    u.ID,
		Code:      internal.NewOTP(),
		ExpiresAt: e.now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("store two-factor code: %w", err)
	}

	e.setCookie(jar, cookie.TwoFactorID, tf.ID, ttl)

	if err := e.mailer.SendTwoFactorCode(ctx, u.Email, tf.Code); err != nil {
		return err
	}
	return nil
}
