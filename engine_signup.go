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

// SignUp stages a pending user and emails a verification code. The user is
// created only once the code is confirmed with VerifyEmail. Signing up again
// before that replaces the pending record.
func (e *Engine) SignUp(ctx context.Context, jar cookie.Jar, in SignUpInput) (Outcome, error) {
	defer e.observe(e.now())

	in.normalize()
	if err := checkStruct(in, ErrInvalidInput); err != nil {
		return Outcome{}, e.reject(ctx, auditEventSignUpFailure, "", err)
	}
	if err := e.allow(ctx, "sign_up", rate.SignUp, in.Email); err != nil {
		return Outcome{}, e.reject(ctx, auditEventSignUpFailure, "", err)
	}

	existing, err := e.accounts.UserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		e.metricInc(MetricSignUpDuplicate)
		return Outcome{}, e.reject(ctx, auditEventSignUpFailure, existing.ID, ErrUserExists)
	case !errors.Is(err, account.ErrNotFound):
		return Outcome{}, e.reject(ctx, auditEventSignUpFailure, "", fmt.Errorf("find user: %w", err))
	}

	salt := password.GenerateSalt()
	hash, err := password.Hash(in.Password, salt)
	if err != nil {
		return Outcome{}, e.reject(ctx, auditEventSignUpFailure, "", fmt.Errorf("hash password: %w", err))
	}

	pending, err := e.accounts.UpsertPendingUser(ctx, account.PendingUser{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Salt:         salt,
		Code:         internal.NewOTP(),
		ExpiresAt:    e.now().Add(e.config.Verification.CodeTTL),
	})
	if err != nil {
		return Outcome{}, e.reject(ctx, auditEventSignUpFailure, "", fmt.Errorf("store pending user: %w", err))
	}

	if err := e.mailer.SendVerificationCode(ctx, pending.Email, pending.Code); err != nil {
		return Outcome{}, e.reject(ctx, auditEventSignUpFailure, "", err)
	}
	e.setCookie(jar, cookie.VerificationEmail, pending.Email, e.config.Verification.CookieTTL)

	e.metricInc(MetricSignUpPending)
	e.emitAudit(ctx, auditEventSignUpPending, "", nil, nil)
	return Outcome{Redirect: RedirectEmailVerification}, nil
}

// PendingVerificationEmail returns the address awaiting verification for
// this client. Without one the caller is sent back to sign-up.
func (e *Engine) PendingVerificationEmail(jar cookie.Jar) (string, Outcome) {
	email, ok := jar.Get(cookie.VerificationEmail)
	if !ok || email == "" {
		return "", Outcome{Redirect: RedirectSignUp}
	}
	return email, Outcome{}
}

// VerifyEmail confirms a sign-up code and promotes the pending user. A
// missing pending record is not an error: the caller is sent back to
// sign-up.
func (e *Engine) VerifyEmail(ctx context.Context, jar cookie.Jar, in VerifyEmailInput) (Outcome, error) {
	defer e.observe(e.now())

	in.normalize()
	if err := checkStruct(in, ErrInvalidCode); err != nil {
		return Outcome{}, e.verifyEmailFailed(ctx, "", err)
	}
	if err := e.allow(ctx, "email_verification", rate.EmailVerification, in.Email); err != nil {
		return Outcome{}, e.verifyEmailFailed(ctx, "", err)
	}

	pending, err := e.accounts.PendingUserByEmail(ctx, in.Email)
	if errors.Is(err, account.ErrNotFound) {
		return Outcome{Redirect: RedirectSignUp}, nil
	}
	if err != nil {
		return Outcome{}, e.verifyEmailFailed(ctx, "", fmt.Errorf("find pending user: %w", err))
	}

	if subtle.ConstantTimeCompare([]byte(pending.Code), []byte(in.Code)) != 1 {
		return Outcome{}, e.verifyEmailFailed(ctx, "", ErrIncorrectCode)
	}
	if account.Expired(pending.ExpiresAt, e.now()) {
		if err := e.accounts.DeletePendingUser(ctx, pending.Email); err != nil {
			return Outcome{}, e.verifyEmailFailed(ctx, "", fmt.Errorf("delete pending user: %w", err))
		}
		return Outcome{}, e.verifyEmailFailed(ctx, "", ErrCodeExpired)
	}

	u, err := e.accounts.PromotePendingUser(ctx, pending.Email)
	switch {
	case errors.Is(err, account.ErrEmailTaken):
		return Outcome{}, e.verifyEmailFailed(ctx, "", ErrUserExists)
	case errors.Is(err, account.ErrNotFound):
		// Verified concurrently by another request.
		return Outcome{Redirect: RedirectSignUp}, nil
	case err != nil:
		return Outcome{}, e.verifyEmailFailed(ctx, "", fmt.Errorf("promote pending user: %w", err))
	}

	e.expireCookie(jar, cookie.VerificationEmail)
	if _, err := e.startSession(ctx, jar, sessionData(u)); err != nil {
		return Outcome{}, e.verifyEmailFailed(ctx, u.ID, err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerified, u.ID, nil, nil)
	return Outcome{Redirect: RedirectDashboard}, nil
}

func (e *Engine) verifyEmailFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricEmailVerificationFailure)
	return e.reject(ctx, auditEventEmailVerifyFailure, userID, err)
}

// ResendEmailVerification issues a new code for the pending address in the
// verification cookie and extends the cookie.
func (e *Engine) ResendEmailVerification(ctx context.Context, jar cookie.Jar) (Outcome, error) {
	email, out := e.PendingVerificationEmail(jar)
	if email == "" {
		return out, nil
	}
	if err := e.allow(ctx, "send_email", rate.SendEmail, email); err != nil {
		return Outcome{}, e.reject(ctx, auditEventVerificationResent, "", err)
	}

	pending, err := e.accounts.PendingUserByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		e.expireCookie(jar, cookie.VerificationEmail)
		return Outcome{Redirect: RedirectSignUp}, nil
	}
	if err != nil {
		return Outcome{}, e.reject(ctx, auditEventVerificationResent, "", fmt.Errorf("find pending user: %w", err))
	}

	pending.Code = internal.NewOTP()
	pending.ExpiresAt = e.now().Add(e.config.Verification.CodeTTL)
	pending, err = e.accounts.UpsertPendingUser(ctx, pending)
	if err != nil {
		return Outcome{}, e.reject(ctx, auditEventVerificationResent, "", fmt.Errorf("store pending user: %w", err))
	}

	if err := e.mailer.SendVerificationCode(ctx, pending.Email, pending.Code); err != nil {
		return Outcome{}, e.reject(ctx, auditEventVerificationResent, "", err)
	}
	e.setCookie(jar, cookie.VerificationEmail, pending.Email, e.config.Verification.CookieTTL)

	e.emitAudit(ctx, auditEventVerificationResent, "", nil, nil)
	return Outcome{}, nil
}
