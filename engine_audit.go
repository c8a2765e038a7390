package credflow

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/credflow/internal/audit"
)

const (
	auditEventSignInSuccess         = "sign_in_success"
	auditEventSignInFailure         = "sign_in_failure"
	auditEventTwoFactorChallenge    = "two_factor_challenge"
	auditEventSignOut               = "sign_out"
	auditEventSignUpPending         = "sign_up_pending"
	auditEventSignUpFailure         = "sign_up_failure"
	auditEventEmailVerified         = "email_verification_success"
	auditEventEmailVerifyFailure    = "email_verification_failure"
	auditEventVerificationResent    = "email_verification_resent"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetSuccess  = "password_reset_success"
	auditEventPasswordResetFailure  = "password_reset_failure"
	auditEventTwoFactorSuccess      = "two_factor_success"
	auditEventTwoFactorFailure      = "two_factor_failure"
	auditEventTwoFactorSent         = "two_factor_code_sent"
	auditEventTwoFactorEnabled      = "two_factor_enabled"
	auditEventTwoFactorDisabled     = "two_factor_disabled"
	auditEventPasswordChange        = "password_change"
	auditEventNameUpdate            = "name_update"
	auditEventRoleUpdate            = "role_update"
	auditEventDeleteAccountCodeSent = "delete_account_code_sent"
	auditEventAccountDeleted        = "account_deleted"
	auditEventOAuthSignIn           = "oauth_sign_in"
	auditEventProviderDisconnected  = "provider_disconnected"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
	auditEventSessionsInvalidated   = "sessions_invalidated"
)

// AuditErrorCode is the stable failure label recorded on audit events.
type AuditErrorCode string

const (
	auditErrInvalidInput      AuditErrorCode = "invalid_input"
	auditErrUserNotFound      AuditErrorCode = "user_not_found"
	auditErrInvalidPassword   AuditErrorCode = "invalid_password"
	auditErrInvalidCode       AuditErrorCode = "invalid_code"
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrSessionMismatch   AuditErrorCode = "session_mismatch"
	auditErrProviderNotLinked AuditErrorCode = "provider_not_linked"
	auditErrExpired           AuditErrorCode = "expired"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrUnauthenticated   AuditErrorCode = "unauthenticated"
	auditErrStepUpRequired    AuditErrorCode = "two_factor_required"
	auditErrDuplicate         AuditErrorCode = "duplicate"
	auditErrOAuth             AuditErrorCode = "oauth_failed"
	auditErrInternal          AuditErrorCode = "internal_error"
)

// emitAudit records the outcome of a flow. A nil err marks success.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["user_agent"] = ua
	}

	event := internalaudit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        ClientIPFromContext(ctx),
		Success:   err == nil,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, flow string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, "", ErrRateLimited, func() map[string]string {
		return map[string]string{"flow": flow}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrIncorrectPassword):
		return auditErrInvalidPassword
	case errors.Is(err, ErrIncorrectCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionMismatch):
		return auditErrSessionMismatch
	case errors.Is(err, ErrProviderNotLinked):
		return auditErrProviderNotLinked
	case errors.Is(err, ErrOAuthFailed):
		return auditErrOAuth
	}

	switch KindOf(err) {
	case KindValidation:
		return auditErrInvalidInput
	case KindExpired:
		return auditErrExpired
	case KindRateLimited:
		return auditErrRateLimited
	case KindAuthenticationRequired:
		return auditErrUnauthenticated
	case KindStepUpRequired:
		return auditErrStepUpRequired
	case KindConflict:
		return auditErrDuplicate
	default:
		return auditErrInternal
	}
}
