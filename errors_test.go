package credflow

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{ErrInvalidCredentials, KindValidation},
		{ErrIncorrectCode, KindNotFoundOrInvalid},
		{ErrTokenExpired, KindExpired},
		{ErrRateLimited, KindRateLimited},
		{ErrUnauthenticated, KindAuthenticationRequired},
		{ErrTwoFactorRequired, KindStepUpRequired},
		{ErrUserExists, KindConflict},
		{fmt.Errorf("wrapped: %w", ErrCodeExpired), KindExpired},
		{errors.New("redis: connection refused"), KindUnexpected},
		{nil, KindUnexpected},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestOAuthFailureIsDistinctFromUnexpected(t *testing.T) {
	if errors.Is(ErrOAuthFailed, ErrUnexpected) {
		t.Fatal("oauth failures must stay distinguishable for auditing")
	}
	if ErrOAuthFailed.Error() != ErrUnexpected.Error() {
		t.Fatal("oauth failures must read like any other unexpected failure")
	}
}

func TestAuditErrorCodes(t *testing.T) {
	cases := map[error]AuditErrorCode{
		ErrIncorrectPassword:        auditErrInvalidPassword,
		ErrInvalidResetRequest:      auditErrInvalidInput,
		ErrCodeExpired:              auditErrExpired,
		ErrOAuthFailed:              auditErrOAuth,
		ErrUnexpected:               auditErrInternal,
		errors.New("anything else"): auditErrInternal,
		ErrTwoFactorRequired:        auditErrStepUpRequired,
	}
	for err, want := range cases {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
	if auditErrorCode(nil) != "" {
		t.Fatal("success carries no error code")
	}
}
