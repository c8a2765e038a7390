package credflow

import "errors"

// ErrorKind classifies engine errors for callers that map them to transport
// responses.
type ErrorKind uint8

const (
	KindUnexpected ErrorKind = iota
	KindValidation
	KindNotFoundOrInvalid
	KindExpired
	KindRateLimited
	KindAuthenticationRequired
	KindStepUpRequired
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFoundOrInvalid:
		return "not_found_or_invalid"
	case KindExpired:
		return "expired"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthenticationRequired:
		return "authentication_required"
	case KindStepUpRequired:
		return "step_up_required"
	case KindConflict:
		return "conflict"
	default:
		return "unexpected"
	}
}

// Error is a typed flow failure. Its message is safe to show to end users.
type Error struct {
	Kind ErrorKind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

var (
	ErrInvalidCredentials  = newError(KindValidation, "invalid credentials")
	ErrInvalidResetRequest = newError(KindValidation, "invalid token or password")
	ErrInvalidCode         = newError(KindValidation, "code is invalid")
	ErrInvalidInput        = newError(KindValidation, "invalid input")

	ErrUserNotFound      = newError(KindNotFoundOrInvalid, "user does not exist")
	ErrIncorrectPassword = newError(KindNotFoundOrInvalid, "password is incorrect")
	ErrIncorrectCode     = newError(KindNotFoundOrInvalid, "the entered code is incorrect")
	ErrTokenInvalid      = newError(KindNotFoundOrInvalid, "the token is invalid")
	ErrSessionMismatch   = newError(KindNotFoundOrInvalid, "user does not match the current session")
	ErrProviderNotLinked = newError(KindNotFoundOrInvalid, "provider is not connected")

	ErrCodeExpired  = newError(KindExpired, "the entered code is expired")
	ErrTokenExpired = newError(KindExpired, "the token is expired")

	ErrRateLimited = newError(KindRateLimited, "too many requests, please try again later")

	ErrUnauthenticated = newError(KindAuthenticationRequired, "user is not authenticated")

	ErrTwoFactorRequired = newError(KindStepUpRequired, "two-factor verification required")

	ErrUserExists = newError(KindConflict, "user already exists")

	ErrUnexpected  = newError(KindUnexpected, "something went wrong")
	ErrOAuthFailed = newError(KindUnexpected, "something went wrong")
)

// KindOf returns the kind of the first *Error in err's chain. Errors that are
// not engine errors classify as KindUnexpected.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
