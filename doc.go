// Package credflow implements cookie-session authentication: email and
// password sign-in with optional emailed two-factor codes, sign-up staged
// behind email verification, password reset links, account management and
// OAuth sign-in with Google and GitHub.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Each flow receives the request context and a
// [cookie.Jar] for the request and returns an [Outcome] naming where the
// client should navigate next.
//
// # State
//
// Sessions and rate-limit windows live in Redis. Users and their pending
// records (sign-ups, reset tokens, two-factor and deletion codes) live in an
// [account.Store]. No flow keeps cross-request state in process memory.
//
// # Errors
//
// Flows return *[Error] values whose [ErrorKind] tells the caller how to
// respond. Store, Redis and mail failures are logged and surface only as
// [ErrUnexpected].
package credflow
