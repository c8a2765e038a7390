// Package session manages server-side sessions kept in a [kv.Store].
//
// A session lives under session:{id} as a JSON payload with a sliding TTL.
// The set user:{userID}:sessions indexes every live id of a user so that all
// of them can be invalidated at once. The id reaches the client only through
// the session cookie and is never part of the stored payload.
//
// # Architecture boundaries
//
// This package owns session persistence and the session cookie. It does not
// decide when a session is created or elevated; the engine does.
//
// # What this package must NOT do
//
//   - Trust a stored payload without validating it.
//   - Leave a cookie pointing at a session that was not written.
//   - Import credflow (no upward imports).
package session
