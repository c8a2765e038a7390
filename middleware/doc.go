// Package middleware adapts a credflow.Engine to net/http.
//
//   - [RequestContext] records the client IP and User-Agent on the request
//     context so engine flows can rate-limit and audit on them.
//   - [RateLimit] applies the engine's global per-IP window.
//   - [RequireSession] rejects requests without a live session and slides
//     the session lifetime on read-only requests.
//   - [Routes] redirects browsers between protected and public pages
//     depending on whether they carry a session.
//
// Authentication decisions are made by the engine; this package only
// translates them into HTTP responses.
package middleware
