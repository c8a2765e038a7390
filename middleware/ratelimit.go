package middleware

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/credflow"
)

// RateLimit rejects callers that exceed the engine's global per-IP window
// with 429. Limiter failures answer 500 rather than letting traffic through.
func RateLimit(engine *credflow.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := engine.AllowRequest(r.Context(), credflow.ClientIPFromContext(r.Context()))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, credflow.ErrRateLimited):
				w.Header().Set("Retry-After", "10")
				writeError(w, http.StatusTooManyRequests, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, credflow.ErrUnexpected.Error())
			}
		})
	}
}
