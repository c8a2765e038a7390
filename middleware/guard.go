package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session attached by RequireSession or Routes.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// RequireSession answers 401 for API callers and redirects browsers to
// signInPath when the request carries no live session.
func RequireSession(engine *credflow.Engine, signInPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := lookup(engine, w, r)
			if err != nil {
				deny(w, r, err, signInPath)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
		})
	}
}

// lookup slides the session on read-only requests so that browsing keeps a
// session alive while mutations never extend it implicitly.
func lookup(engine *credflow.Engine, w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	jar := cookie.NewHTTPJar(w, r)
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return engine.RefreshSession(r.Context(), jar)
	}
	return engine.Authenticate(r.Context(), jar)
}

func deny(w http.ResponseWriter, r *http.Request, err error, signInPath string) {
	if !errors.Is(err, credflow.ErrUnauthenticated) {
		writeError(w, http.StatusInternalServerError, credflow.ErrUnexpected.Error())
		return
	}
	if wantsJSON(r) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	http.Redirect(w, r, signInPath, http.StatusFound)
}
