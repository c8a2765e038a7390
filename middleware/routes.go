package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/session"
)

// RouteConfig splits page routes into those that need a session and those
// that only make sense without one.
type RouteConfig struct {
	// Protected are path prefixes that require a session.
	Protected []string
	// Public are exact paths a signed-in browser is sent away from.
	Public        []string
	SignInPath    string
	DashboardPath string
}

// DefaultRouteConfig protects /dashboard and keeps signed-in browsers off
// the sign-in, sign-up and landing pages.
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		Protected:     []string{"/dashboard"},
		Public:        []string{"/signin", "/signup", "/"},
		SignInPath:    "/signin",
		DashboardPath: "/dashboard",
	}
}

// Routes redirects browsers without a session away from protected pages and
// browsers with one away from public pages. Other paths pass through
// untouched, without a session lookup.
func Routes(engine *credflow.Engine, cfg RouteConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			protected := cfg.protected(r.URL.Path)
			public := cfg.public(r.URL.Path)
			if !protected && !public {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := lookup(engine, w, r)
			if protected {
				if err != nil {
					deny(w, r, err, cfg.SignInPath)
					return
				}
				next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
				return
			}
			if err == nil {
				http.Redirect(w, r, cfg.DashboardPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (c RouteConfig) protected(path string) bool {
	for _, prefix := range c.Protected {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func (c RouteConfig) public(path string) bool {
	for _, p := range c.Public {
		if path == p {
			return true
		}
	}
	return false
}

func withSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}
