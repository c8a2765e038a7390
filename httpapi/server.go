package httpapi

import (
	"net/http"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/middleware"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// Options tunes the handler returned by New.
type Options struct {
	// Metrics, when set, is mounted at GET /metrics outside the rate limit.
	Metrics http.Handler
	// Pages handles every path the API does not, typically the UI. Page
	// routes are wrapped with middleware.Routes.
	Pages      http.Handler
	Routes     middleware.RouteConfig
	TrustProxy bool
	Log        logrus.FieldLogger
}

type api struct {
	engine *credflow.Engine
	log    logrus.FieldLogger
}

// New returns the HTTP surface for engine.
func New(engine *credflow.Engine, opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Routes.SignInPath == "" {
		opts.Routes = middleware.DefaultRouteConfig()
	}
	a := &api{engine: engine, log: opts.Log}

	router := httprouter.New()
	router.HandleMethodNotAllowed = true
	router.PanicHandler = a.recoverPanic

	router.POST("/api/signin", a.signIn)
	router.POST("/api/signup", a.signUp)
	router.POST("/api/signout", a.signOut)

	router.GET("/api/email-verification", a.pendingEmail)
	router.POST("/api/email-verification", a.verifyEmail)
	router.POST("/api/email-verification/resend", a.resendEmailVerification)

	router.POST("/api/password-reset", a.requestPasswordReset)
	router.POST("/api/password-reset/:token", a.resetPassword)

	router.POST("/api/two-factor", a.verifyTwoFactor)
	router.POST("/api/two-factor/send", a.sendTwoFactor)

	authed := func(h httprouter.Handle) httprouter.Handle {
		return a.requireSession(opts.Routes.SignInPath, h)
	}
	router.GET("/api/me", authed(a.currentUser))
	router.GET("/api/me/sessions", authed(a.activeSessions))
	router.PUT("/api/me/name", authed(a.updateName))
	router.PUT("/api/me/role", authed(a.updateRole))
	router.PUT("/api/me/password", authed(a.changePassword))
	router.POST("/api/me/two-factor", authed(a.enableTwoFactor))
	router.DELETE("/api/me/two-factor", authed(a.disableTwoFactor))
	router.DELETE("/api/me/providers/:provider", authed(a.disconnectProvider))
	router.POST("/api/me/delete-code", authed(a.sendDeleteAccountCode))
	router.DELETE("/api/me", authed(a.deleteAccount))

	router.GET("/api/providers", a.providers)
	router.GET("/oauth/:provider", a.startOAuth)
	router.GET("/api/oauth/:provider", a.completeOAuth)

	if opts.Pages != nil {
		router.NotFound = middleware.Routes(engine, opts.Routes)(opts.Pages)
	}

	limited := middleware.RateLimit(engine)(router)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.health)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	mux.Handle("/", limited)
	return middleware.RequestContext(opts.TrustProxy)(mux)
}

// requireSession adapts middleware.RequireSession to httprouter handles.
func (a *api) requireSession(signInPath string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { h(w, r, ps) })
		middleware.RequireSession(a.engine, signInPath)(next).ServeHTTP(w, r)
	}
}

func (a *api) recoverPanic(w http.ResponseWriter, r *http.Request, v any) {
	a.log.WithFields(logrus.Fields{
		"path":  r.URL.Path,
		"panic": v,
	}).Error("handler panicked")
	writeError(w, credflow.ErrUnexpected)
}
