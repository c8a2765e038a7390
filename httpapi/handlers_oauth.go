package httpapi

import (
	"net/http"

	"github.com/MrEthical07/credflow/cookie"
	"github.com/julienschmidt/httprouter"
)

func (a *api) providers(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": a.engine.Providers()})
}

func (a *api) startOAuth(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	target, err := a.engine.StartOAuth(cookie.NewHTTPJar(w, r), ps.ByName("provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// completeOAuth is the provider redirect target. Every failure is the same
// opaque 500 so that callers cannot probe why a callback was refused.
func (a *api) completeOAuth(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	q := r.URL.Query()
	out, err := a.engine.CompleteOAuth(r.Context(), cookie.NewHTTPJar(w, r), ps.ByName("provider"), q.Get("state"), q.Get("code"))
	if err != nil {
		http.Error(w, "something went wrong", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, string(out.Redirect), http.StatusFound)
}
