package httpapi

import (
	"net/http"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/julienschmidt/httprouter"
)

func (a *api) currentUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, err := a.engine.CurrentUser(r.Context(), cookie.NewHTTPJar(w, r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) updateName(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	p, err := a.engine.UpdateName(r.Context(), cookie.NewHTTPJar(w, r), body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) updateRole(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Role account.Role `json:"role"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	p, err := a.engine.UpdateRole(r.Context(), cookie.NewHTTPJar(w, r), body.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) changePassword(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body passwordBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := a.engine.ChangePassword(r.Context(), cookie.NewHTTPJar(w, r), body.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) enableTwoFactor(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := a.engine.EnableTwoFactor(r.Context(), cookie.NewHTTPJar(w, r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) disableTwoFactor(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := a.engine.DisableTwoFactor(r.Context(), cookie.NewHTTPJar(w, r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) disconnectProvider(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := a.engine.DisconnectProvider(r.Context(), cookie.NewHTTPJar(w, r), ps.ByName("provider")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) sendDeleteAccountCode(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := a.engine.SendDeleteAccountCode(r.Context(), cookie.NewHTTPJar(w, r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) deleteAccount(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body codeBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, credflow.ErrInvalidCode)
		return
	}
	out, err := a.engine.DeleteAccount(r.Context(), cookie.NewHTTPJar(w, r), body.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (a *api) activeSessions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	list, err := a.engine.ActiveSessions(r.Context(), cookie.NewHTTPJar(w, r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	h := a.engine.Health(r.Context())
	status := http.StatusOK
	if !h.RedisAvailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}
