package httpapi

import (
	"net/http"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/julienschmidt/httprouter"
)

type codeBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type passwordBody struct {
	Password string `json:"password"`
}

func (a *api) signIn(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in credflow.SignInInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, credflow.ErrInvalidCredentials)
		return
	}
	out, err := a.engine.SignIn(r.Context(), cookie.NewHTTPJar(w, r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (a *api) signUp(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in credflow.SignUpInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	out, err := a.engine.SignUp(r.Context(), cookie.NewHTTPJar(w, r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (a *api) signOut(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	out, err := a.engine.SignOut(r.Context(), cookie.NewHTTPJar(w, r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (a *api) pendingEmail(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	email, out := a.engine.PendingVerificationEmail(cookie.NewHTTPJar(w, r))
	writeJSON(w, http.StatusOK, struct {
		Email    string            `json:"email,omitempty"`
		Redirect credflow.Redirect `json:"redirect,omitempty"`
	}{email, out.Redirect})
}

// verifyEmail takes the address from the body, falling back to the
// pending-verification cookie set at sign-up.
func (a *api) verifyEmail(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body codeBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, credflow.ErrInvalidCode)
		return
	}
	jar := cookie.NewHTTPJar(w, r)
	if body.Email == "" {
		email, out := a.engine.PendingVerificationEmail(jar)
		if email == "" {
			writeOutcome(w, out)
			return
		}
		body.Email = email
	}
	out, err := a.engine.VerifyEmail(r.Context(), jar, credflow.VerifyEmailInput{Email: body.Email, Code: body.Code})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (a *api) resendEmailVerification(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	out, err := a.engine.ResendEmailVerification(r.Context(), cookie.NewHTTPJar(w, r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (a *api) requestPasswordReset(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := a.engine.RequestPasswordReset(r.Context(), body.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body passwordBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, credflow.ErrInvalidResetRequest)
		return
	}
	out, err := a.engine.ResetPassword(r.Context(), cookie.NewHTTPJar(w, r), credflow.ResetPasswordInput{
		Token:    ps.ByName("token"),
		Password: body.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (a *api) verifyTwoFactor(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body codeBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, credflow.ErrInvalidCode)
		return
	}
	out, err := a.engine.VerifyTwoFactor(r.Context(), cookie.NewHTTPJar(w, r), body.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (a *api) sendTwoFactor(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := a.engine.SendTwoFactor(r.Context(), cookie.NewHTTPJar(w, r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
