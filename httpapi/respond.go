package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/credflow"
)

type errorBody struct {
	Error       string `json:"error"`
	Requires2FA bool   `json:"requires2FA,omitempty"`
}

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 16

func statusOf(kind credflow.ErrorKind) int {
	switch kind {
	case credflow.KindValidation, credflow.KindNotFoundOrInvalid:
		return http.StatusBadRequest
	case credflow.KindExpired:
		return http.StatusGone
	case credflow.KindRateLimited:
		return http.StatusTooManyRequests
	case credflow.KindAuthenticationRequired:
		return http.StatusUnauthorized
	case credflow.KindStepUpRequired:
		return http.StatusForbidden
	case credflow.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError renders err. Anything that is not an engine error is reported
// with the generic unexpected message.
func writeError(w http.ResponseWriter, err error) {
	var e *credflow.Error
	if !errors.As(err, &e) {
		e = credflow.ErrUnexpected
	}
	writeJSON(w, statusOf(e.Kind), errorBody{
		Error:       e.Error(),
		Requires2FA: e.Kind == credflow.KindStepUpRequired,
	})
}

func writeOutcome(w http.ResponseWriter, out credflow.Outcome) {
	writeJSON(w, http.StatusOK, out)
}

// decode reads a JSON body into v. Malformed bodies are validation errors.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return credflow.ErrInvalidInput
	}
	return nil
}
