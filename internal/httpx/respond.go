// Package httpx holds the HTTP plumbing shared by the player, playlist and
// realtime routers: JSON responses, error mapping, identity and logging
// middleware.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"musicroom/internal/apperr"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// StatusOf maps an error to its HTTP status. Errors without an apperr code
// are internal.
func StatusOf(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeOutOfRange, apperr.CodeInvalidRange, apperr.CodeInvalid:
		return http.StatusBadRequest
	case apperr.CodeCapacityExceeded:
		return http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeEmptyContext, apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError writes err as a JSON error body. Internal errors are logged
// and replaced by a generic message.
func WriteAppError(w http.ResponseWriter, log zerolog.Logger, r *http.Request, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("http: internal error")
		WriteError(w, status, "internal error")
		return
	}
	code := apperr.CodeOf(err)
	if code == apperr.CodeConflict {
		w.Header().Set("Retry-After", "1")
	}
	WriteJSON(w, status, map[string]string{"error": err.Error(), "code": string(code)})
}

// DecodeJSON reads a JSON body into v, rejecting unknown garbage as Invalid.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.CodeInvalid, "invalid json body")
	}
	return nil
}
