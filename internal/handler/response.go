package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/mailcampaign-sender/internal/errors"
	"github.com/unclebandit/mailcampaign-sender/internal/logx"
)

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.L().Warnw("response_encode_failed", "error", err)
	}
}

// WriteError writes {"success": false, "error": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	var transition *appErrors.ErrInvalidTransition
	switch {
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &transition):
		return http.StatusConflict
	case errors.Is(err, appErrors.ErrRunInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError maps err and writes it.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logx.L().Errorw("request_failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	WriteError(w, status, err.Error())
}
