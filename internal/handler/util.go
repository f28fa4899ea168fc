// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/flowchat/internal/middleware"
	"github.com/capitalize-ai/flowchat/internal/service"
	"github.com/capitalize-ai/flowchat/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error, conflictStatus int) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return conflictStatus
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err as {"error": ...}. Server errors are logged
// with their cause; the response only carries the public message.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error, fallback string) {
	status := statusFor(err, http.StatusConflict)
	if status == http.StatusInternalServerError {
		log.WithRequest(middleware.GetCorrelationID(r.Context()), pathParam(r, "userEmail")).
			Error(fallback, zap.Error(err))
	}
	writeError(w, status, service.PublicMessage(err, fallback))
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// pathParam returns an unescaped chi URL parameter. Emails are commonly
// sent with "@" percent-encoded.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
