package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-registry/pkg/registry"
	"github.com/tendant/simple-registry/pkg/registry/auth"
)

// Reasons written in the npm {error, reason} body
const (
	ReasonUnauthorized = "[unauthorized] Login first"
	ReasonNoPerms      = "[no_perms] Only administrators can unpublish module"
	ReasonNotFound     = "[not_found] document not found"
)

// ErrorResponse is the npm error body. Both fields carry the same text.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// OKResponse acknowledges a write
type OKResponse struct {
	OK bool `json:"ok"`
}

func respondError(w http.ResponseWriter, r *http.Request, status int, reason string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: reason, Reason: reason})
}

// errorStatus classifies err into a status code and reason.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		return http.StatusUnauthorized, ReasonUnauthorized
	case errors.Is(err, auth.ErrBadCredentials):
		return http.StatusUnauthorized, "[unauthorized] " + err.Error()
	case errors.Is(err, registry.ErrForbidden):
		return http.StatusForbidden, ReasonNoPerms
	case errors.Is(err, registry.ErrPackageNotFound):
		return http.StatusNotFound, ReasonNotFound
	case errors.Is(err, registry.ErrInvalidPackage):
		return http.StatusBadRequest, "[invalid_param] " + err.Error()
	default:
		return http.StatusInternalServerError, "[server_error] " + err.Error()
	}
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, reason := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondError(w, r, status, reason)
}

func invalidParam(format string, args ...any) string {
	return "[invalid_param] " + fmt.Sprintf(format, args...)
}
