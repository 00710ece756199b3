package handler

// RESPONSE HELPERS:
// Every handler writes through writeJSON and WriteError so the API has
// exactly one success shape (the resource itself) and one error shape:
//
//	{"detail": "Task not found with id abc123"}
//
// Validation failures add per-field details:
//
//	{"detail": "Validation error",
//	 "errors": [{"field": "title", "message": "title is required", "type": "required"}]}

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sakif/todo-api/internal/apperror"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string                `json:"detail"`
	Errors []apperror.FieldError `json:"errors,omitempty"`
}

const (
	validationDetail = "Validation error"
	internalDetail   = "Internal server error"
)

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; anything set after is dropped.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode JSON response")
		}
	}
}

// WriteError maps a domain error to its HTTP status and writes the
// standard error body. It satisfies auth.ErrorWriter so the auth
// middlewares render 401/403 the same way handlers do.
//
// errors.Is walks the whole chain, so a service error such as
//
//	fmt.Errorf("getting task: %w", apperror.NotFound("task", id))
//
// still maps to 404 and still shows the AppError's own message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Never expose internals: the raw error may carry SQL or file paths.
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("unhandled error")
		writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Detail: internalDetail})
		return
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		writeJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{
			Detail: validationDetail,
			Errors: appErr.Details(),
		})
	case errors.Is(err, apperror.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, r, http.StatusUnauthorized, ErrorResponse{Detail: appErr.Message})
	case errors.Is(err, apperror.ErrForbidden):
		writeJSON(w, r, http.StatusForbidden, ErrorResponse{Detail: appErr.Message})
	case errors.Is(err, apperror.ErrNotFound):
		writeJSON(w, r, http.StatusNotFound, ErrorResponse{Detail: appErr.Message})
	case errors.Is(err, apperror.ErrConflict):
		writeJSON(w, r, http.StatusConflict, ErrorResponse{Detail: appErr.Message})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unclassified application error")
		writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Detail: internalDetail})
	}
}
