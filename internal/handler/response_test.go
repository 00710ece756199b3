package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/todo-api/internal/apperror"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{"validation", apperror.ValidationFailed("title", "title is required"), http.StatusUnprocessableEntity, "Validation error"},
		{"conflict", apperror.Conflict("Email already registered"), http.StatusConflict, "Email already registered"},
		{"unauthenticated", apperror.Unauthenticated("Could not validate credentials"), http.StatusUnauthorized, "Could not validate credentials"},
		{"forbidden", apperror.Forbidden("Not authorized to access this user's tasks"), http.StatusForbidden, "Not authorized to access this user's tasks"},
		{"not found", apperror.NotFound("task", "abc"), http.StatusNotFound, "task not found with id abc"},
		{"wrapped not found", fmt.Errorf("getting task: %w", apperror.NotFound("task", "abc")), http.StatusNotFound, "task not found with id abc"},
		{"plain error", errors.New("pq: connection refused to 10.0.0.5"), http.StatusInternalServerError, "Internal server error"},
		{"app error without sentinel", &apperror.AppError{Message: "odd"}, http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantDetail, decodeError(t, rec).Detail)
		})
	}
}

func TestWriteError_UnauthenticatedSetsChallenge(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), apperror.Unauthenticated("Not authenticated"))
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), apperror.Forbidden("no"))
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestWriteError_ValidationDetails(t *testing.T) {
	err := apperror.Invalid(
		apperror.FieldError{Field: "email", Message: "email is required", Type: "required"},
		apperror.FieldError{Field: "password", Message: "password must be at least 8 characters", Type: "min"},
	)

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err)

	body := decodeError(t, rec)
	require.Len(t, body.Errors, 2)
	assert.Equal(t, "email", body.Errors[0].Field)
	assert.Equal(t, "required", body.Errors[0].Type)
	assert.Equal(t, "password", body.Errors[1].Field)
}

func TestWriteError_InternalNeverLeaks(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("SELECT * FROM users: disk I/O error"))

	assert.NotContains(t, rec.Body.String(), "SELECT")
	assert.NotContains(t, rec.Body.String(), "errors", "no field details on a 500")
}

// =========================================================================
// DECODE + VALIDATE
// =========================================================================

func TestDecodeJSON_Errors(t *testing.T) {
	type target struct {
		Title     string `json:"title"`
		Completed *bool  `json:"completed"`
	}

	tests := []struct {
		name      string
		body      string
		wantField string
		wantType  string
	}{
		{"empty body", "", "body", "missing"},
		{"truncated", `{"title":`, "body", "json_invalid"},
		{"syntax", `{title: "x"}`, "body", "json_invalid"},
		{"wrong type", `{"title": 42}`, "title", "type_error"},
		{"wrong nested type", `{"completed": "yes"}`, "completed", "type_error"},
		{"not an object", `[1,2]`, "body", "type_error"},
		{"too large", `{"title":"` + strings.Repeat("a", maxBodyBytes) + `"}`, "body", "too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst target
			err := decodeJSON(rec, req, &dst)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			details := appErr.Details()
			require.Len(t, details, 1)
			assert.Equal(t, tt.wantField, details[0].Field)
			assert.Equal(t, tt.wantType, details[0].Type)
		})
	}
}

func TestDecodeJSON_IgnoresUnknownFields(t *testing.T) {
	var dst createTaskRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x","user_id":"bob"}`))

	require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "x", dst.Title)
}

func TestRequestValidator_UsesJSONNames(t *testing.T) {
	v := newRequestValidator()

	err := v.Validate(registerRequest{Email: "not-an-email", Password: "short"})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)

	got := map[string]string{}
	for _, fe := range appErr.Details() {
		got[fe.Field] = fe.Type
	}
	assert.Equal(t, map[string]string{"email": "email", "password": "min"}, got)

	assert.NoError(t, v.Validate(registerRequest{Email: "a@b.co", Password: "password123"}))
}

func TestRequestValidator_OptionalTitle(t *testing.T) {
	v := newRequestValidator()
	empty := ""
	long := strings.Repeat("a", 256)
	ok := "fine"

	assert.NoError(t, v.Validate(updateTaskRequest{}), "absent title is allowed")
	assert.NoError(t, v.Validate(updateTaskRequest{Title: &ok}))
	assert.ErrorIs(t, v.Validate(updateTaskRequest{Title: &empty}), apperror.ErrValidation)
	assert.ErrorIs(t, v.Validate(updateTaskRequest{Title: &long}), apperror.ErrValidation)
}
