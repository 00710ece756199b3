package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/todo-api/internal/apperror"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// requestValidator wraps go-playground/validator and turns its errors
// into apperror field details keyed by JSON name, so a 422 body says
// "title", not "Title".
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{v: v}
}

// Validate returns nil or an apperror.ErrValidation listing every
// failing field.
func (rv *requestValidator) Validate(req any) error {
	err := rv.v.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("handler: validating request: %w", err)
	}

	fields := make([]apperror.FieldError, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, apperror.FieldError{
			Field:   fe.Field(),
			Message: fieldError(fe),
			Type:    fe.Tag(),
		})
	}
	return apperror.Invalid(fields...)
}

// fieldError converts a single ValidationError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// decodeJSON reads one JSON object into dst. Unknown fields are ignored,
// so a client-supplied owner such as "user_id" never reaches a handler.
// Malformed input is a validation error (422), not a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var (
		syntaxErr  *json.SyntaxError
		typeErr    *json.UnmarshalTypeError
		maxSizeErr *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return apperror.Invalid(apperror.FieldError{Field: "body", Message: "request body is required", Type: "missing"})
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return apperror.Invalid(apperror.FieldError{Field: field,
			Message: fmt.Sprintf("%s must be of type %s", field, typeErr.Type), Type: "type_error"})
	case errors.As(err, &maxSizeErr):
		return apperror.Invalid(apperror.FieldError{Field: "body",
			Message: fmt.Sprintf("request body must be at most %d bytes", maxSizeErr.Limit), Type: "too_large"})
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperror.Invalid(apperror.FieldError{Field: "body", Message: "request body is not valid JSON", Type: "json_invalid"})
	default:
		return apperror.Invalid(apperror.FieldError{Field: "body", Message: err.Error(), Type: "json_invalid"})
	}
}
