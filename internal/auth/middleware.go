package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// contextKey is unexported so no other package can read or shadow the
// identity stored by RequireAuth.
type contextKey string

const identityKey contextKey = "identity"

// ErrorWriter renders an error response. The handler package supplies
// one so that 401/403 bodies share the API's JSON error format.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireAuth is a middleware that enforces authentication.
//
// It reads "Authorization: Bearer <token>", verifies it through the
// guard and stores the Identity in the request context. Anything wrong
// with the header or token stops the chain with a 401.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(guard *Guard, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := guard.Authenticate(BearerToken(r))
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireOwner must run after RequireAuth, inside a chi route that
// declares the {param} URL parameter (e.g. "/users/{userId}").
// It rejects with 403 when the identity does not own that path.
func RequireOwner(guard *Guard, param string, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFromContext(r.Context())
			if err := guard.AuthorizeOwner(id, chi.URLParam(r, param)); err != nil {
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the caller stored by RequireAuth.
// Returns false on routes that are not behind RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.Subject != ""
}

// BearerToken extracts the token from the Authorization header.
// The scheme match is case-insensitive; an empty string means absent
// or malformed.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
