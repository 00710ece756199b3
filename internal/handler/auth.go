package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/sakif/todo-api/internal/auth"
	"github.com/sakif/todo-api/internal/model"
	"github.com/sakif/todo-api/internal/service"
)

// AuthHandler serves the /api/auth endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account, respond with a token (201)
//   - HandleLogin    → check credentials, respond with a token
//   - HandleMe       → return the caller's profile (RequireAuth)
//   - HandleLogout   → acknowledge; tokens are stateless, so the client
//     simply forgets its token
type AuthHandler struct {
	auth     *service.AuthService
	validate *requestValidator
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		auth:     authService,
		validate: newRequestValidator(),
	}
}

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// loginRequest only checks presence: a short password at login is just
// a wrong password.
type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

// userResponse is the public view of a user. The hash never leaves
// the service layer.
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	User      userResponse `json:"user"`
}

type logoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

func newTokenResponse(res *service.AuthResult) tokenResponse {
	return tokenResponse{
		Token:     res.Token,
		TokenType: "bearer",
		User:      newUserResponse(res.User),
	}
}

// HandleRegister creates a user.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"email": "alice@example.com", "password": "password123"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Validate(req); err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, newTokenResponse(res))
}

// HandleLogin exchanges credentials for a token.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Validate(req); err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, newTokenResponse(res))
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/auth/me
// Auth: Required (RequireAuth stores the Identity in the context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, r, errNotAuthenticated)
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, newUserResponse(user))
}

// HandleLogout acknowledges a logout.
//
// HTTP: POST /api/auth/logout
//
// Nothing is stored server-side, so there is nothing to revoke; the
// token stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, logoutResponse{Success: true, Message: "Logged out successfully"})
}
