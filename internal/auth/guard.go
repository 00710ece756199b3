package auth

import "github.com/sakif/todo-api/internal/apperror"

// Identity is the verified caller, extracted from a valid token.
type Identity struct {
	Subject string // user ID
	Email   string
}

// Guard implements the only authorization rule of the API: a caller may
// touch a user-scoped resource only if the path's user ID is their own.
// There are no roles, scopes or admin overrides.
type Guard struct {
	tokens *TokenService
}

func NewGuard(tokens *TokenService) *Guard {
	return &Guard{tokens: tokens}
}

// Authenticate answers "who are you". Any token problem is
// apperror.Unauthenticated (401).
func (g *Guard) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperror.Unauthenticated("Not authenticated")
	}
	c, err := g.tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: c.Subject, Email: c.Email}, nil
}

// AuthorizeOwner answers "may you act here". A mismatch is
// apperror.Forbidden (403), never Unauthenticated.
func (g *Guard) AuthorizeOwner(id Identity, pathUserID string) error {
	if id.Subject == "" || id.Subject != pathUserID {
		return apperror.Forbidden("Not authorized to access this user's tasks")
	}
	return nil
}
