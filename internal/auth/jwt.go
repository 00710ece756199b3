// Package auth provides identity for the todo API: JWT issue/verify,
// bcrypt password hashing and the access guard that protects
// user-scoped routes.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client registers or logs in with email + password
//  2. Server verifies the password hash and issues a signed JWT
//  3. Client sends it back as "Authorization: Bearer <token>"
//  4. RequireAuth verifies the token and stores an Identity in the context
//  5. RequireOwner compares Identity.Subject with the {userId} in the path
//
// Tokens are stateless: nothing is stored server-side, so there is no
// revocation. Expiry is the only way a token stops working.
//
// JWT STRUCTURE (three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:  {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<user id>","email":"a@b.c","iat":1700000000,"exp":1700086400}
//	- Signature: HMAC(header+"."+payload, secret)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/todo-api/internal/apperror"
)

const (
	// DefaultTTL is the access token lifetime when Options.TTL is zero.
	DefaultTTL = 24 * time.Hour

	minSecretLength = 16

	// invalidTokenMessage is the only message a caller ever sees for a bad
	// token. Expired, tampered and garbage tokens must look identical.
	invalidTokenMessage = "Could not validate credentials"
)

// signingMethods maps supported algorithm names to HMAC signers.
var signingMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// Options configures a TokenService.
type Options struct {
	Secret    string
	Algorithm string        // HS256 (default), HS384 or HS512
	TTL       time.Duration // DefaultTTL when zero
}

// TokenService handles JWT creation and validation.
//
// It is safe for concurrent use: all fields are set once in
// NewTokenService and only read afterwards.
type TokenService struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService validates opts and builds a TokenService.
// Example secret: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(opts Options) (*TokenService, error) {
	if len(opts.Secret) < minSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLength)
	}

	alg := opts.Algorithm
	if alg == "" {
		alg = "HS256"
	}
	method, ok := signingMethods[alg]
	if !ok {
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", alg)
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < 0 {
		return nil, errors.New("auth: token TTL must be positive")
	}

	return &TokenService{
		secret: []byte(opts.Secret),
		method: method,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Claims is the JWT payload: the registered sub/iat/exp plus the email.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issue signs a token for the given user, valid for the configured TTL.
func (s *TokenService) Issue(userID, email string) (string, error) {
	return s.issueAt(userID, email, s.now(), s.ttl)
}

// issueAt is Issue with an explicit clock and lifetime. Tests use a
// negative lifetime to mint already-expired tokens.
func (s *TokenService) issueAt(userID, email string, now time.Time, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue token without a subject")
	}

	c := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and checks a token string and returns its claims.
//
// VALIDATION CHECKS:
//   - Signature matches (not tampered, same secret)
//   - "alg" is exactly the configured algorithm (no "none", no downgrade)
//   - "exp" is present and in the future
//   - "sub" is non-empty
//
// Every failure returns the same apperror.Unauthenticated so callers
// cannot tell an expired token from a forged one.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, invalidToken()
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Subject == "" {
		return nil, invalidToken()
	}
	return c, nil
}

// Algorithm reports the configured signing algorithm name.
func (s *TokenService) Algorithm() string {
	return s.method.Alg()
}

func invalidToken() error {
	return apperror.Unauthenticated(invalidTokenMessage)
}
