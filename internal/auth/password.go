// Package auth: password hashing utilities.
//
// WHY BCRYPT?
// bcrypt is deliberately slow, salts every hash and stores the salt and
// cost inside the output string, so one column holds everything:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version
package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/todo-api/internal/apperror"
)

// DefaultCost is the production bcrypt work factor (~250ms per hash).
const DefaultCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer input would be
// silently truncated, so Hash rejects it instead.
const MaxPasswordBytes = 72

// PasswordService provides bcrypt hashing and verification.
//
// It is a struct (not free functions) so the cost can be injected:
// tests use bcrypt.MinCost (4) to stay fast.
type PasswordService struct {
	cost int

	// dummy is a hash of a random-looking string at the same cost, used
	// by Mismatch so unknown-email logins take as long as real ones.
	dummyOnce sync.Once
	dummy     []byte
}

// NewPasswordService creates a PasswordService with the given cost.
// Zero means DefaultCost.
func NewPasswordService(cost int) (*PasswordService, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PasswordService{cost: cost}, nil
}

// Hash hashes the given plaintext password with bcrypt.
// Input longer than MaxPasswordBytes is a validation error on "password".
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", MaxPasswordBytes))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// Verify checks whether a plaintext password matches a stored bcrypt hash.
// bcrypt's comparison is constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// Mismatch burns one bcrypt comparison against a throwaway hash and
// always returns ErrPasswordMismatch. Login calls it when the email is
// unknown so response time does not reveal which accounts exist.
func (p *PasswordService) Mismatch(plaintext string) error {
	p.dummyOnce.Do(func() {
		p.dummy, _ = bcrypt.GenerateFromPassword([]byte("no-such-user-placeholder"), p.cost)
	})
	_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(plaintext))
	return ErrPasswordMismatch
}
