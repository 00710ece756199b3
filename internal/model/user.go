// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// PasswordHash carries the `json:"-"` tag so it can never leak into a
// response, even if a handler serializes the model directly by mistake.
// Email is stored exactly as registered (trimmed, not lowercased), so
// uniqueness and lookups are case-sensitive.
type User struct {
	ID           string    `json:"id"         db:"id"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"hashed_password"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
