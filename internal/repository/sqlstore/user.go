package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/todo-api/internal/apperror"
	"github.com/sakif/todo-api/internal/model"
	"github.com/sakif/todo-api/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the credential store backed by the users table.
type UserDB struct {
	db *DB
}

// Users returns the user repository over this pool.
func (db *DB) Users() *UserDB {
	return &UserDB{db: db}
}

const userColumns = `id, email, hashed_password, created_at, updated_at`

// Create inserts a new user.
//
// There is deliberately no "SELECT ... WHERE email = ?" first: two
// concurrent registrations would both pass such a check. The UNIQUE
// constraint on email decides, and its violation becomes
// apperror.Conflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	ts := now()
	user.ID = xid.New().String()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	_, err := u.db.conn.ExecContext(ctx,
		u.db.dialect.rebind(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`),
		user.ID,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if u.db.dialect.isUniqueViolation(err) {
			return apperror.Conflict("Email already registered")
		}
		return fmt.Errorf("sqlstore: inserting user: %w", err)
	}
	return nil
}

// GetByEmail looks a user up by exact (case-sensitive) email.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := u.get(ctx, `email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		// The email stays out of the message; messages end up in logs.
		return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "user not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting user by email: %w", err)
	}
	return user, nil
}

// GetByID looks a user up by internal ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := u.get(ctx, `id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting user %s: %w", id, err)
	}
	return user, nil
}

func (u *UserDB) get(ctx context.Context, where string, arg any) (*model.User, error) {
	var user model.User
	err := u.db.conn.QueryRowContext(ctx,
		u.db.dialect.rebind(`SELECT `+userColumns+` FROM users WHERE `+where),
		arg,
	).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
