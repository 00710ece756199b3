// Package repository declares the storage contracts the services depend
// on. Implementations live in subpackages (see repository/sqlstore).
package repository

import (
	"context"

	"github.com/sakif/todo-api/internal/model"
)

// UserRepository is the credential store.
type UserRepository interface {
	// Create fills in ID and timestamps and inserts the user. A duplicate
	// email yields apperror.ErrConflict, decided by the storage UNIQUE
	// constraint rather than a prior lookup.
	Create(ctx context.Context, user *model.User) error
	// GetByEmail and GetByID return apperror.ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// TaskRepository is the owner-scoped task store.
//
// ownerID is always supplied by the caller from the authorized path,
// never from a request body. A task owned by someone else behaves
// exactly like a task that does not exist: apperror.ErrNotFound.
type TaskRepository interface {
	Create(ctx context.Context, task *model.Task) error
	// ListByOwner returns newest first, and an empty (non-nil) slice
	// when the owner has no tasks.
	ListByOwner(ctx context.Context, ownerID string) ([]model.Task, error)
	GetByID(ctx context.Context, ownerID, taskID string) (*model.Task, error)
	Update(ctx context.Context, ownerID, taskID string, patch model.TaskPatch) (*model.Task, error)
	ToggleCompletion(ctx context.Context, ownerID, taskID string) (*model.Task, error)
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, ownerID, taskID string) (bool, error)
}

// Pinger is implemented by stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
