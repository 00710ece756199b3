// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, not concrete stores, so tests
// inject in-memory fakes and main wires the SQL implementation.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/sakif/todo-api/internal/apperror"
	"github.com/sakif/todo-api/internal/events"
	"github.com/sakif/todo-api/internal/metrics"
	"github.com/sakif/todo-api/internal/model"
	"github.com/sakif/todo-api/internal/repository"
)

const publishTimeout = 2 * time.Second

// TaskService handles business logic for owner-scoped tasks.
//
// ownerID on every method is the already-authorized user ID from the
// URL path. The service passes it straight to the store, which filters
// every query by it.
type TaskService struct {
	repo      repository.TaskRepository
	publisher events.Publisher
	logger    zerolog.Logger
}

// NewTaskService wires a TaskService. A nil publisher means events.Nop.
func NewTaskService(repo repository.TaskRepository, publisher events.Publisher, logger zerolog.Logger) *TaskService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &TaskService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// Create validates the title and stores a new, incomplete task.
func (s *TaskService) Create(ctx context.Context, ownerID, title string) (*model.Task, error) {
	title, err := validateTitle(title)
	if err != nil {
		return nil, err
	}

	task := &model.Task{UserID: ownerID, Title: title}
	if err := s.repo.Create(ctx, task); err != nil {
		s.logger.Error().Err(err).Str("user_id", ownerID).Msg("failed to create task")
		return nil, fmt.Errorf("creating task: %w", err)
	}

	metrics.TaskOperationsTotal.WithLabelValues("create").Inc()
	s.logger.Info().Str("user_id", ownerID).Str("task_id", task.ID).Msg("task created")
	s.publish(ctx, events.TaskCreated, task)
	return task, nil
}

// List returns the owner's tasks, newest first.
func (s *TaskService) List(ctx context.Context, ownerID string) ([]model.Task, error) {
	tasks, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// Get returns one task. Someone else's task is apperror.ErrNotFound.
func (s *TaskService) Get(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	task, err := s.repo.GetByID(ctx, ownerID, taskID)
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return task, nil
}

// Update applies a partial update; a supplied title is validated like
// on Create.
func (s *TaskService) Update(ctx context.Context, ownerID, taskID string, patch model.TaskPatch) (*model.Task, error) {
	if patch.Title != nil {
		title, err := validateTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}

	task, err := s.repo.Update(ctx, ownerID, taskID, patch)
	if err != nil {
		return nil, fmt.Errorf("updating task: %w", err)
	}

	if !patch.Empty() {
		metrics.TaskOperationsTotal.WithLabelValues("update").Inc()
		s.publish(ctx, events.TaskUpdated, task)
	}
	return task, nil
}

// ToggleCompletion flips the completed flag.
func (s *TaskService) ToggleCompletion(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	task, err := s.repo.ToggleCompletion(ctx, ownerID, taskID)
	if err != nil {
		return nil, fmt.Errorf("toggling task: %w", err)
	}

	metrics.TaskOperationsTotal.WithLabelValues("toggle").Inc()
	s.publish(ctx, events.TaskToggled, task)
	return task, nil
}

// Delete removes a task. Deleting a missing or foreign task is
// apperror.ErrNotFound.
func (s *TaskService) Delete(ctx context.Context, ownerID, taskID string) error {
	removed, err := s.repo.Delete(ctx, ownerID, taskID)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if !removed {
		return apperror.NotFound("task", taskID)
	}

	metrics.TaskOperationsTotal.WithLabelValues("delete").Inc()
	s.logger.Info().Str("user_id", ownerID).Str("task_id", taskID).Msg("task deleted")
	s.publish(ctx, events.TaskDeleted, &model.Task{ID: taskID, UserID: ownerID})
	return nil
}

// publish hands an event to the publisher without letting the broker
// affect the request. The request context may be cancelled as soon as
// the response is written, so the publish gets its own short deadline.
func (s *TaskService) publish(ctx context.Context, typ events.Type, task *model.Task) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, events.NewTaskEvent(typ, task)); err != nil {
		metrics.EventPublishFailuresTotal.WithLabelValues(string(typ)).Inc()
		s.logger.Warn().Err(err).Str("event", string(typ)).Str("task_id", task.ID).Msg("failed to publish task event")
	}
}

// validateTitle trims and checks a task title: 1 to MaxTitleLength
// characters after trimming.
func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.Invalid(apperror.FieldError{Field: "title", Message: "title is required", Type: "required"})
	}
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		return "", apperror.Invalid(apperror.FieldError{Field: "title",
			Message: fmt.Sprintf("title must be at most %d characters", model.MaxTitleLength), Type: "max"})
	}
	return title, nil
}
