// Package events publishes task lifecycle notifications for downstream
// consumers (audit, analytics, notifications).
//
// Publishing is best effort. A broker outage must never fail or slow
// down the HTTP request that caused the event, so callers log publish
// errors and move on.
package events

import (
	"context"
	"time"

	"github.com/sakif/todo-api/internal/model"
)

// Type names a task lifecycle event; it doubles as the AMQP message type.
type Type string

const (
	TaskCreated Type = "task.created"
	TaskUpdated Type = "task.updated"
	TaskToggled Type = "task.toggled"
	TaskDeleted Type = "task.deleted"
)

// TaskEvent is the JSON payload of every message. It carries enough for
// a consumer to act without querying the database.
type TaskEvent struct {
	Type       Type      `json:"type"`
	TaskID     string    `json:"task_id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title,omitempty"`
	Completed  bool      `json:"completed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent snapshots task into an event of the given type.
func NewTaskEvent(typ Type, task *model.Task) TaskEvent {
	return TaskEvent{
		Type:       typ,
		TaskID:     task.ID,
		UserID:     task.UserID,
		Title:      task.Title,
		Completed:  task.Completed,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers task events. Publish must not wait on the broker;
// implementations queue the event and deliver it in the background.
type Publisher interface {
	Publish(ctx context.Context, event TaskEvent) error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, TaskEvent) error { return nil }
