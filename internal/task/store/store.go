// Package store provides persistence for task records and their event
// journals. The default implementation is in-memory; a SQLite backend
// satisfies the same interface for durable deployments.
package store

import (
	"context"

	"github.com/coderclaw/coderclaw/internal/task/models"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// Filter narrows a List call. Zero-value fields are ignored; when both are
// set the filter is a conjunction.
type Filter struct {
	Status    v1.TaskStatus
	SessionID string
}

// Matches reports whether the task satisfies the filter.
func (f Filter) Matches(t *models.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.SessionID != "" && t.SessionID != f.SessionID {
		return false
	}
	return true
}

// Store defines the interface for task storage operations. All reads return
// deep copies; mutating a returned value never mutates stored state. Load and
// GetEvents return nil (not an error) for an unknown id. Storage I/O failures
// surface as a STORAGE_UNAVAILABLE AppError.
type Store interface {
	Save(ctx context.Context, task *models.Task) error
	Load(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context, filter Filter) ([]*models.Task, error)
	// Delete removes the task record and its event journal atomically.
	Delete(ctx context.Context, id string) error

	SaveEvent(ctx context.Context, event *models.TaskEvent) error
	GetEvents(ctx context.Context, taskID string) ([]*models.TaskEvent, error)

	// Close closes the store (for database connections).
	Close() error
}
