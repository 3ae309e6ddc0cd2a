// Package models defines the task records tracked by the lifecycle engine.
package models

import (
	"time"

	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// Task is the unit of work tracked by the lifecycle state machine.
type Task struct {
	ID          string                 `json:"id"`
	Status      v1.TaskStatus          `json:"status"`
	Description string                 `json:"description"`
	AgentRole   string                 `json:"agent_role,omitempty"`
	SessionID   string                 `json:"session_id,omitempty"`
	ParentID    string                 `json:"parent_id,omitempty"`
	Output      *string                `json:"output,omitempty"`
	Error       *string                `json:"error,omitempty"`
	Progress    *int                   `json:"progress,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// TaskEvent is an append-only journal entry attached to a task.
type TaskEvent struct {
	TaskID    string                 `json:"task_id"`
	Kind      v1.TaskEventKind       `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	OldStatus *v1.TaskStatus         `json:"old_status,omitempty"`
	NewStatus *v1.TaskStatus         `json:"new_status,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Clone returns a deep copy of the task. Store reads hand out clones so
// callers can never mutate stored state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Output = copyString(t.Output)
	clone.Error = copyString(t.Error)
	clone.Progress = copyInt(t.Progress)
	clone.StartedAt = copyTime(t.StartedAt)
	clone.CompletedAt = copyTime(t.CompletedAt)
	clone.Metadata = copyMetadata(t.Metadata)
	return &clone
}

// Clone returns a deep copy of the event.
func (e *TaskEvent) Clone() *TaskEvent {
	if e == nil {
		return nil
	}
	clone := *e
	if e.OldStatus != nil {
		s := *e.OldStatus
		clone.OldStatus = &s
	}
	if e.NewStatus != nil {
		s := *e.NewStatus
		clone.NewStatus = &s
	}
	clone.Data = copyMetadata(e.Data)
	return &clone
}

// ToAPI converts the internal task to its wire representation.
func (t *Task) ToAPI() *v1.Task {
	clone := t.Clone()
	return &v1.Task{
		ID:          clone.ID,
		Status:      clone.Status,
		Description: clone.Description,
		AgentRole:   clone.AgentRole,
		SessionID:   clone.SessionID,
		ParentID:    clone.ParentID,
		Output:      clone.Output,
		Error:       clone.Error,
		Progress:    clone.Progress,
		Metadata:    clone.Metadata,
		CreatedAt:   clone.CreatedAt,
		StartedAt:   clone.StartedAt,
		CompletedAt: clone.CompletedAt,
	}
}

// ToAPI converts the internal event to its wire representation.
func (e *TaskEvent) ToAPI() *v1.TaskEvent {
	clone := e.Clone()
	return &v1.TaskEvent{
		TaskID:    clone.TaskID,
		Kind:      clone.Kind,
		Timestamp: clone.Timestamp,
		OldStatus: clone.OldStatus,
		NewStatus: clone.NewStatus,
		Data:      clone.Data,
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
