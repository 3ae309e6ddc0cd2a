package v1

import "time"

// TaskStatus represents the lifecycle state of a task. The seven status
// strings are part of the wire and CLI surface and must not change.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusPlanning  TaskStatus = "planning"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusWaiting   TaskStatus = "waiting"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is one of the three terminal states.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// IsValid reports whether s is one of the seven known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusPlanning, TaskStatusRunning, TaskStatusWaiting,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// TaskEventKind identifies an entry in a task's event journal.
type TaskEventKind string

const (
	TaskEventCreated         TaskEventKind = "created"
	TaskEventStatusChanged   TaskEventKind = "status_changed"
	TaskEventProgressUpdated TaskEventKind = "progress_updated"
	TaskEventOutputAdded     TaskEventKind = "output_added"
	TaskEventErrorSet        TaskEventKind = "error_set"
)

// WorkflowStatus represents the aggregate state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// Task is the wire representation of a tracked task.
type Task struct {
	ID          string                 `json:"id"`
	Status      TaskStatus             `json:"status"`
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

// TaskEvent is the wire representation of a journal entry.
type TaskEvent struct {
	TaskID    string                 `json:"task_id"`
	Kind      TaskEventKind          `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	OldStatus *TaskStatus            `json:"old_status,omitempty"`
	NewStatus *TaskStatus            `json:"new_status,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
