// Package transport defines the contract every execution transport adapter
// satisfies. Two implementations ship: local (in-process subagents) and
// remote (HTTP polling against an execution node). Future transports must
// preserve the same task-state semantics.
package transport

import (
	"context"
	"time"

	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// TaskRequest describes a unit of work handed to an adapter.
type TaskRequest struct {
	AgentRole   string
	Description string
	Context     map[string]interface{}
	SessionID   string
	Priority    int
	Metadata    map[string]interface{}
}

// TaskState is the adapter-level view of a task.
type TaskState struct {
	ID          string
	Status      v1.TaskStatus
	Description string
	AgentRole   string
	Output      *string
	Error       *string
	Progress    *int
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// AgentInfo describes an agent role an adapter can execute.
type AgentInfo struct {
	ID           string
	Name         string
	Description  string
	Capabilities []string
}

// SkillInfo describes a skill an adapter can execute.
type SkillInfo struct {
	ID          string
	Name        string
	Description string
	Dangerous   bool
}

// UpdateStream is a finite sequence of task states: one entry per observed
// change, ending after a terminal status. After the channel closes, Err
// reports whether the stream ended because of a transport failure.
type UpdateStream interface {
	Updates() <-chan TaskState
	Err() error
	Close()
}

// Adapter is the polymorphic execution surface. SubmitTask must return a
// pending task before execution begins; execution is always asynchronous.
type Adapter interface {
	SubmitTask(ctx context.Context, req TaskRequest) (*TaskState, error)
	StreamTaskUpdates(ctx context.Context, taskID string) (UpdateStream, error)
	// QueryTaskState returns nil for an unknown task; it does not error.
	QueryTaskState(ctx context.Context, taskID string) (*TaskState, error)
	CancelTask(ctx context.Context, taskID string) (bool, error)
	ListAgents(ctx context.Context) ([]AgentInfo, error)
	ListSkills(ctx context.Context) ([]SkillInfo, error)
	Close() error
}
