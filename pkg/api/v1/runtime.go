package v1

// Wire types for the runtime execution protocol. Both sides of the remote
// transport share the seven-status vocabulary defined in task.go.

// SubmitTaskRequest is the body of POST /api/runtime/tasks/submit.
type SubmitTaskRequest struct {
	AgentType string                 `json:"agent_type"`
	Prompt    string                 `json:"prompt"`
	Context   map[string]interface{} `json:"context,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

// TaskStateResponse is returned by submit and state queries.
type TaskStateResponse struct {
	TaskID        string                 `json:"task_id"`
	ExecutionUUID string                 `json:"execution_uuid"`
	State         TaskStatus             `json:"state"`
	Success       bool                   `json:"success"`
	Result        *string                `json:"result,omitempty"`
	Error         *string                `json:"error,omitempty"`
	ExecutionTime *float64               `json:"execution_time,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// CancelTaskRequest is the body of POST /api/runtime/tasks/{id}/cancel.
type CancelTaskRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// CancelTaskResponse reports whether the cancellation took effect.
type CancelTaskResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
}

// SessionResponse is returned by POST /api/runtime/sessions.
type SessionResponse struct {
	SessionID    string   `json:"session_id"`
	UserID       string   `json:"user_id,omitempty"`
	CreatedAt    string   `json:"created_at"`
	LastActivity string   `json:"last_activity"`
	Permissions  []string `json:"permissions"`
}

// AgentResponse describes an agent role available on a runtime.
type AgentResponse struct {
	AgentType    string   `json:"agent_type"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// SkillResponse describes a skill available on a runtime.
type SkillResponse struct {
	SkillID     string `json:"skill_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Dangerous   bool   `json:"dangerous,omitempty"`
}

// RuntimeStatus is returned by GET /health.
type RuntimeStatus struct {
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveTasks   int    `json:"active_tasks"`
	TotalTasks    int64  `json:"total_tasks"`
	Mode          string `json:"mode"`
	Healthy       bool   `json:"healthy"`
}
