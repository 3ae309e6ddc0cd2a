package transport

import (
	"context"

	"github.com/google/uuid"
)

// SpawnStatus is the collaborator's verdict on a spawn request.
type SpawnStatus string

const (
	SpawnAccepted SpawnStatus = "accepted"
	SpawnRejected SpawnStatus = "rejected"
)

// SpawnRequest asks the subagent collaborator to start an agent.
type SpawnRequest struct {
	Task     string
	Label    string
	AgentID  string
	Model    string
	Thinking string
}

// SpawnResult is returned by the collaborator.
type SpawnResult struct {
	Status          SpawnStatus
	ChildSessionKey string
	Error           string
}

// Spawner is the subagent-spawn collaborator used by the local transport and
// the orchestrator. Implementations must be callable re-entrantly.
type Spawner interface {
	SpawnSubagent(ctx context.Context, req SpawnRequest) (*SpawnResult, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(ctx context.Context, req SpawnRequest) (*SpawnResult, error)

// SpawnSubagent calls f.
func (f SpawnerFunc) SpawnSubagent(ctx context.Context, req SpawnRequest) (*SpawnResult, error) {
	return f(ctx, req)
}

// AcceptAllSpawner is a placeholder collaborator that accepts every spawn
// request with a fresh child session key. Used when no real subagent
// integration is wired in.
type AcceptAllSpawner struct{}

// SpawnSubagent accepts the request.
func (AcceptAllSpawner) SpawnSubagent(ctx context.Context, req SpawnRequest) (*SpawnResult, error) {
	return &SpawnResult{
		Status:          SpawnAccepted,
		ChildSessionKey: uuid.New().String(),
	}, nil
}
