// Package runtime provides the facade over a transport adapter: the single
// front door callers use to submit, query, stream and cancel tasks.
package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/task/models"
	"github.com/coderclaw/coderclaw/internal/task/store"
	"github.com/coderclaw/coderclaw/internal/transport"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// Version reported by GetStatus.
const Version = "0.3.0"

// Mode tags the deployment shape of the runtime.
type Mode string

const (
	ModeLocalOnly          Mode = "local-only"
	ModeRemoteEnabled      Mode = "remote-enabled"
	ModeDistributedCluster Mode = "distributed-cluster"
)

// TaskLister exposes task listing for status reporting. The engine satisfies
// it in local deployments; remote deployments may leave it nil.
type TaskLister interface {
	List(ctx context.Context, filter store.Filter) ([]*models.Task, error)
}

// Runtime wraps one transport adapter with counters and health reporting.
type Runtime struct {
	adapter   transport.Adapter
	mode      Mode
	tasks     TaskLister
	logger    *logger.Logger
	startTime time.Time

	totalTasks atomic.Int64

	mu     sync.Mutex
	closed bool
}

// New creates a runtime facade over the adapter. tasks may be nil when no
// local task store backs the adapter.
func New(adapter transport.Adapter, mode Mode, tasks TaskLister, log *logger.Logger) *Runtime {
	return &Runtime{
		adapter:   adapter,
		mode:      mode,
		tasks:     tasks,
		logger:    log.WithFields(zap.String("component", "runtime")),
		startTime: time.Now(),
	}
}

// Mode returns the deployment mode tag.
func (r *Runtime) Mode() Mode {
	return r.mode
}

// SubmitTask delegates to the adapter and counts the submission.
func (r *Runtime) SubmitTask(ctx context.Context, req transport.TaskRequest) (*transport.TaskState, error) {
	state, err := r.adapter.SubmitTask(ctx, req)
	if err != nil {
		return nil, err
	}
	r.totalTasks.Add(1)
	return state, nil
}

// StreamTaskUpdates delegates to the adapter.
func (r *Runtime) StreamTaskUpdates(ctx context.Context, taskID string) (transport.UpdateStream, error) {
	return r.adapter.StreamTaskUpdates(ctx, taskID)
}

// QueryTaskState delegates to the adapter; nil means unknown task.
func (r *Runtime) QueryTaskState(ctx context.Context, taskID string) (*transport.TaskState, error) {
	return r.adapter.QueryTaskState(ctx, taskID)
}

// CancelTask delegates to the adapter.
func (r *Runtime) CancelTask(ctx context.Context, taskID string) (bool, error) {
	return r.adapter.CancelTask(ctx, taskID)
}

// ListAgents delegates to the adapter.
func (r *Runtime) ListAgents(ctx context.Context) ([]transport.AgentInfo, error) {
	return r.adapter.ListAgents(ctx)
}

// ListSkills delegates to the adapter.
func (r *Runtime) ListSkills(ctx context.Context) ([]transport.SkillInfo, error) {
	return r.adapter.ListSkills(ctx)
}

// Close closes the underlying adapter.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	return r.adapter.Close()
}

// GetStatus reports version, uptime, task counters, mode and health.
func (r *Runtime) GetStatus(ctx context.Context) v1.RuntimeStatus {
	r.mu.Lock()
	healthy := !r.closed
	r.mu.Unlock()

	active := 0
	if r.tasks != nil {
		running, err := r.tasks.List(ctx, store.Filter{Status: v1.TaskStatusRunning})
		if err != nil {
			r.logger.Warn("failed to count active tasks", zap.Error(err))
			healthy = false
		} else {
			active = len(running)
		}
	}

	return v1.RuntimeStatus{
		Version:       Version,
		UptimeSeconds: int64(time.Since(r.startTime).Seconds()),
		ActiveTasks:   active,
		TotalTasks:    r.totalTasks.Load(),
		Mode:          string(r.mode),
		Healthy:       healthy,
	}
}
