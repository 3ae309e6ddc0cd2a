// Package local implements the in-process transport adapter. Submitted
// tasks are queued and executed on background workers that drive the task
// engine and invoke the subagent-spawn collaborator.
package local

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/coderclaw/coderclaw/internal/common/errors"
	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/roles"
	"github.com/coderclaw/coderclaw/internal/task/engine"
	"github.com/coderclaw/coderclaw/internal/task/models"
	"github.com/coderclaw/coderclaw/internal/transport"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// spawnAcceptedOutput is recorded as the task output when the collaborator
// accepts the spawn and retains control of the subagent.
const spawnAcceptedOutput = "subagent execution accepted"

// Adapter executes tasks in-process via the subagent-spawn collaborator.
type Adapter struct {
	engine  *engine.Engine
	spawner transport.Spawner
	roles   *roles.Registry
	skills  []transport.SkillInfo
	queue   *submissionQueue
	logger  *logger.Logger

	notify  chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	workers int
}

// Ensure Adapter implements the transport contract
var _ transport.Adapter = (*Adapter)(nil)

// Options configures the local adapter.
type Options struct {
	Workers   int
	QueueSize int
	Skills    []transport.SkillInfo
}

// NewAdapter creates a local adapter and starts its worker pool.
func NewAdapter(eng *engine.Engine, spawner transport.Spawner, reg *roles.Registry, log *logger.Logger, opts Options) *Adapter {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	a := &Adapter{
		engine:  eng,
		spawner: spawner,
		roles:   reg,
		skills:  opts.Skills,
		queue:   newSubmissionQueue(queueSize),
		logger:  log.WithFields(zap.String("component", "local-transport")),
		notify:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		workers: workers,
	}

	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.workerLoop()
	}
	return a
}

// SubmitTask creates a pending task and schedules it for execution. The task
// is returned before execution begins.
func (a *Adapter) SubmitTask(ctx context.Context, req transport.TaskRequest) (*transport.TaskState, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, apperrors.TransportUnavailable("local transport is closed", nil)
	}
	a.mu.Unlock()

	task, err := a.engine.Create(ctx, engine.CreateTaskRequest{
		Description: req.Description,
		AgentRole:   req.AgentRole,
		SessionID:   req.SessionID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if err := a.queue.Enqueue(task.ID, req.Priority, req); err != nil {
		// The record exists but will never run; fail it so callers see why.
		if _, ferr := a.engine.SetError(ctx, task.ID, err.Error()); ferr != nil {
			a.logger.Warn("failed to fail unqueueable task",
				zap.String("task_id", task.ID), zap.Error(ferr))
		}
		return nil, apperrors.TransportUnavailable(err.Error(), err)
	}
	a.signal()

	a.logger.Info("task submitted",
		zap.String("task_id", task.ID),
		zap.String("agent_role", req.AgentRole))
	return taskToState(task), nil
}

// StreamTaskUpdates forwards the engine's native stream.
func (a *Adapter) StreamTaskUpdates(ctx context.Context, taskID string) (transport.UpdateStream, error) {
	s, err := a.engine.StreamUpdates(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return newEngineStream(s), nil
}

// QueryTaskState returns the task state, or nil for an unknown id.
func (a *Adapter) QueryTaskState(ctx context.Context, taskID string) (*transport.TaskState, error) {
	task, err := a.engine.Get(ctx, taskID)
	if err != nil || task == nil {
		return nil, err
	}
	return taskToState(task), nil
}

// CancelTask forwards to the engine. A queued task is also removed from the
// submission queue; a subagent already spawned is not forcibly terminated.
func (a *Adapter) CancelTask(ctx context.Context, taskID string) (bool, error) {
	a.queue.Remove(taskID)
	return a.engine.Cancel(ctx, taskID)
}

// ListAgents lists the registered agent roles.
func (a *Adapter) ListAgents(ctx context.Context) ([]transport.AgentInfo, error) {
	all := a.roles.List()
	result := make([]transport.AgentInfo, 0, len(all))
	for _, r := range all {
		result = append(result, transport.AgentInfo{
			ID:           r.Name,
			Name:         r.Name,
			Description:  r.Description,
			Capabilities: r.Capabilities,
		})
	}
	return result, nil
}

// ListSkills lists the skills configured for this adapter.
func (a *Adapter) ListSkills(ctx context.Context) ([]transport.SkillInfo, error) {
	result := make([]transport.SkillInfo, len(a.skills))
	copy(result, a.skills)
	return result, nil
}

// Close stops the worker pool. Queued tasks that never ran stay pending.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.stopCh)
	a.wg.Wait()
	return nil
}

func (a *Adapter) signal() {
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

func (a *Adapter) workerLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			return
		case <-a.notify:
		}

		for {
			item := a.queue.Dequeue()
			if item == nil {
				break
			}
			// Let other workers keep draining while this one executes.
			a.signal()
			a.execute(item)

			select {
			case <-a.stopCh:
				return
			default:
			}
		}
	}
}

// execute drives one task through the lifecycle: planning, running, spawn,
// then completed or failed. Cancellation is honored at each transition.
func (a *Adapter) execute(item *queuedTask) {
	ctx := context.Background()
	log := a.logger.WithTaskID(item.TaskID)

	if _, err := a.engine.UpdateStatus(ctx, item.TaskID, v1.TaskStatusPlanning); err != nil {
		// Usually a cancellation that won the race; the record already
		// reflects the outcome.
		log.Debug("task not dispatchable", zap.Error(err))
		return
	}
	if _, err := a.engine.UpdateStatus(ctx, item.TaskID, v1.TaskStatusRunning); err != nil {
		log.Debug("task no longer running", zap.Error(err))
		return
	}

	result, err := a.spawner.SpawnSubagent(ctx, transport.SpawnRequest{
		Task:    item.Request.Description,
		Label:   fmt.Sprintf("%s: %s", item.Request.AgentRole, item.TaskID),
		AgentID: item.Request.AgentRole,
	})
	if err != nil {
		a.fail(ctx, item.TaskID, err.Error())
		return
	}
	if result.Status != transport.SpawnAccepted {
		msg := result.Error
		if msg == "" {
			msg = "subagent spawn rejected"
		}
		a.fail(ctx, item.TaskID, msg)
		return
	}

	if _, err := a.engine.SetOutput(ctx, item.TaskID, spawnAcceptedOutput); err != nil {
		log.Debug("could not record output", zap.Error(err))
		return
	}
	if _, err := a.engine.UpdateStatus(ctx, item.TaskID, v1.TaskStatusCompleted); err != nil {
		log.Debug("could not complete task", zap.Error(err))
	}
}

func (a *Adapter) fail(ctx context.Context, taskID, msg string) {
	if _, err := a.engine.SetError(ctx, taskID, msg); err != nil {
		a.logger.Debug("could not fail task",
			zap.String("task_id", taskID), zap.Error(err))
	}
}

// taskToState converts a task record into the adapter-level view.
func taskToState(t *models.Task) *transport.TaskState {
	return &transport.TaskState{
		ID:          t.ID,
		Status:      t.Status,
		Description: t.Description,
		AgentRole:   t.AgentRole,
		Output:      t.Output,
		Error:       t.Error,
		Progress:    t.Progress,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// engineStream adapts the engine's stream to the transport contract.
type engineStream struct {
	inner *engine.Stream
	out   chan transport.TaskState
	done  chan struct{}
	once  sync.Once
}

func newEngineStream(inner *engine.Stream) *engineStream {
	s := &engineStream{
		inner: inner,
		out:   make(chan transport.TaskState),
		done:  make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *engineStream) forward() {
	defer close(s.out)
	for u := range s.inner.Updates() {
		select {
		case s.out <- *taskToState(u.Task):
		case <-s.done:
			return
		}
	}
}

// Updates returns the update channel.
func (s *engineStream) Updates() <-chan transport.TaskState {
	return s.out
}

// Err always returns nil; the engine stream cannot fail mid-flight.
func (s *engineStream) Err() error {
	return nil
}

// Close stops the stream.
func (s *engineStream) Close() {
	s.once.Do(func() {
		s.inner.Close()
		close(s.done)
	})
}
