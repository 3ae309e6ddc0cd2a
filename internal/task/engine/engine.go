// Package engine implements the task lifecycle state machine. Every task
// moves through a validated transition graph; each legal change is journaled
// and fanned out to subscribers in journal order.
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/coderclaw/coderclaw/internal/common/errors"
	"github.com/coderclaw/coderclaw/internal/common/ids"
	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/events/bus"
	"github.com/coderclaw/coderclaw/internal/task/models"
	"github.com/coderclaw/coderclaw/internal/task/store"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// allowedTransitions is the lifecycle transition table. Any attempt outside
// this table fails with INVALID_TRANSITION and leaves the task unchanged.
var allowedTransitions = map[v1.TaskStatus][]v1.TaskStatus{
	v1.TaskStatusPending:  {v1.TaskStatusPlanning, v1.TaskStatusCancelled},
	v1.TaskStatusPlanning: {v1.TaskStatusRunning, v1.TaskStatusFailed, v1.TaskStatusCancelled},
	v1.TaskStatusRunning:  {v1.TaskStatusWaiting, v1.TaskStatusCompleted, v1.TaskStatusFailed, v1.TaskStatusCancelled},
	v1.TaskStatusWaiting:  {v1.TaskStatusRunning, v1.TaskStatusFailed, v1.TaskStatusCancelled},
	// completed, failed, cancelled are terminal
}

// CanTransition reports whether from → to is a legal lifecycle transition.
func CanTransition(from, to v1.TaskStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Update is delivered to subscribers and stream consumers. Event is nil for
// the initial snapshot a stream yields before any change.
type Update struct {
	Task  *models.Task
	Event *models.TaskEvent
}

// UpdateCallback receives task updates. Callbacks are invoked synchronously
// on the goroutine making the engine call that produced the update and must
// not block or call back into the engine for the same task.
type UpdateCallback func(Update)

// CreateTaskRequest carries the attributes of a new task.
type CreateTaskRequest struct {
	Description string
	AgentRole   string
	SessionID   string
	ParentID    string
	Metadata    map[string]interface{}
}

// Engine drives tasks through the lifecycle state machine.
type Engine struct {
	store    store.Store
	ids      ids.Generator
	clock    ids.Clock
	eventBus bus.EventBus // optional; journal fan-out for observers
	logger   *logger.Logger

	mu          sync.Mutex
	taskLocks   map[string]*sync.Mutex
	subscribers map[string]map[int]UpdateCallback
	nextSubID   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventBus publishes every journal entry to the bus on subject
// "task.events.<task-id>" for out-of-process observers.
func WithEventBus(b bus.EventBus) Option {
	return func(e *Engine) { e.eventBus = b }
}

// WithClock substitutes the timestamp source (used by tests).
func WithClock(c ids.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates a task engine over the given store.
func New(st store.Store, gen ids.Generator, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		ids:         gen,
		clock:       ids.NewSystemClock(),
		logger:      log.WithFields(zap.String("component", "task-engine")),
		taskLocks:   make(map[string]*sync.Mutex),
		subscribers: make(map[string]map[int]UpdateCallback),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lockTask returns the per-task mutex, creating it on first use. Serializing
// per task keeps the journal totally ordered and callbacks in journal order.
func (e *Engine) lockTask(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.taskLocks[id]
	if !ok {
		l = &sync.Mutex{}
		e.taskLocks[id] = l
	}
	return l
}

// Create creates a new pending task and journals the created event.
func (e *Engine) Create(ctx context.Context, req CreateTaskRequest) (*models.Task, error) {
	now := e.clock.Now()
	task := &models.Task{
		ID:          e.ids.NewID(),
		Status:      v1.TaskStatusPending,
		Description: req.Description,
		AgentRole:   req.AgentRole,
		SessionID:   req.SessionID,
		ParentID:    req.ParentID,
		Metadata:    req.Metadata,
		CreatedAt:   now,
	}

	l := e.lockTask(task.ID)
	l.Lock()
	defer l.Unlock()

	if err := e.store.Save(ctx, task); err != nil {
		return nil, err
	}

	event := &models.TaskEvent{
		TaskID:    task.ID,
		Kind:      v1.TaskEventCreated,
		Timestamp: now,
	}
	if err := e.journal(ctx, task, event); err != nil {
		return nil, err
	}

	e.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("agent_role", task.AgentRole))
	return task.Clone(), nil
}

// Get returns a deep copy of the task, or nil if unknown.
func (e *Engine) Get(ctx context.Context, id string) (*models.Task, error) {
	return e.store.Load(ctx, id)
}

// List returns every task matching the filter.
func (e *Engine) List(ctx context.Context, filter store.Filter) ([]*models.Task, error) {
	return e.store.List(ctx, filter)
}

// GetEvents returns the task's journal in insertion order.
func (e *Engine) GetEvents(ctx context.Context, id string) ([]*models.TaskEvent, error) {
	return e.store.GetEvents(ctx, id)
}

// UpdateStatus transitions the task to newStatus, applying the lifecycle side
// effects: entering planning or running sets startedAt if unset; entering a
// terminal state sets completedAt.
func (e *Engine) UpdateStatus(ctx context.Context, id string, newStatus v1.TaskStatus) (*models.Task, error) {
	l := e.lockTask(id)
	l.Lock()
	defer l.Unlock()

	return e.transitionLocked(ctx, id, newStatus, nil)
}

// SetError atomically sets the error string and transitions the task to
// failed. The error_set event precedes the terminal status change in the
// journal.
func (e *Engine) SetError(ctx context.Context, id string, msg string) (*models.Task, error) {
	l := e.lockTask(id)
	l.Lock()
	defer l.Unlock()

	task, err := e.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(task.Status, v1.TaskStatusFailed) {
		return nil, apperrors.InvalidTransition(string(task.Status), string(v1.TaskStatusFailed))
	}

	task.Error = &msg
	if err := e.store.Save(ctx, task); err != nil {
		return nil, err
	}
	event := &models.TaskEvent{
		TaskID:    id,
		Kind:      v1.TaskEventErrorSet,
		Timestamp: e.clock.Now(),
		Data:      map[string]interface{}{"error": msg},
	}
	if err := e.journal(ctx, task, event); err != nil {
		return nil, err
	}

	return e.transitionLocked(ctx, id, v1.TaskStatusFailed, task)
}

// UpdateProgress clamps p to [0,100] and stores it. It journals only when the
// stored value actually changes and never touches status. Terminal tasks
// reject the update with TERMINAL_IMMUTABLE.
func (e *Engine) UpdateProgress(ctx context.Context, id string, p int) (*models.Task, error) {
	l := e.lockTask(id)
	l.Lock()
	defer l.Unlock()

	task, err := e.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, apperrors.TerminalImmutable(id)
	}

	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	if task.Progress != nil && *task.Progress == p {
		return task, nil
	}

	task.Progress = &p
	if err := e.store.Save(ctx, task); err != nil {
		return nil, err
	}
	event := &models.TaskEvent{
		TaskID:    id,
		Kind:      v1.TaskEventProgressUpdated,
		Timestamp: e.clock.Now(),
		Data:      map[string]interface{}{"progress": p},
	}
	if err := e.journal(ctx, task, event); err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// SetOutput overwrites the task's output string. Legal in any non-terminal
// state; terminal tasks reject it with TERMINAL_IMMUTABLE.
func (e *Engine) SetOutput(ctx context.Context, id string, output string) (*models.Task, error) {
	l := e.lockTask(id)
	l.Lock()
	defer l.Unlock()

	task, err := e.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, apperrors.TerminalImmutable(id)
	}

	task.Output = &output
	if err := e.store.Save(ctx, task); err != nil {
		return nil, err
	}
	event := &models.TaskEvent{
		TaskID:    id,
		Kind:      v1.TaskEventOutputAdded,
		Timestamp: e.clock.Now(),
	}
	if err := e.journal(ctx, task, event); err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// AttachSession records the execution session handle on a non-terminal
// task. Session attachment is bookkeeping, not a lifecycle change, so no
// event is journaled.
func (e *Engine) AttachSession(ctx context.Context, id, sessionID string) error {
	l := e.lockTask(id)
	l.Lock()
	defer l.Unlock()

	task, err := e.loadLocked(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return apperrors.TerminalImmutable(id)
	}

	task.SessionID = sessionID
	return e.store.Save(ctx, task)
}

// Cancel transitions a non-terminal task to cancelled and reports whether the
// cancellation took effect. On a terminal task it returns false and records
// no event. Cancellation is non-preemptive: transports observe it at their
// next checkpoint.
func (e *Engine) Cancel(ctx context.Context, id string) (bool, error) {
	l := e.lockTask(id)
	l.Lock()
	defer l.Unlock()

	task, err := e.loadLocked(ctx, id)
	if err != nil {
		return false, err
	}
	if task.Status.IsTerminal() {
		return false, nil
	}

	if _, err := e.transitionLocked(ctx, id, v1.TaskStatusCancelled, task); err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe registers a callback for every subsequent update of the task.
// The returned function unsubscribes.
func (e *Engine) Subscribe(id string, cb UpdateCallback) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs, ok := e.subscribers[id]
	if !ok {
		subs = make(map[int]UpdateCallback)
		e.subscribers[id] = subs
	}
	subID := e.nextSubID
	e.nextSubID++
	subs[subID] = cb

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if subs, ok := e.subscribers[id]; ok {
			delete(subs, subID)
			if len(subs) == 0 {
				delete(e.subscribers, id)
			}
		}
	}
}

// loadLocked loads the task under its lock, converting a missing id into a
// NOT_FOUND error (engine operations require an existing task).
func (e *Engine) loadLocked(ctx context.Context, id string) (*models.Task, error) {
	task, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperrors.NotFound("task", id)
	}
	return task, nil
}

// transitionLocked validates and applies a status change. The caller holds
// the task lock. current may be nil, in which case the task is loaded.
func (e *Engine) transitionLocked(ctx context.Context, id string, newStatus v1.TaskStatus, current *models.Task) (*models.Task, error) {
	task := current
	if task == nil {
		var err error
		task, err = e.loadLocked(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	if !CanTransition(task.Status, newStatus) {
		return nil, apperrors.InvalidTransition(string(task.Status), string(newStatus))
	}

	oldStatus := task.Status
	now := e.clock.Now()
	task.Status = newStatus

	switch {
	case newStatus == v1.TaskStatusPlanning || newStatus == v1.TaskStatusRunning:
		if task.StartedAt == nil {
			started := now
			task.StartedAt = &started
		}
	case newStatus.IsTerminal():
		completed := now
		task.CompletedAt = &completed
	}

	if err := e.store.Save(ctx, task); err != nil {
		return nil, err
	}

	event := &models.TaskEvent{
		TaskID:    id,
		Kind:      v1.TaskEventStatusChanged,
		Timestamp: now,
		OldStatus: &oldStatus,
		NewStatus: &task.Status,
	}
	if err := e.journal(ctx, task, event); err != nil {
		return nil, err
	}

	e.logger.Debug("task transitioned",
		zap.String("task_id", id),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(newStatus)))
	return task.Clone(), nil
}

// journal appends the event and notifies subscribers in order. The caller
// holds the task lock, so deliveries cannot interleave across updates.
func (e *Engine) journal(ctx context.Context, task *models.Task, event *models.TaskEvent) error {
	if err := e.store.SaveEvent(ctx, event); err != nil {
		return err
	}

	update := Update{Task: task.Clone(), Event: event.Clone()}

	e.mu.Lock()
	callbacks := make([]UpdateCallback, 0, len(e.subscribers[task.ID]))
	for _, cb := range e.subscribers[task.ID] {
		callbacks = append(callbacks, cb)
	}
	e.mu.Unlock()

	for _, cb := range callbacks {
		cb(update)
	}

	if e.eventBus != nil {
		evt := bus.NewEvent("task."+string(event.Kind), "task-engine", map[string]interface{}{
			"task_id": task.ID,
			"status":  string(task.Status),
			"event":   event.ToAPI(),
		})
		if err := e.eventBus.Publish(ctx, "task.events."+task.ID, evt); err != nil {
			e.logger.Warn("failed to publish task event",
				zap.String("task_id", task.ID), zap.Error(err))
		}
	}
	return nil
}
