package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/coderclaw/coderclaw/internal/common/errors"
	"github.com/coderclaw/coderclaw/internal/common/ids"
	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/security"
	"github.com/coderclaw/coderclaw/internal/task/engine"
	"github.com/coderclaw/coderclaw/internal/task/models"
	"github.com/coderclaw/coderclaw/internal/transport"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// outputSeparator prefixes each prerequisite output appended to a task's
// dispatch input.
const outputSeparator = "\n\n--- prerequisite output ---\n"

// Orchestrator creates workflows, verifies their DAGs and runs the parallel
// dispatch loop. A single orchestrator owns a workflow for its lifetime.
type Orchestrator struct {
	engine   *engine.Engine
	spawner  transport.Spawner
	security *security.Service // optional; nil skips the dispatch gate
	ids      ids.Generator
	logger   *logger.Logger

	mu        sync.RWMutex
	workflows map[string]*Workflow

	// access is the security context dispatch decisions are checked
	// against when a security service is configured.
	access security.AccessContext
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithSecurity gates every dispatch through the security service using the
// given access context.
func WithSecurity(svc *security.Service, access security.AccessContext) Option {
	return func(o *Orchestrator) {
		o.security = svc
		o.access = access
	}
}

// New creates an orchestrator over the task engine and spawn collaborator.
func New(eng *engine.Engine, spawner transport.Spawner, gen ids.Generator, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:    eng,
		spawner:   spawner,
		ids:       gen,
		logger:    log.WithFields(zap.String("component", "orchestrator")),
		workflows: make(map[string]*Workflow),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateWorkflow lowers the steps into pending tasks and dependency sets.
// The dependency graph is verified acyclic before any task is created; a
// cycle fails with WORKFLOW_CYCLIC and leaves no records behind.
func (o *Orchestrator) CreateWorkflow(ctx context.Context, steps []Step) (*Workflow, error) {
	if len(steps) == 0 {
		return nil, apperrors.BadRequest("workflow has no steps")
	}

	workflowID := o.ids.NewID()

	edges, dropped := resolveDependencies(steps)
	for _, name := range dropped {
		o.logger.Warn("dropping unresolvable dependency",
			zap.String("workflow_id", workflowID),
			zap.String("dependency", name))
	}
	if hasCycle(len(steps), edges) {
		return nil, apperrors.WorkflowCyclic(workflowID)
	}

	wf := &Workflow{
		ID:         workflowID,
		Status:     v1.WorkflowStatusPending,
		Steps:      steps,
		prereqs:    make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}

	taskIDs := make([]string, len(steps))
	for i, step := range steps {
		task, err := o.engine.Create(ctx, engine.CreateTaskRequest{
			Description: step.Description,
			AgentRole:   step.Role,
			Metadata:    map[string]interface{}{"workflow_id": workflowID},
		})
		if err != nil {
			return nil, err
		}
		taskIDs[i] = task.ID
		wf.prereqs[task.ID] = make(map[string]struct{})
		wf.dependents[task.ID] = make(map[string]struct{})
	}
	wf.TaskIDs = taskIDs

	for i, deps := range edges {
		for _, j := range deps {
			wf.prereqs[taskIDs[i]][taskIDs[j]] = struct{}{}
			wf.dependents[taskIDs[j]][taskIDs[i]] = struct{}{}
		}
	}

	o.mu.Lock()
	o.workflows[workflowID] = wf
	o.mu.Unlock()

	o.logger.Info("workflow created",
		zap.String("workflow_id", workflowID),
		zap.Int("steps", len(steps)))
	return wf, nil
}

// GetWorkflow returns the workflow by id, or nil.
func (o *Orchestrator) GetWorkflow(id string) *Workflow {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.workflows[id]
}

// ExecuteWorkflow runs dispatch waves until every task is terminal. Each
// wave dispatches all ready tasks concurrently and awaits them before
// recomputing the ready set. An empty ready set with non-terminal tasks
// remaining fails the workflow with WORKFLOW_STUCK.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string) error {
	wf := o.GetWorkflow(workflowID)
	if wf == nil {
		return apperrors.NotFound("workflow", workflowID)
	}

	// A workflow cancelled before execution stays cancelled.
	wf.mu.Lock()
	if wf.Status == v1.WorkflowStatusPending {
		wf.Status = v1.WorkflowStatusRunning
	}
	wf.mu.Unlock()
	o.logger.Info("workflow execution started", zap.String("workflow_id", workflowID))

	for {
		tasks, err := o.loadTasks(ctx, wf)
		if err != nil {
			wf.setStatus(v1.WorkflowStatusFailed)
			return err
		}

		ready := readySet(wf, tasks)
		if len(ready) == 0 {
			if allTerminal(tasks) {
				break
			}
			wf.setStatus(v1.WorkflowStatusFailed)
			return apperrors.WorkflowStuck(workflowID)
		}

		g, waveCtx := errgroup.WithContext(ctx)
		for _, taskID := range ready {
			id := taskID
			g.Go(func() error {
				o.dispatch(waveCtx, wf, id, tasks)
				return nil
			})
		}
		_ = g.Wait()
	}

	// Aggregate: any failed task fails the workflow, unless it was
	// cancelled along the way.
	tasks, err := o.loadTasks(ctx, wf)
	if err != nil {
		wf.setStatus(v1.WorkflowStatusFailed)
		return err
	}
	if wf.GetStatus() == v1.WorkflowStatusCancelled {
		return nil
	}

	status := v1.WorkflowStatusCompleted
	for _, task := range tasks {
		if task.Status == v1.TaskStatusFailed {
			status = v1.WorkflowStatusFailed
			break
		}
	}
	wf.setStatus(status)

	o.logger.Info("workflow execution finished",
		zap.String("workflow_id", workflowID),
		zap.String("status", string(status)))
	return nil
}

// CancelWorkflow marks the workflow cancelled and cancels every non-terminal
// task. A task currently inside dispatch finishes on its own; the record
// already reflects the cancellation when it does.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, workflowID string) error {
	wf := o.GetWorkflow(workflowID)
	if wf == nil {
		return apperrors.NotFound("workflow", workflowID)
	}

	wf.setStatus(v1.WorkflowStatusCancelled)
	for _, taskID := range wf.TaskIDs {
		if _, err := o.engine.Cancel(ctx, taskID); err != nil {
			o.logger.Warn("failed to cancel workflow task",
				zap.String("workflow_id", workflowID),
				zap.String("task_id", taskID),
				zap.Error(err))
		}
	}

	o.logger.Info("workflow cancelled", zap.String("workflow_id", workflowID))
	return nil
}

// dispatch runs one task through its lifecycle. Everything thrown by the
// collaborator is caught and recorded as a task-level failure.
func (o *Orchestrator) dispatch(ctx context.Context, wf *Workflow, taskID string, tasks map[string]*models.Task) {
	defer func() {
		if r := recover(); r != nil {
			o.failTask(ctx, taskID, fmt.Sprintf("dispatch panic: %v", r))
		}
	}()

	task := tasks[taskID]
	log := o.logger.WithTaskID(taskID)

	if _, err := o.engine.UpdateStatus(ctx, taskID, v1.TaskStatusPlanning); err != nil {
		log.Debug("task not dispatchable", zap.Error(err))
		return
	}

	// The authorization gate runs after entering planning so a denial can be
	// recorded as a task failure.
	if o.security != nil {
		result := o.security.CheckAgentAccess(o.access, task.AgentRole)
		if !result.Allowed {
			o.failTask(ctx, taskID, result.Reason)
			return
		}
	}

	if _, err := o.engine.UpdateStatus(ctx, taskID, v1.TaskStatusRunning); err != nil {
		log.Debug("task no longer running", zap.Error(err))
		return
	}

	input := o.assembleInput(ctx, wf, task)

	result, err := o.spawner.SpawnSubagent(ctx, transport.SpawnRequest{
		Task:    input,
		Label:   fmt.Sprintf("%s: %s", task.AgentRole, task.Description),
		AgentID: task.AgentRole,
	})
	if err != nil {
		o.failTask(ctx, taskID, err.Error())
		return
	}
	if result.Status != transport.SpawnAccepted {
		msg := result.Error
		if msg == "" {
			msg = "subagent spawn rejected"
		}
		o.failTask(ctx, taskID, msg)
		return
	}

	if result.ChildSessionKey != "" {
		if err := o.engine.AttachSession(ctx, taskID, result.ChildSessionKey); err != nil {
			log.Debug("could not attach session", zap.Error(err))
		}
	}
	output := fmt.Sprintf("completed by %s", task.AgentRole)
	if _, err := o.engine.SetOutput(ctx, taskID, output); err != nil {
		log.Debug("could not record output", zap.Error(err))
		return
	}
	if _, err := o.engine.UpdateStatus(ctx, taskID, v1.TaskStatusCompleted); err != nil {
		log.Debug("could not complete task", zap.Error(err))
	}
}

// assembleInput concatenates the task description with the outputs of every
// completed prerequisite, each prefixed by a separator.
func (o *Orchestrator) assembleInput(ctx context.Context, wf *Workflow, task *models.Task) string {
	var sb strings.Builder
	sb.WriteString(task.Description)

	for _, prereqID := range wf.Prerequisites(task.ID) {
		prereq, err := o.engine.Get(ctx, prereqID)
		if err != nil || prereq == nil {
			continue
		}
		if prereq.Status == v1.TaskStatusCompleted && prereq.Output != nil {
			sb.WriteString(outputSeparator)
			sb.WriteString(*prereq.Output)
		}
	}
	return sb.String()
}

func (o *Orchestrator) failTask(ctx context.Context, taskID, msg string) {
	if _, err := o.engine.SetError(ctx, taskID, msg); err != nil {
		o.logger.Warn("could not fail task",
			zap.String("task_id", taskID), zap.Error(err))
	}
}

// loadTasks fetches the current record of every workflow task.
func (o *Orchestrator) loadTasks(ctx context.Context, wf *Workflow) (map[string]*models.Task, error) {
	tasks := make(map[string]*models.Task, len(wf.TaskIDs))
	for _, id := range wf.TaskIDs {
		task, err := o.engine.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, apperrors.NotFound("task", id)
		}
		tasks[id] = task
	}
	return tasks, nil
}

// readySet computes the tasks that are pending with every prerequisite
// completed or failed.
func readySet(wf *Workflow, tasks map[string]*models.Task) []string {
	var ready []string
	for _, id := range wf.TaskIDs {
		task := tasks[id]
		if task.Status != v1.TaskStatusPending {
			continue
		}
		satisfied := true
		for prereqID := range wf.prereqs[id] {
			st := tasks[prereqID].Status
			if st != v1.TaskStatusCompleted && st != v1.TaskStatusFailed {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	return ready
}

func allTerminal(tasks map[string]*models.Task) bool {
	for _, task := range tasks {
		if !task.Status.IsTerminal() {
			return false
		}
	}
	return true
}
