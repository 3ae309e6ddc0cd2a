package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/coderclaw/coderclaw/internal/common/errors"
	"github.com/coderclaw/coderclaw/internal/common/ids"
	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/task/models"
	"github.com/coderclaw/coderclaw/internal/task/store"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(store.NewMemoryStore(), ids.NewUUIDGenerator(), logger.Default())
}

func createTask(t *testing.T, e *Engine) *models.Task {
	t.Helper()
	task, err := e.Create(context.Background(), CreateTaskRequest{
		Description: "write the parser",
		AgentRole:   "code-creator",
	})
	require.NoError(t, err)
	return task
}

func TestCreateStartsPendingWithCreatedEvent(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)

	assert.Equal(t, v1.TaskStatusPending, task.Status)
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)

	events, err := e.GetEvents(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, v1.TaskEventCreated, events[0].Kind)
}

func TestLegalTransitionPath(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	for _, status := range []v1.TaskStatus{
		v1.TaskStatusPlanning,
		v1.TaskStatusRunning,
		v1.TaskStatusWaiting,
		v1.TaskStatusRunning,
		v1.TaskStatusCompleted,
	} {
		updated, err := e.UpdateStatus(ctx, task.ID, status)
		require.NoError(t, err, "transition to %s", status)
		assert.Equal(t, status, updated.Status)
	}

	final, err := e.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)
	assert.False(t, final.CompletedAt.Before(*final.StartedAt))
}

func TestIllegalTransitionLeavesTaskUnchanged(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	_, err := e.UpdateStatus(ctx, task.ID, v1.TaskStatusCompleted)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidTransition(err))

	// No mutation and no journal entry.
	current, err := e.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusPending, current.Status)
	assert.Nil(t, current.CompletedAt)

	events, err := e.GetEvents(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1) // only created
}

func TestStartedAtSetOnceNeverOverwritten(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	planning, err := e.UpdateStatus(ctx, task.ID, v1.TaskStatusPlanning)
	require.NoError(t, err)
	started := *planning.StartedAt

	running, err := e.UpdateStatus(ctx, task.ID, v1.TaskStatusRunning)
	require.NoError(t, err)
	assert.Equal(t, started, *running.StartedAt)
}

func TestSetErrorTransitionsToFailed(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	_, err := e.UpdateStatus(ctx, task.ID, v1.TaskStatusPlanning)
	require.NoError(t, err)
	_, err = e.UpdateStatus(ctx, task.ID, v1.TaskStatusRunning)
	require.NoError(t, err)

	failed, err := e.SetError(ctx, task.ID, "collaborator exploded")
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "collaborator exploded", *failed.Error)
	assert.NotNil(t, failed.CompletedAt)
}

func TestProgressClamping(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	updated, err := e.UpdateProgress(ctx, task.ID, 150)
	require.NoError(t, err)
	assert.Equal(t, 100, *updated.Progress)

	updated, err = e.UpdateProgress(ctx, task.ID, -10)
	require.NoError(t, err)
	assert.Equal(t, 0, *updated.Progress)
}

func TestProgressJournalsOnlyOnChange(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	_, err := e.UpdateProgress(ctx, task.ID, 50)
	require.NoError(t, err)
	_, err = e.UpdateProgress(ctx, task.ID, 50)
	require.NoError(t, err)

	events, err := e.GetEvents(ctx, task.ID)
	require.NoError(t, err)

	progressEvents := 0
	for _, ev := range events {
		if ev.Kind == v1.TaskEventProgressUpdated {
			progressEvents++
		}
	}
	assert.Equal(t, 1, progressEvents)
}

func TestProgressRejectedOnTerminalTask(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	cancelled, err := e.Cancel(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	_, err = e.UpdateProgress(ctx, task.ID, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsTerminalImmutable(err))
}

func TestSetOutputRejectedOnTerminalTask(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	_, err := e.SetOutput(ctx, task.ID, "intermediate result")
	require.NoError(t, err)

	_, err = e.Cancel(ctx, task.ID)
	require.NoError(t, err)

	_, err = e.SetOutput(ctx, task.ID, "too late")
	require.Error(t, err)
	assert.True(t, apperrors.IsTerminalImmutable(err))
}

func TestCancelTerminalReturnsFalseWithoutJournal(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	cancelled, err := e.Cancel(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	before, err := e.GetEvents(ctx, task.ID)
	require.NoError(t, err)

	cancelled, err = e.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	after, err := e.GetEvents(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestJournalOrderingInvariants(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	_, err := e.UpdateStatus(ctx, task.ID, v1.TaskStatusPlanning)
	require.NoError(t, err)
	_, err = e.UpdateStatus(ctx, task.ID, v1.TaskStatusRunning)
	require.NoError(t, err)
	_, err = e.UpdateProgress(ctx, task.ID, 40)
	require.NoError(t, err)
	_, err = e.SetOutput(ctx, task.ID, "done")
	require.NoError(t, err)
	_, err = e.UpdateStatus(ctx, task.ID, v1.TaskStatusCompleted)
	require.NoError(t, err)

	events, err := e.GetEvents(ctx, task.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	assert.Equal(t, v1.TaskEventCreated, events[0].Kind)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp),
			"event %d timestamp precedes event %d", i, i-1)
	}
	// The terminal status change is the last journal entry.
	last := events[len(events)-1]
	assert.Equal(t, v1.TaskEventStatusChanged, last.Kind)
	assert.Equal(t, v1.TaskStatusCompleted, *last.NewStatus)
}

func TestSubscriberReceivesEventsInJournalOrder(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	var received []v1.TaskEventKind
	unsubscribe := e.Subscribe(task.ID, func(u Update) {
		received = append(received, u.Event.Kind)
	})
	defer unsubscribe()

	_, err := e.UpdateStatus(ctx, task.ID, v1.TaskStatusPlanning)
	require.NoError(t, err)
	_, err = e.UpdateProgress(ctx, task.ID, 25)
	require.NoError(t, err)
	_, err = e.UpdateStatus(ctx, task.ID, v1.TaskStatusRunning)
	require.NoError(t, err)
	_, err = e.UpdateStatus(ctx, task.ID, v1.TaskStatusCompleted)
	require.NoError(t, err)

	events, err := e.GetEvents(ctx, task.ID)
	require.NoError(t, err)

	// Skip the created event journaled before the subscription began.
	var journaled []v1.TaskEventKind
	for _, ev := range events[1:] {
		journaled = append(journaled, ev.Kind)
	}
	assert.Equal(t, journaled, received)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := newTestEngine(t)
	task := createTask(t, e)
	ctx := context.Background()

	count := 0
	unsubscribe := e.Subscribe(task.ID, func(Update) { count++ })

	_, err := e.UpdateStatus(ctx, task.ID, v1.TaskStatusPlanning)
	require.NoError(t, err)
	unsubscribe()
	_, err = e.UpdateStatus(ctx, task.ID, v1.TaskStatusRunning)
	require.NoError(t, err)

	assert.Equal(t, 1, count)
}

func TestCanTransitionTable(t *testing.T) {
	legal := []struct{ from, to v1.TaskStatus }{
		{v1.TaskStatusPending, v1.TaskStatusPlanning},
		{v1.TaskStatusPending, v1.TaskStatusCancelled},
		{v1.TaskStatusPlanning, v1.TaskStatusRunning},
		{v1.TaskStatusPlanning, v1.TaskStatusFailed},
		{v1.TaskStatusPlanning, v1.TaskStatusCancelled},
		{v1.TaskStatusRunning, v1.TaskStatusWaiting},
		{v1.TaskStatusRunning, v1.TaskStatusCompleted},
		{v1.TaskStatusRunning, v1.TaskStatusFailed},
		{v1.TaskStatusRunning, v1.TaskStatusCancelled},
		{v1.TaskStatusWaiting, v1.TaskStatusRunning},
		{v1.TaskStatusWaiting, v1.TaskStatusFailed},
		{v1.TaskStatusWaiting, v1.TaskStatusCancelled},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct{ from, to v1.TaskStatus }{
		{v1.TaskStatusPending, v1.TaskStatusRunning},
		{v1.TaskStatusPending, v1.TaskStatusCompleted},
		{v1.TaskStatusPending, v1.TaskStatusFailed},
		{v1.TaskStatusPlanning, v1.TaskStatusWaiting},
		{v1.TaskStatusCompleted, v1.TaskStatusRunning},
		{v1.TaskStatusFailed, v1.TaskStatusRunning},
		{v1.TaskStatusCancelled, v1.TaskStatusPending},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}
