package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderclaw/coderclaw/internal/task/models"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

func newTask(id string, status v1.TaskStatus, sessionID string) *models.Task {
	return &models.Task{
		ID:          id,
		Status:      status,
		Description: "test task " + id,
		SessionID:   sessionID,
		Metadata:    map[string]interface{}{"key": "value"},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestMemoryStoreSaveLoadRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	task := newTask("t1", v1.TaskStatusPending, "")
	require.NoError(t, s.Save(ctx, task))

	loaded, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, task.ID, loaded.ID)
	assert.Equal(t, task.Status, loaded.Status)
	assert.Equal(t, task.Description, loaded.Description)
	assert.Equal(t, task.Metadata, loaded.Metadata)
}

func TestMemoryStoreLoadMissingReturnsNil(t *testing.T) {
	s := NewMemoryStore()

	loaded, err := s.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStoreReadsAreDeepCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newTask("t1", v1.TaskStatusPending, "")))

	first, err := s.Load(ctx, "t1")
	require.NoError(t, err)

	// Mutating the returned record must not affect stored state.
	first.Status = v1.TaskStatusFailed
	first.Metadata["key"] = "mutated"
	out := "mutated"
	first.Output = &out

	second, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusPending, second.Status)
	assert.Equal(t, "value", second.Metadata["key"])
	assert.Nil(t, second.Output)
}

func TestMemoryStoreListFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newTask("t1", v1.TaskStatusRunning, "s1")))
	require.NoError(t, s.Save(ctx, newTask("t2", v1.TaskStatusRunning, "s2")))
	require.NoError(t, s.Save(ctx, newTask("t3", v1.TaskStatusPending, "s1")))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	running, err := s.List(ctx, Filter{Status: v1.TaskStatusRunning})
	require.NoError(t, err)
	assert.Len(t, running, 2)

	session, err := s.List(ctx, Filter{SessionID: "s1"})
	require.NoError(t, err)
	assert.Len(t, session, 2)

	// Both filters together are a conjunction.
	both, err := s.List(ctx, Filter{Status: v1.TaskStatusRunning, SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "t1", both[0].ID)
}

func TestMemoryStoreDeleteRemovesTaskAndJournal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newTask("t1", v1.TaskStatusPending, "")))
	require.NoError(t, s.SaveEvent(ctx, &models.TaskEvent{
		TaskID:    "t1",
		Kind:      v1.TaskEventCreated,
		Timestamp: time.Now().UTC(),
	}))

	require.NoError(t, s.Delete(ctx, "t1"))

	loaded, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	events, err := s.GetEvents(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemoryStoreEventsInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	kinds := []v1.TaskEventKind{
		v1.TaskEventCreated,
		v1.TaskEventStatusChanged,
		v1.TaskEventProgressUpdated,
		v1.TaskEventOutputAdded,
	}
	for _, kind := range kinds {
		require.NoError(t, s.SaveEvent(ctx, &models.TaskEvent{
			TaskID:    "t1",
			Kind:      kind,
			Timestamp: time.Now().UTC(),
		}))
	}

	events, err := s.GetEvents(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, events, len(kinds))
	for i, kind := range kinds {
		assert.Equal(t, kind, events[i].Kind)
	}
}
