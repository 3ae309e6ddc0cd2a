package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/coderclaw/coderclaw/internal/common/errors"
	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/transport"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// fakeRemote is a minimal in-memory runtime node.
type fakeRemote struct {
	mux      *http.ServeMux
	sessions atomic.Int32
	submits  atomic.Int32
	polls    atomic.Int32

	// states is consumed one entry per poll; the last entry repeats.
	states []v1.TaskStatus
}

func newFakeRemote(states ...v1.TaskStatus) *fakeRemote {
	f := &fakeRemote{states: states, mux: http.NewServeMux()}

	f.mux.HandleFunc("POST /api/runtime/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.sessions.Add(1)
		writeJSON(w, v1.SessionResponse{SessionID: "sess-1", UserID: r.URL.Query().Get("user_id")})
	})
	f.mux.HandleFunc("POST /api/runtime/tasks/submit", func(w http.ResponseWriter, r *http.Request) {
		f.submits.Add(1)
		var req v1.SubmitTaskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, v1.TaskStateResponse{
			TaskID:        "remote-task-1",
			ExecutionUUID: "exec-1",
			State:         v1.TaskStatusPending,
		})
	})
	f.mux.HandleFunc("GET /api/runtime/tasks/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.polls.Add(1))
		idx := n - 1
		if idx >= len(f.states) {
			idx = len(f.states) - 1
		}
		state := f.states[idx]
		resp := v1.TaskStateResponse{
			TaskID:  r.PathValue("id"),
			State:   state,
			Success: state == v1.TaskStatusCompleted,
		}
		writeJSON(w, resp)
	})
	f.mux.HandleFunc("POST /api/runtime/tasks/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, v1.CancelTaskResponse{Success: true, TaskID: r.PathValue("id")})
	})
	f.mux.HandleFunc("GET /api/runtime/agents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []v1.AgentResponse{{AgentType: "code-creator", Name: "code-creator"}})
	})
	f.mux.HandleFunc("GET /api/runtime/skills", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []v1.SkillResponse{{SkillID: "shell-exec", Name: "shell-exec", Dangerous: true}})
	})

	return f
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestAdapter(t *testing.T, f *fakeRemote) *Adapter {
	t.Helper()
	server := httptest.NewServer(f.mux)
	t.Cleanup(server.Close)

	return NewAdapter(Config{
		BaseURL:      server.URL,
		UserID:       "user-1",
		DeviceID:     "device-1",
		PollInterval: 10 * time.Millisecond,
		Timeout:      2 * time.Second,
	}, logger.Default())
}

func TestConnectIsIdempotent(t *testing.T) {
	f := newFakeRemote(v1.TaskStatusPending)
	adapter := newTestAdapter(t, f)
	ctx := context.Background()

	require.NoError(t, adapter.Connect(ctx))
	require.NoError(t, adapter.Connect(ctx))
	assert.Equal(t, int32(1), f.sessions.Load())

	// Close clears the cached session; the next connect creates a new one.
	require.NoError(t, adapter.Close())
	require.NoError(t, adapter.Connect(ctx))
	assert.Equal(t, int32(2), f.sessions.Load())
}

func TestSubmitAutoConnects(t *testing.T) {
	f := newFakeRemote(v1.TaskStatusPending)
	adapter := newTestAdapter(t, f)

	state, err := adapter.SubmitTask(context.Background(), transport.TaskRequest{
		AgentRole:   "code-creator",
		Description: "remote work",
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.sessions.Load())
	assert.Equal(t, "remote-task-1", state.ID)
	assert.Equal(t, v1.TaskStatusPending, state.Status)
}

func TestStreamConvergesOnStatusChanges(t *testing.T) {
	f := newFakeRemote(
		v1.TaskStatusPending,
		v1.TaskStatusPending,
		v1.TaskStatusRunning,
		v1.TaskStatusCompleted,
	)
	adapter := newTestAdapter(t, f)

	stream, err := adapter.StreamTaskUpdates(context.Background(), "remote-task-1")
	require.NoError(t, err)
	defer stream.Close()

	var updates []transport.TaskState
	for update := range stream.Updates() {
		updates = append(updates, update)
	}
	require.NoError(t, stream.Err())

	// Exactly two updates: the repeated pending polls collapse.
	require.Len(t, updates, 2)
	assert.Equal(t, v1.TaskStatusRunning, updates[0].Status)
	assert.Equal(t, v1.TaskStatusCompleted, updates[1].Status)
	require.NotNil(t, updates[1].Progress)
	assert.Equal(t, 100, *updates[1].Progress)

	assert.GreaterOrEqual(t, f.polls.Load(), int32(3))
}

func TestStreamFailsWithTransportUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	adapter := NewAdapter(Config{
		BaseURL:      server.URL,
		PollInterval: 10 * time.Millisecond,
	}, logger.Default())

	stream, err := adapter.StreamTaskUpdates(context.Background(), "remote-task-1")
	require.NoError(t, err)
	defer stream.Close()

	for range stream.Updates() {
	}
	require.Error(t, stream.Err())
	assert.True(t, apperrors.IsTransportUnavailable(stream.Err()))
}

func TestQueryTaskStateReturnsNilOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	adapter := NewAdapter(Config{BaseURL: server.URL}, logger.Default())

	state, err := adapter.QueryTaskState(context.Background(), "remote-task-1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestCancelTaskMapsRemoteSuccess(t *testing.T) {
	f := newFakeRemote(v1.TaskStatusRunning)
	adapter := newTestAdapter(t, f)

	ok, err := adapter.CancelTask(context.Background(), "remote-task-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCancelTaskFalseOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	adapter := NewAdapter(Config{BaseURL: server.URL}, logger.Default())

	ok, err := adapter.CancelTask(context.Background(), "remote-task-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListAgentsAndSkillsMapIDs(t *testing.T) {
	f := newFakeRemote(v1.TaskStatusPending)
	adapter := newTestAdapter(t, f)
	ctx := context.Background()

	agents, err := adapter.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "code-creator", agents[0].ID)

	skills, err := adapter.ListSkills(ctx)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, "shell-exec", skills[0].ID)
	assert.True(t, skills[0].Dangerous)
}
