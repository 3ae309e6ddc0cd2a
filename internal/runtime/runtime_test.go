package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderclaw/coderclaw/internal/common/ids"
	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/roles"
	"github.com/coderclaw/coderclaw/internal/task/engine"
	"github.com/coderclaw/coderclaw/internal/task/store"
	"github.com/coderclaw/coderclaw/internal/transport"
	"github.com/coderclaw/coderclaw/internal/transport/local"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

func newTestRuntime(t *testing.T) (*Runtime, *engine.Engine) {
	t.Helper()
	log := logger.Default()
	eng := engine.New(store.NewMemoryStore(), ids.NewUUIDGenerator(), log)
	adapter := local.NewAdapter(eng, transport.AcceptAllSpawner{}, roles.NewRegistry(log), log, local.Options{})
	rt := New(adapter, ModeLocalOnly, eng, log)
	t.Cleanup(func() { _ = rt.Close() })
	return rt, eng
}

func TestSubmitIncrementsTotalCounter(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rt.SubmitTask(ctx, transport.TaskRequest{
			AgentRole:   "code-creator",
			Description: "counted work",
		})
		require.NoError(t, err)
	}

	status := rt.GetStatus(ctx)
	assert.Equal(t, int64(3), status.TotalTasks)
	assert.Equal(t, string(ModeLocalOnly), status.Mode)
	assert.Equal(t, Version, status.Version)
	assert.True(t, status.Healthy)
}

func TestSubmitThenQueryRoundTrip(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	submitted, err := rt.SubmitTask(ctx, transport.TaskRequest{
		AgentRole:   "code-creator",
		Description: "round trip",
	})
	require.NoError(t, err)

	queried, err := rt.QueryTaskState(ctx, submitted.ID)
	require.NoError(t, err)
	require.NotNil(t, queried)
	assert.Equal(t, submitted.ID, queried.ID)
	// The submission snapshot is pending; the record may have advanced since.
	assert.Equal(t, v1.TaskStatusPending, submitted.Status)
	assert.True(t, queried.Status.IsValid())
}

func TestCloseMarksUnhealthy(t *testing.T) {
	rt, _ := newTestRuntime(t)

	require.NoError(t, rt.Close())
	status := rt.GetStatus(context.Background())
	assert.False(t, status.Healthy)
}

func TestListAgentsDelegates(t *testing.T) {
	rt, _ := newTestRuntime(t)

	agents, err := rt.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Len(t, agents, 7)
}
