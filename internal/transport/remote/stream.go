package remote

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coderclaw/coderclaw/internal/transport"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// pollStream polls the remote state endpoint on a fixed interval. It yields
// exactly one update per observed status change, terminating after the first
// terminal status. On transport failure mid-poll the stream ends and Err
// reports the failure; the caller must resubscribe.
type pollStream struct {
	adapter  *Adapter
	taskID   string
	interval time.Duration
	updates  chan transport.TaskState
	cancel   context.CancelFunc

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// StreamTaskUpdates opens a polling stream over the remote task.
func (a *Adapter) StreamTaskUpdates(ctx context.Context, taskID string) (transport.UpdateStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &pollStream{
		adapter:  a,
		taskID:   taskID,
		interval: a.pollInterval,
		updates:  make(chan transport.TaskState),
		cancel:   cancel,
	}
	go s.pollLoop(streamCtx)
	return s, nil
}

// Updates returns the update channel.
func (s *pollStream) Updates() <-chan transport.TaskState {
	return s.updates
}

// Err returns the transport failure that ended the stream, if any.
func (s *pollStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the poll loop.
func (s *pollStream) Close() {
	s.closeOnce.Do(s.cancel)
}

func (s *pollStream) pollLoop(ctx context.Context) {
	defer close(s.updates)
	defer s.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// The first observation is the baseline; it is only delivered when it is
	// already terminal. Every later poll yields once per status change.
	var lastStatus string
	first := true
	for {
		resp, err := s.adapter.fetchState(ctx, s.taskID)
		if err != nil {
			if ctx.Err() == nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				s.adapter.logger.Warn("poll stream failed",
					zap.String("task_id", s.taskID), zap.Error(err))
			}
			return
		}

		changed := string(resp.State) != lastStatus
		deliver := changed && (!first || resp.State.IsTerminal())
		if changed {
			lastStatus = string(resp.State)
		}
		first = false

		if deliver {
			state := stateFromResponse(resp)
			if resp.State == v1.TaskStatusCompleted {
				progress := 100
				state.Progress = &progress
			}

			select {
			case s.updates <- *state:
			case <-ctx.Done():
				return
			}

			if resp.State.IsTerminal() {
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
