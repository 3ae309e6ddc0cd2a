package engine

import (
	"context"
	"sync"

	apperrors "github.com/coderclaw/coderclaw/internal/common/errors"
)

// Stream is a lazy, finite sequence of task updates: the current-state
// snapshot first, then one update per subsequent journal entry, completing
// when the task reaches a terminal state. A slow stream consumer never blocks
// engine notifications; pending updates are buffered in between.
type Stream struct {
	updates chan Update

	mu      sync.Mutex
	pending []Update
	wake    chan struct{}
	closed  bool

	unsubscribe func()
	closeOnce   sync.Once
}

// Updates returns the channel the stream delivers on. The channel is closed
// once a terminal update has been delivered or the stream is closed.
func (s *Stream) Updates() <-chan Update {
	return s.updates
}

// Close stops the stream and releases its subscription. Safe to call more
// than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.signal()
	})
}

// push enqueues an update from the engine callback; it never blocks.
func (s *Stream) push(u Update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, u)
	s.mu.Unlock()
	s.signal()
}

func (s *Stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump moves buffered updates to the consumer channel, stopping after the
// first terminal update.
func (s *Stream) pump(ctx context.Context) {
	defer close(s.updates)
	defer s.Close()

	for {
		s.mu.Lock()
		var next *Update
		if len(s.pending) > 0 {
			u := s.pending[0]
			s.pending = s.pending[1:]
			next = &u
		}
		closed := s.closed
		s.mu.Unlock()

		if next == nil {
			if closed {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case s.updates <- *next:
		case <-ctx.Done():
			return
		}

		if next.Task.Status.IsTerminal() {
			return
		}
	}
}

// StreamUpdates opens a stream over the task: an initial snapshot of the
// current state, then every subsequent event until a terminal state is
// observed. Stream consumers are decoupled from callback subscribers.
func (e *Engine) StreamUpdates(ctx context.Context, id string) (*Stream, error) {
	// Take the task lock so no update can be journaled between the snapshot
	// and the subscription; a stream that begins before an event is journaled
	// never misses that event.
	l := e.lockTask(id)
	l.Lock()

	task, err := e.store.Load(ctx, id)
	if err != nil {
		l.Unlock()
		return nil, err
	}
	if task == nil {
		l.Unlock()
		return nil, apperrors.NotFound("task", id)
	}

	s := &Stream{
		updates: make(chan Update),
		wake:    make(chan struct{}, 1),
	}
	s.unsubscribe = e.Subscribe(id, s.push)
	s.pending = append(s.pending, Update{Task: task})
	l.Unlock()

	go s.pump(ctx)
	return s, nil
}
