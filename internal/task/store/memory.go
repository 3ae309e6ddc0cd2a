package store

import (
	"context"
	"sync"

	"github.com/coderclaw/coderclaw/internal/task/models"
)

// MemoryStore provides in-memory task storage operations.
type MemoryStore struct {
	tasks  map[string]*models.Task
	events map[string][]*models.TaskEvent
	mu     sync.RWMutex
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:  make(map[string]*models.Task),
		events: make(map[string][]*models.TaskEvent),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Save stores the task record, replacing any previous record with the same id.
func (s *MemoryStore) Save(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task.Clone()
	return nil
}

// Load retrieves a deep copy of a task, or nil if the id is unknown.
func (s *MemoryStore) Load(ctx context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return task.Clone(), nil
}

// List returns deep copies of every task matching the filter.
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Task
	for _, task := range s.tasks {
		if filter.Matches(task) {
			result = append(result, task.Clone())
		}
	}
	return result, nil
}

// Delete removes the task record and its event journal atomically.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, id)
	delete(s.events, id)
	return nil
}

// SaveEvent appends an event to the task's journal.
func (s *MemoryStore) SaveEvent(ctx context.Context, event *models.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.TaskID] = append(s.events[event.TaskID], event.Clone())
	return nil
}

// GetEvents returns the task's journal in insertion order.
func (s *MemoryStore) GetEvents(ctx context.Context, taskID string) ([]*models.TaskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[taskID]
	if events == nil {
		return nil, nil
	}
	result := make([]*models.TaskEvent, len(events))
	for i, e := range events {
		result[i] = e.Clone()
	}
	return result, nil
}
