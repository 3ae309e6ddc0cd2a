package local

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/coderclaw/coderclaw/internal/transport"
)

var (
	// ErrQueueFull is returned when the queue is at max capacity
	ErrQueueFull = errors.New("submission queue is full")
	// ErrTaskExists is returned when a task already exists in the queue
	ErrTaskExists = errors.New("task already exists in queue")
)

// queuedTask represents a submitted task awaiting a worker
type queuedTask struct {
	TaskID   string
	Priority int // Higher priority = dispatched first
	QueuedAt time.Time
	Request  transport.TaskRequest
	index    int // Index in the heap (used by container/heap)
}

// taskHeap implements heap.Interface for the submission queue
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	// Higher priority first, then earlier queued time
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].QueuedAt.Before(h[j].QueuedAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	n := len(*h)
	item := x.(*queuedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*h = old[0 : n-1]
	return item
}

// submissionQueue orders accepted tasks ahead of worker pickup
type submissionQueue struct {
	mu      sync.RWMutex
	heap    taskHeap
	taskMap map[string]*queuedTask // For quick lookup by task ID
	maxSize int
}

// newSubmissionQueue creates a new submission queue
func newSubmissionQueue(maxSize int) *submissionQueue {
	q := &submissionQueue{
		heap:    make(taskHeap, 0),
		taskMap: make(map[string]*queuedTask),
		maxSize: maxSize,
	}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds a task to the queue
// Returns error if queue is full or task already exists
func (q *submissionQueue) Enqueue(taskID string, priority int, req transport.TaskRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.taskMap[taskID]; exists {
		return ErrTaskExists
	}
	if q.maxSize > 0 && len(q.heap) >= q.maxSize {
		return ErrQueueFull
	}

	qt := &queuedTask{
		TaskID:   taskID,
		Priority: priority,
		QueuedAt: time.Now(),
		Request:  req,
	}
	heap.Push(&q.heap, qt)
	q.taskMap[taskID] = qt
	return nil
}

// Dequeue removes and returns the highest priority task
// Returns nil if queue is empty
func (q *submissionQueue) Dequeue() *queuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}
	qt := heap.Pop(&q.heap).(*queuedTask)
	delete(q.taskMap, qt.TaskID)
	return qt
}

// Remove removes a specific task from the queue
func (q *submissionQueue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	qt, exists := q.taskMap[taskID]
	if !exists {
		return false
	}
	heap.Remove(&q.heap, qt.index)
	delete(q.taskMap, taskID)
	return true
}

// Contains checks if a task is in the queue
func (q *submissionQueue) Contains(taskID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	_, exists := q.taskMap[taskID]
	return exists
}

// Len returns the number of tasks in the queue
func (q *submissionQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.heap)
}
