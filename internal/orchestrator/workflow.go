// Package orchestrator lowers developer-intent workflows into task DAGs and
// drives them through parallel dispatch waves.
package orchestrator

import (
	"sync"

	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// Step is one unit of a submitted workflow: a role-tagged task description
// with optional dependencies named by the descriptions of other steps.
type Step struct {
	Role        string   `json:"role"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// Workflow owns a DAG of tasks. Task records live in the task store; the
// workflow references them by id.
type Workflow struct {
	ID     string            `json:"id"`
	Status v1.WorkflowStatus `json:"status"`
	Steps  []Step            `json:"steps"`

	// TaskIDs holds the task ids in step submission order.
	TaskIDs []string `json:"task_ids"`

	// prereqs maps task id to the set of prerequisite task ids;
	// dependents is the reverse edge set. Both are built at creation and
	// only read afterwards; Status and the terminal bookkeeping are guarded
	// by mu with the dispatch loop as the single writer.
	prereqs    map[string]map[string]struct{}
	dependents map[string]map[string]struct{}

	mu sync.Mutex
}

// setStatus updates the workflow status under its lock.
func (w *Workflow) setStatus(status v1.WorkflowStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Status = status
}

// GetStatus returns the current workflow status.
func (w *Workflow) GetStatus() v1.WorkflowStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Status
}

// Prerequisites returns the prerequisite task ids of a task.
func (w *Workflow) Prerequisites(taskID string) []string {
	result := make([]string, 0, len(w.prereqs[taskID]))
	for id := range w.prereqs[taskID] {
		result = append(result, id)
	}
	return result
}

// Dependents returns the task ids that depend on a task.
func (w *Workflow) Dependents(taskID string) []string {
	result := make([]string, 0, len(w.dependents[taskID]))
	for id := range w.dependents[taskID] {
		result = append(result, id)
	}
	return result
}

// resolveDependencies maps each step's dependency descriptions onto step
// indices by string equality. Two steps with the same description resolve to
// the earliest; names that match no step are dropped (the name of every
// dropped dependency is reported so callers can log it).
func resolveDependencies(steps []Step) (edges map[int][]int, dropped []string) {
	byDescription := make(map[string]int, len(steps))
	for i, step := range steps {
		if _, exists := byDescription[step.Description]; !exists {
			byDescription[step.Description] = i
		}
	}

	edges = make(map[int][]int)
	for i, step := range steps {
		for _, dep := range step.DependsOn {
			j, ok := byDescription[dep]
			if !ok || j == i {
				dropped = append(dropped, dep)
				continue
			}
			edges[i] = append(edges[i], j)
		}
	}
	return edges, dropped
}

// hasCycle runs topological elimination over the step-index dependency
// edges; any step left unresolved is part of a cycle.
func hasCycle(n int, edges map[int][]int) bool {
	remaining := make(map[int]map[int]struct{}, n)
	for i := 0; i < n; i++ {
		remaining[i] = make(map[int]struct{})
		for _, j := range edges[i] {
			remaining[i][j] = struct{}{}
		}
	}

	resolved := make(map[int]struct{})
	for len(resolved) < n {
		progress := false
		for i := 0; i < n; i++ {
			if _, done := resolved[i]; done {
				continue
			}
			free := true
			for j := range remaining[i] {
				if _, done := resolved[j]; !done {
					free = false
					break
				}
			}
			if free {
				resolved[i] = struct{}{}
				progress = true
			}
		}
		if !progress {
			return true
		}
	}
	return false
}
