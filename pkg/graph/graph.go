package graph

import (
	"fmt"
)

// Graph is a directed acyclic graph of tasks. Edges run from the task that
// produces a resource to every task consuming it.
type Graph struct {
	tasks  []*Task
	ids    map[string]*Task
	owners map[string]*Task // output path -> producing task
}

// NewGraph creates a new empty graph
func NewGraph() *Graph {
	return &Graph{
		tasks:  make([]*Task, 0),
		ids:    make(map[string]*Task),
		owners: make(map[string]*Task),
	}
}

// AddTask adds a task to the graph. Every output path may be produced by a
// single task only.
func (g *Graph) AddTask(task *Task) error {
	if existing, ok := g.ids[task.ID()]; ok && existing == task {
		return fmt.Errorf("task with ID %s already exists", task.ID())
	}
	for _, out := range task.Outputs() {
		if owner, ok := g.owners[out.Path()]; ok {
			return &ConflictError{Output: out.Path(), First: owner, Second: task}
		}
	}

	g.tasks = append(g.tasks, task)
	g.ids[task.ID()] = task
	for _, out := range task.Outputs() {
		g.owners[out.Path()] = task
	}
	return nil
}

// GetTask returns a task by its ID
func (g *Graph) GetTask(id string) (*Task, error) {
	if t, ok := g.ids[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("task with ID %s not found", id)
}

// GetTasks returns all tasks in insertion order
func (g *Graph) GetTasks() []*Task {
	return g.tasks
}

// Len returns the number of tasks
func (g *Graph) Len() int {
	return len(g.tasks)
}

// Producer returns the task declaring path as output, or nil
func (g *Graph) Producer(path string) *Task {
	return g.owners[path]
}

// Dependencies returns the distinct producers of the inputs of task
func (g *Graph) Dependencies(task *Task) []*Task {
	var deps []*Task
	seen := make(map[*Task]bool)
	for _, in := range task.Inputs() {
		p, ok := g.owners[in.Path()]
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		deps = append(deps, p)
	}
	return deps
}

// Dependents returns every task that consumes an output of task, in
// insertion order
func (g *Graph) Dependents(task *Task) []*Task {
	var out []*Task
	for _, other := range g.tasks {
		for _, dep := range g.Dependencies(other) {
			if dep == task {
				out = append(out, other)
				break
			}
		}
	}
	return out
}

// TopologicalSort returns tasks in topological order (producers first).
// Independent tasks keep their insertion order.
func (g *Graph) TopologicalSort() ([]*Task, error) {
	// Kahn's algorithm over the producer -> consumer edges
	inDegree := make(map[*Task]int, len(g.tasks))
	dependents := make(map[*Task][]*Task, len(g.tasks))
	for _, task := range g.tasks {
		deps := g.Dependencies(task)
		inDegree[task] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], task)
		}
	}

	var queue []*Task
	for _, task := range g.tasks {
		if inDegree[task] == 0 {
			queue = append(queue, task)
		}
	}

	result := make([]*Task, 0, len(g.tasks))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, d := range dependents[current] {
			inDegree[d]--
			if inDegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(result) != len(g.tasks) {
		var cyclic []string
		for _, task := range g.tasks {
			if inDegree[task] > 0 {
				cyclic = append(cyclic, task.Name())
			}
		}
		return nil, &CycleError{Tasks: cyclic}
	}

	return result, nil
}
