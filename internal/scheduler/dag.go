package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"

	"github.com/aristath/frontbuild/internal/builderrors"
	"github.com/aristath/frontbuild/internal/events"
)

// Graph is a registry of named tasks and their dependencies.
type Graph struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by name
	order      []string            // Registration order, for deterministic iteration
	dependents map[string][]string // Maps name -> tasks that depend on it
	bus        *events.EventBus
	limit      int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// SetEventBus makes every run publish task lifecycle events on bus.
func (g *Graph) SetEventBus(bus *events.EventBus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bus = bus
}

// SetConcurrencyLimit bounds how many task actions run at once. n <= 0 means unbounded.
func (g *Graph) SetConcurrencyLimit(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limit = n
}

// Register adds a task. Returns a GraphError if the name is already registered.
// Dependencies need not be registered yet; they are checked when the graph runs.
func (g *Graph) Register(name string, deps []string, action Action) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[name]; exists {
		return &builderrors.GraphError{Kind: "duplicate", Task: name}
	}

	task := &Task{
		Name:      name,
		DependsOn: append([]string(nil), deps...),
		Action:    action,
	}
	g.tasks[name] = task
	g.order = append(g.order, name)

	for _, dep := range task.DependsOn {
		g.dependents[dep] = append(g.dependents[dep], name)
	}

	return nil
}

// Validate checks the whole graph: every dependency must be registered and there
// must be no cycle. Returns the task names in a valid execution order.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.sortLocked(g.order)
}

// Closure returns the dependency closure of name (name included) in execution
// order, or a GraphError if name is unknown, a dependency is missing, or the
// closure contains a cycle.
func (g *Graph) Closure(name string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.closureLocked(name)
}

func (g *Graph) closureLocked(name string) ([]string, error) {
	if _, ok := g.tasks[name]; !ok {
		return nil, &builderrors.GraphError{Kind: "unknown", Task: name}
	}

	seen := map[string]bool{name: true}
	members := []string{name}
	for i := 0; i < len(members); i++ {
		task := g.tasks[members[i]]
		for _, dep := range task.DependsOn {
			if _, ok := g.tasks[dep]; !ok {
				return nil, &builderrors.GraphError{Kind: "missing", Task: task.Name, Dep: dep}
			}
			if !seen[dep] {
				seen[dep] = true
				members = append(members, dep)
			}
		}
	}

	return g.sortLocked(members)
}

// sortLocked topologically sorts the given members using gammazero/toposort.
func (g *Graph) sortLocked(members []string) ([]string, error) {
	// Verify all dependencies exist before sorting
	for _, name := range members {
		for _, dep := range g.tasks[name].DependsOn {
			if _, exists := g.tasks[dep]; !exists {
				return nil, &builderrors.GraphError{Kind: "missing", Task: name, Dep: dep}
			}
		}
	}

	// Stable input keeps the resulting order deterministic between runs.
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)

	var edges []toposort.Edge
	for _, name := range sorted {
		task := g.tasks[name]
		if len(task.DependsOn) == 0 {
			// Edge from nil keeps dependency-free tasks in the result
			edges = append(edges, toposort.Edge{nil, name})
			continue
		}
		deps := append([]string(nil), task.DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if dep == name {
				return nil, &builderrors.GraphError{Kind: "cycle", Task: name, Err: fmt.Errorf("%s depends on itself", name)}
			}
			// Edge (dep, name) means dep must come before name
			edges = append(edges, toposort.Edge{dep, name})
		}
	}

	result, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &builderrors.GraphError{Kind: "cycle", Err: err}
	}

	order := make([]string, 0, len(members))
	for _, id := range result {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(members) {
		return nil, &builderrors.GraphError{
			Kind: "cycle",
			Err:  fmt.Errorf("sorted %d of %d tasks", len(order), len(members)),
		}
	}

	return order, nil
}

// Get returns a copy of the task by name.
func (g *Graph) Get(name string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[name]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in registration order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.tasks))
	for _, name := range g.order {
		tasks = append(tasks, cloneTask(g.tasks[name]))
	}
	return tasks
}

// Dependents returns the names of tasks that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]string(nil), g.dependents[name]...)
}

// record stores the outcome of a run on the registered task.
func (g *Graph) record(outcome *Task) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if task, ok := g.tasks[outcome.Name]; ok {
		task.Status = outcome.Status
		task.Error = outcome.Error
		task.Duration = outcome.Duration
	}
}
