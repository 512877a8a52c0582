package scheduler

// TaskDef is one entry of a declarative task list.
type TaskDef struct {
	Name      string
	DependsOn []string
	Action    Action
}

// Compile turns an immutable list of task definitions into a graph and
// validates it once, up front. Cycles and unknown dependencies are reported
// here, before any caller has a chance to run a task.
func Compile(defs []TaskDef) (*Graph, error) {
	g := NewGraph()
	for _, def := range defs {
		if err := g.Register(def.Name, def.DependsOn, def.Action); err != nil {
			return nil, err
		}
	}
	if _, err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
