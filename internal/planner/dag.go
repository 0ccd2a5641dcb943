package planner

import (
	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/model"
)

// validateDAG checks a Task's steps against the plan's validation rules:
// every dependency resolves to a known step, no directed cycle (DFS with
// explicit white/grey/black marks instead of a two-map visited/recStack
// encoding), and at least one root step.
func validateDAG(steps []*model.Step) error {
	byID := make(map[string]*model.Step, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	hasRoot := false
	for _, s := range steps {
		if len(s.Dependencies) == 0 {
			hasRoot = true
		}
		for _, dep := range s.Dependencies {
			if _, ok := byID[dep]; !ok {
				return coreapi.NewFrameworkError("planner.validateDAG", "plan", coreapi.ErrUnknownDependency).WithID(s.ID)
			}
		}
	}
	if !hasRoot {
		return coreapi.NewFrameworkError("planner.validateDAG", "plan", coreapi.ErrNoRootStep)
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(steps))
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		for _, dep := range byID[id].Dependencies {
			switch color[dep] {
			case grey:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for _, s := range steps {
		if color[s.ID] == white {
			if visit(s.ID) {
				return coreapi.NewFrameworkError("planner.validateDAG", "plan", coreapi.ErrPlanCyclic).WithID(s.ID)
			}
		}
	}
	return nil
}

// topologicalOrder returns step ids in a deterministic dependency order
// using Kahn's algorithm over in-degree, breaking ties by input order for
// determinism.
func topologicalOrder(steps []*model.Step) []string {
	byID := make(map[string]*model.Step, len(steps))
	dependents := make(map[string][]string, len(steps))
	inDegree := make(map[string]int, len(steps))
	order := make([]string, 0, len(steps))

	for _, s := range steps {
		byID[s.ID] = s
		inDegree[s.ID] = len(s.Dependencies)
		order = append(order, s.ID)
	}
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	var queue []string
	for _, id := range order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var result []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)
		for _, dep := range dependents[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	return result
}
