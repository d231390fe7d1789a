package graph

import (
	"fmt"
	"strings"

	"github.com/msageha/taskpath/internal/model"
	"github.com/msageha/taskpath/internal/registry"
)

// TopologicalOrder orders the registry so every prerequisite precedes its
// dependents, using Kahn's algorithm. Ties keep registration order.
// On a cycle it returns a ConfigurationError naming the cycle path.
func TopologicalOrder(adj *Adjacency, reg *registry.Registry) ([]model.TaskID, error) {
	names := reg.IDs()
	if len(names) == 0 {
		return nil, nil
	}

	// in-degree counts prerequisites; forward maps prerequisite → dependents
	inDegree := make(map[model.TaskID]int, len(names))
	forward := make(map[model.TaskID][]model.TaskID)
	for _, n := range names {
		inDegree[n] = 0
	}
	for _, e := range adj.edges {
		if !reg.Contains(e.Prerequisite) || !reg.Contains(e.Dependent) {
			continue // reported by ValidateEndpoints
		}
		inDegree[e.Dependent]++
		forward[e.Prerequisite] = append(forward[e.Prerequisite], e.Dependent)
	}

	q := make([]model.TaskID, 0, len(names))
	for _, n := range names {
		if inDegree[n] == 0 {
			q = append(q, n)
		}
	}

	sorted := make([]model.TaskID, 0, len(names))
	for head := 0; head < len(q); head++ {
		node := q[head]
		sorted = append(sorted, node)
		for _, dependent := range forward[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				q = append(q, dependent)
			}
		}
	}

	if len(sorted) == len(names) {
		return sorted, nil
	}

	cyclePath := findCyclePath(names, adj, inDegree)
	parts := make([]string, len(cyclePath))
	for i, id := range cyclePath {
		parts[i] = string(id)
	}
	return nil, &model.ConfigurationError{
		Msg: fmt.Sprintf("circular dependency detected: %s", strings.Join(parts, " -> ")),
	}
}

// findCyclePath walks prerequisite edges among nodes left with non-zero
// in-degree and returns one cycle, first node repeated at the end.
func findCyclePath(names []model.TaskID, adj *Adjacency, inDegree map[model.TaskID]int) []model.TaskID {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // finished
	)

	color := make(map[model.TaskID]int)
	parent := make(map[model.TaskID]model.TaskID)

	var cyclePath []model.TaskID

	var dfs func(node model.TaskID) bool
	dfs = func(node model.TaskID) bool {
		color[node] = gray
		for _, dep := range adj.Prerequisites(node) {
			if color[dep] == gray {
				cyclePath = []model.TaskID{dep}
				for current := node; current != dep; current = parent[current] {
					cyclePath = append(cyclePath, current)
				}
				cyclePath = append(cyclePath, dep)
				for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
					cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, n := range names {
		if inDegree[n] > 0 && color[n] == white {
			if dfs(n) {
				return cyclePath
			}
		}
	}

	return []model.TaskID{"(cycle detected)"}
}
