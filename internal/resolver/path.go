package resolver

import (
	"github.com/msageha/taskpath/internal/model"
)

// ResolvePath walks prerequisite edges breadth-first from goal and returns
// the tasks to complete, in order, to get from the closure's start to goal.
//
// Every dequeued task is appended to the output. When a prerequisite is
// already complete (part of the start closure or visited earlier in this
// walk) and not yet in the output, the start task is appended as a marker
// that the closure boundary was reached. The output is reversed at the end
// so it reads start→goal; start can therefore appear more than once.
//
// If goal does not transitively require start there is no route and the
// result is []TaskID{goal}. If start == goal the result is []TaskID{start}.
// Use RouteFound to tell the two apart.
func ResolvePath(g Graph, goal model.TaskID, c *Closure) ([]model.TaskID, error) {
	if c == nil || c.state == nil {
		return nil, &model.ConfigurationError{Msg: "path resolution requires a computed closure"}
	}
	if c.consumed {
		return nil, ErrClosureConsumed
	}
	state := c.state
	reg := state.Registry()
	if !reg.Contains(goal) {
		return nil, &model.TaskNotFoundError{Task: goal, Role: model.RoleGoal}
	}
	c.consumed = true

	start := c.start
	if start == goal {
		return []model.TaskID{start}, nil
	}

	state.MarkComplete(goal)
	var path []model.TaskID
	inPath := make(map[model.TaskID]bool)
	appendPath := func(t model.TaskID) {
		path = append(path, t)
		inPath[t] = true
	}

	reachedStart := false
	q := newQueue(goal)
	for q.len() > 0 {
		s, _ := q.pop()
		appendPath(s)
		for _, p := range g.Prerequisites(s) {
			if !reg.Contains(p) {
				return nil, &model.TaskNotFoundError{Task: p, Role: model.RoleEdge}
			}
			if p == start {
				reachedStart = true
			}
			if !state.IsComplete(p) {
				state.MarkComplete(p)
				q.push(p)
				continue
			}
			if !inPath[p] {
				appendPath(start)
			}
		}
	}

	if !reachedStart {
		return []model.TaskID{goal}, nil
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// RouteFound reports whether path is a real route rather than the
// degenerate no-route result.
func RouteFound(path []model.TaskID, start, goal model.TaskID) bool {
	switch len(path) {
	case 0:
		return false
	case 1:
		return start == goal && path[0] == goal
	default:
		return path[len(path)-1] == goal
	}
}
