// Package resolver computes prerequisite closures and start→goal paths over
// a prerequisite graph.
//
// A query runs in two strictly ordered steps over one completion state:
//
//	c, err := resolver.ComputeClosure(g, start, reg.NewState())
//	path, err := resolver.ResolvePath(g, goal, c)
//
// ComputeClosure marks every transitive prerequisite of start complete and
// returns a Closure that owns the state. ResolvePath only accepts that
// Closure: it treats "complete" as "already visited" and mutates the state
// further, so a Closure can be resolved once.
package resolver

import (
	"errors"

	"github.com/msageha/taskpath/internal/model"
	"github.com/msageha/taskpath/internal/registry"
)

// Graph exposes the direct prerequisites of a task.
type Graph interface {
	Prerequisites(t model.TaskID) []model.TaskID
}

var ErrClosureConsumed = errors.New("closure already consumed by ResolvePath")

// Closure is the completion state after closure computation from Start.
type Closure struct {
	start    model.TaskID
	state    *registry.State
	members  []model.TaskID
	consumed bool
}

// Start is the task the closure was seeded with.
func (c *Closure) Start() model.TaskID {
	return c.start
}

// Members lists start and all of its transitive prerequisites in registry
// order, as they were when the closure was computed.
func (c *Closure) Members() []model.TaskID {
	out := make([]model.TaskID, len(c.members))
	copy(out, c.members)
	return out
}

// Consumed reports whether ResolvePath has taken ownership of the state.
func (c *Closure) Consumed() bool {
	return c.consumed
}

// ComputeClosure marks start and every task it transitively requires as
// complete in state, by breadth-first traversal of prerequisite edges.
// Tasks unrelated to start are left untouched. The caller hands exclusive
// ownership of state to the returned Closure.
func ComputeClosure(g Graph, start model.TaskID, state *registry.State) (*Closure, error) {
	reg := state.Registry()
	if !reg.Contains(start) {
		return nil, &model.TaskNotFoundError{Task: start, Role: model.RoleStart}
	}

	state.MarkComplete(start)
	q := newQueue(start)
	for q.len() > 0 {
		s, _ := q.pop()
		for _, p := range g.Prerequisites(s) {
			if state.IsComplete(p) {
				continue
			}
			if !state.MarkComplete(p) {
				return nil, &model.TaskNotFoundError{Task: p, Role: model.RoleEdge}
			}
			q.push(p)
		}
	}

	return &Closure{
		start:   start,
		state:   state,
		members: state.Completed(),
	}, nil
}
