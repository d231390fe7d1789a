// Package graph loads prerequisite relations into an adjacency map keyed by
// dependent task and provides structural checks over it.
package graph

import "github.com/msageha/taskpath/internal/model"

// Edge states that Prerequisite must be complete before Dependent can start.
type Edge struct {
	Prerequisite model.TaskID
	Dependent    model.TaskID
	Line         int // source line, 0 when built programmatically
}

// Adjacency maps each dependent to its direct prerequisites in source order.
// Duplicate edges are kept; traversals guard against revisiting.
type Adjacency struct {
	prereqs    map[model.TaskID][]model.TaskID
	dependents []model.TaskID // first-seen order
	edges      []Edge
}

func NewAdjacency() *Adjacency {
	return &Adjacency{prereqs: make(map[model.TaskID][]model.TaskID)}
}

// Add appends e to its dependent's prerequisite list.
func (a *Adjacency) Add(e Edge) {
	if _, seen := a.prereqs[e.Dependent]; !seen {
		a.dependents = append(a.dependents, e.Dependent)
	}
	a.prereqs[e.Dependent] = append(a.prereqs[e.Dependent], e.Prerequisite)
	a.edges = append(a.edges, e)
}

// Prerequisites returns the direct prerequisites of t. A task with no entry
// has none. The returned slice must not be modified.
func (a *Adjacency) Prerequisites(t model.TaskID) []model.TaskID {
	return a.prereqs[t]
}

// Dependents lists every task that has at least one prerequisite.
func (a *Adjacency) Dependents() []model.TaskID {
	out := make([]model.TaskID, len(a.dependents))
	copy(out, a.dependents)
	return out
}

// Edges returns every loaded edge in source order.
func (a *Adjacency) Edges() []Edge {
	out := make([]Edge, len(a.edges))
	copy(out, a.edges)
	return out
}

// Len is the number of dependents.
func (a *Adjacency) Len() int {
	return len(a.dependents)
}

func (a *Adjacency) EdgeCount() int {
	return len(a.edges)
}
