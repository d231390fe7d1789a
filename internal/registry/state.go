package registry

import "github.com/msageha/taskpath/internal/model"

// State is the completion flag of every registered task for one query.
// It is not safe for concurrent use; a query owns its state exclusively.
type State struct {
	reg      *Registry
	complete []bool
}

// Registry returns the universe this state is defined over.
func (s *State) Registry() *Registry {
	return s.reg
}

// MarkComplete sets the flag for id. It reports false if id is unknown.
func (s *State) MarkComplete(id model.TaskID) bool {
	i, ok := s.reg.index[id]
	if !ok {
		return false
	}
	s.complete[i] = true
	return true
}

// IsComplete reports the flag for id; unknown ids are never complete.
func (s *State) IsComplete(id model.TaskID) bool {
	i, ok := s.reg.index[id]
	return ok && s.complete[i]
}

// Completed lists the complete tasks in registration order.
func (s *State) Completed() []model.TaskID {
	var out []model.TaskID
	for i, done := range s.complete {
		if done {
			out = append(out, s.reg.ids[i])
		}
	}
	return out
}

// Reset marks every task incomplete.
func (s *State) Reset() {
	clear(s.complete)
}
