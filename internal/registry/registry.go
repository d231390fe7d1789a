// Package registry holds the universe of valid task identifiers and the
// per-query completion state over that universe.
package registry

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/msageha/taskpath/internal/model"
)

// Registry is the ordered, de-duplicated set of valid task identifiers.
// It is immutable after construction and safe for concurrent reads.
type Registry struct {
	ids   []model.TaskID
	index map[model.TaskID]int
}

// ParseOptions controls how a task list is read.
type ParseOptions struct {
	Source    string // used in error messages
	Delimiter string
	Kind      model.IDKind
}

// New builds a registry from ids, keeping the first position of any
// duplicate. An empty list is a configuration error.
func New(ids []model.TaskID) (*Registry, error) {
	if len(ids) == 0 {
		return nil, &model.ConfigurationError{Msg: "task list is empty"}
	}
	r := &Registry{
		ids:   make([]model.TaskID, 0, len(ids)),
		index: make(map[model.TaskID]int, len(ids)),
	}
	for _, id := range ids {
		if _, dup := r.index[id]; dup {
			continue
		}
		r.index[id] = len(r.ids)
		r.ids = append(r.ids, id)
	}
	return r, nil
}

// ParseTaskList reads the first non-blank line of r as a delimited list of
// task identifiers. Any further lines are ignored.
func ParseTaskList(r io.Reader, opts ParseOptions) (*Registry, error) {
	delim := opts.Delimiter
	if delim == "" {
		delim = model.DefaultTaskDelimiter
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	var line string
	for scanner.Scan() {
		lineNo++
		if strings.TrimSpace(scanner.Text()) != "" {
			line = scanner.Text()
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", opts.Source, err)
	}
	if line == "" {
		return nil, &model.ConfigurationError{Source: opts.Source, Msg: "task list is empty"}
	}

	tokens := strings.Split(line, delim)
	ids := make([]model.TaskID, 0, len(tokens))
	for _, tok := range tokens {
		id, err := model.ParseTaskID(tok, opts.Kind)
		if err != nil {
			return nil, &model.FormatError{Source: opts.Source, Line: lineNo, Token: tok, Msg: err.Error()}
		}
		ids = append(ids, id)
	}

	return New(ids)
}

func (r *Registry) Contains(id model.TaskID) bool {
	_, ok := r.index[id]
	return ok
}

// IDs returns a copy of the identifiers in registration order.
func (r *Registry) IDs() []model.TaskID {
	out := make([]model.TaskID, len(r.ids))
	copy(out, r.ids)
	return out
}

func (r *Registry) Len() int {
	return len(r.ids)
}

// NewState returns a fresh completion state with every task incomplete.
func (r *Registry) NewState() *State {
	return &State{
		reg:      r,
		complete: make([]bool, len(r.ids)),
	}
}
