package graph

import (
	"fmt"
	"strings"

	"github.com/msageha/taskpath/internal/model"
	"github.com/msageha/taskpath/internal/registry"
)

// ValidateEndpoints returns the first edge endpoint that is missing from the
// registry, in source order.
func ValidateEndpoints(adj *Adjacency, reg *registry.Registry, source string) error {
	for _, e := range adj.edges {
		for _, id := range [2]model.TaskID{e.Prerequisite, e.Dependent} {
			if !reg.Contains(id) {
				return &model.TaskNotFoundError{Task: id, Role: model.RoleEdge, Source: source, Line: e.Line}
			}
		}
	}
	return nil
}

type ValidationError struct {
	FieldPath string
	Message   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.FieldPath, e.Message)
}

type ValidationErrors struct {
	Errors []ValidationError
}

func (ve *ValidationErrors) Add(fieldPath, message string) {
	ve.Errors = append(ve.Errors, ValidationError{FieldPath: fieldPath, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}

func (ve *ValidationErrors) FormatStderr() string {
	var sb strings.Builder
	for _, e := range ve.Errors {
		fmt.Fprintf(&sb, "error: %s: %s\n", e.FieldPath, e.Message)
	}
	return sb.String()
}

// Is lets callers treat a failed check as a configuration problem.
func (ve *ValidationErrors) Is(target error) bool {
	return target == model.ErrConfiguration
}

// Check reports every unknown endpoint, self-reference and cycle in one pass.
// It returns nil when the relations are consistent with the registry.
func Check(adj *Adjacency, reg *registry.Registry, source string) *ValidationErrors {
	errs := &ValidationErrors{}
	for i, e := range adj.edges {
		field := fmt.Sprintf("%s[%d]", source, i)
		if e.Line > 0 {
			field = fmt.Sprintf("%s:%d", source, e.Line)
		}
		if !reg.Contains(e.Prerequisite) {
			errs.Add(field, fmt.Sprintf("references unknown prerequisite %q", string(e.Prerequisite)))
		}
		if !reg.Contains(e.Dependent) {
			errs.Add(field, fmt.Sprintf("references unknown dependent %q", string(e.Dependent)))
		}
		if e.Prerequisite == e.Dependent {
			errs.Add(field, fmt.Sprintf("task %q lists itself as a prerequisite", string(e.Dependent)))
		}
	}
	if _, err := TopologicalOrder(adj, reg); err != nil {
		errs.Add(source, err.Error())
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}
