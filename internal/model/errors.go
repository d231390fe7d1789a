package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFormat        = errors.New("format error")
	ErrConfiguration = errors.New("configuration error")
	ErrTaskNotFound  = errors.New("task not found")
)

// FormatError reports a malformed input line or token.
type FormatError struct {
	Source string // file name or logical input, e.g. "relations"
	Line   int    // 1-based; 0 when unknown
	Token  string
	Msg    string
}

func (e *FormatError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrFormat.Error())
	if e.Source != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Source)
		if e.Line > 0 {
			fmt.Fprintf(&sb, ":%d", e.Line)
		}
	}
	if e.Token != "" {
		fmt.Fprintf(&sb, ": token %q", e.Token)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	return sb.String()
}

func (e *FormatError) Unwrap() error { return ErrFormat }

func (e *FormatError) FormatStderr() string {
	return fmt.Sprintf("error: %s\n", e.Error())
}

// ConfigurationError reports empty or contradictory inputs.
type ConfigurationError struct {
	Source string
	Msg    string
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Source, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func (e *ConfigurationError) FormatStderr() string {
	return fmt.Sprintf("error: %s\n", e.Error())
}

// TaskRole names where an unknown task identifier was referenced.
type TaskRole string

const (
	RoleStart TaskRole = "start"
	RoleGoal  TaskRole = "goal"
	RoleEdge  TaskRole = "edge endpoint"
)

// TaskNotFoundError reports a task outside the registered universe.
// When Role is RoleEdge it also matches ErrConfiguration: the relations
// file and the task list contradict each other.
type TaskNotFoundError struct {
	Task   TaskID
	Role   TaskRole
	Source string
	Line   int
}

func (e *TaskNotFoundError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s %q is not in the task list", ErrTaskNotFound, e.Role, string(e.Task))
	if e.Source != "" {
		fmt.Fprintf(&sb, " (%s", e.Source)
		if e.Line > 0 {
			fmt.Fprintf(&sb, ":%d", e.Line)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *TaskNotFoundError) Is(target error) bool {
	if target == ErrTaskNotFound {
		return true
	}
	return target == ErrConfiguration && e.Role == RoleEdge
}

func (e *TaskNotFoundError) FormatStderr() string {
	return fmt.Sprintf("error: %s\n", e.Error())
}
