// Package query is the front-end of a path query: it reads the relations,
// task list and query inputs, runs closure and path resolution, and reports
// the result.
package query

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/msageha/taskpath/internal/model"
)

// Query is a start/goal pair.
type Query struct {
	Start model.TaskID
	Goal  model.TaskID
}

type ParseOptions struct {
	Source    string
	Separator string
	Kind      model.IDKind
}

// ParseQuery reads "start: <id>" and "goal: <id>" lines in any order.
// Keys are case-insensitive and blank lines are skipped.
func ParseQuery(r io.Reader, opts ParseOptions) (Query, error) {
	sep := opts.Separator
	if sep == "" {
		sep = model.DefaultQuerySeparator
	}

	var q Query
	var haveStart, haveGoal bool

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		key, value, ok := strings.Cut(line, sep)
		if !ok {
			return Query{}, &model.FormatError{
				Source: opts.Source, Line: lineNo, Token: strings.TrimSpace(line),
				Msg: fmt.Sprintf("expected key%s value", sep),
			}
		}
		id, err := model.ParseTaskID(value, opts.Kind)
		if err != nil {
			return Query{}, &model.FormatError{Source: opts.Source, Line: lineNo, Token: strings.TrimSpace(value), Msg: err.Error()}
		}

		switch k := strings.ToLower(strings.TrimSpace(key)); k {
		case "start":
			if haveStart {
				return Query{}, &model.ConfigurationError{Source: opts.Source, Msg: fmt.Sprintf("line %d: start given more than once", lineNo)}
			}
			q.Start, haveStart = id, true
		case "goal":
			if haveGoal {
				return Query{}, &model.ConfigurationError{Source: opts.Source, Msg: fmt.Sprintf("line %d: goal given more than once", lineNo)}
			}
			q.Goal, haveGoal = id, true
		default:
			return Query{}, &model.FormatError{Source: opts.Source, Line: lineNo, Token: strings.TrimSpace(key), Msg: "unknown key (want start or goal)"}
		}
	}
	if err := scanner.Err(); err != nil {
		return Query{}, fmt.Errorf("read %s: %w", opts.Source, err)
	}

	switch {
	case !haveStart && !haveGoal:
		return Query{}, &model.ConfigurationError{Source: opts.Source, Msg: "query is empty"}
	case !haveStart:
		return Query{}, &model.ConfigurationError{Source: opts.Source, Msg: "start is missing"}
	case !haveGoal:
		return Query{}, &model.ConfigurationError{Source: opts.Source, Msg: "goal is missing"}
	}
	return q, nil
}
