package graph

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/msageha/taskpath/internal/model"
)

type ParseOptions struct {
	Source    string
	Separator string
	Kind      model.IDKind
}

func (o ParseOptions) separator() string {
	if o.Separator == "" {
		return model.DefaultEdgeSeparator
	}
	return o.Separator
}

// ParseRelations reads "prerequisite SEP dependent" records, one per line.
// Blank lines are skipped. The first malformed record aborts loading and
// nothing is returned.
func ParseRelations(r io.Reader, opts ParseOptions) (*Adjacency, error) {
	adj := NewAdjacency()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := adj.addRecord(line, lineNo, opts); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", opts.Source, err)
	}
	return adj, nil
}

// AddRecord parses one raw record and adds it. On error the adjacency is
// left exactly as it was.
func (a *Adjacency) AddRecord(line string, opts ParseOptions) error {
	return a.addRecord(line, 0, opts)
}

func (a *Adjacency) addRecord(line string, lineNo int, opts ParseOptions) error {
	e, err := ParseEdge(line, opts)
	if err != nil {
		if fe, ok := err.(*model.FormatError); ok {
			fe.Line = lineNo
		}
		return err
	}
	e.Line = lineNo
	a.Add(e)
	return nil
}

// ParseEdge parses a single "prerequisite SEP dependent" record.
func ParseEdge(line string, opts ParseOptions) (Edge, error) {
	sep := opts.separator()
	parts := strings.Split(line, sep)
	if len(parts) != 2 {
		return Edge{}, &model.FormatError{
			Source: opts.Source,
			Token:  strings.TrimSpace(line),
			Msg:    fmt.Sprintf("expected exactly two tokens separated by %q, got %d", sep, len(parts)),
		}
	}

	prereq, err := model.ParseTaskID(parts[0], opts.Kind)
	if err != nil {
		return Edge{}, &model.FormatError{Source: opts.Source, Token: strings.TrimSpace(parts[0]), Msg: err.Error()}
	}
	dependent, err := model.ParseTaskID(parts[1], opts.Kind)
	if err != nil {
		return Edge{}, &model.FormatError{Source: opts.Source, Token: strings.TrimSpace(parts[1]), Msg: err.Error()}
	}
	return Edge{Prerequisite: prereq, Dependent: dependent}, nil
}
