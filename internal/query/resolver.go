package query

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/msageha/taskpath/internal/graph"
	"github.com/msageha/taskpath/internal/model"
	"github.com/msageha/taskpath/internal/registry"
	"github.com/msageha/taskpath/internal/resolver"
)

const component = "query"

// Audit event types.
const (
	EventQueryResolved = "query_resolved"
	EventQueryFailed   = "query_failed"
)

// Inputs names the three input files of a query.
type Inputs struct {
	RelationsFile string
	TasksFile     string
	QueryFile     string
}

// InputsFromConfig resolves the configured input paths against the project root.
func InputsFromConfig(cfg model.Config) Inputs {
	return Inputs{
		RelationsFile: cfg.ResolvePath(cfg.Inputs.RelationsFile),
		TasksFile:     cfg.ResolvePath(cfg.Inputs.TasksFile),
		QueryFile:     cfg.ResolvePath(cfg.Inputs.QueryFile),
	}
}

// AuditSink records one entry per query.
type AuditSink interface {
	Log(eventType string, details map[string]interface{}) error
}

// Resolver runs queries. Each call builds fresh graph and completion state;
// nothing is shared between calls.
type Resolver struct {
	cfg      model.Config
	logger   *log.Logger
	logLevel LogLevel
	audit    AuditSink
	now      func() time.Time
}

// NewResolver creates a Resolver. Unset config fields take their defaults.
func NewResolver(cfg model.Config, logger *log.Logger) *Resolver {
	cfg.ApplyDefaults()
	return &Resolver{
		cfg:      cfg,
		logger:   logger,
		logLevel: ParseLogLevel(cfg.Logging.Level),
		now:      time.Now,
	}
}

// SetAuditSink wires the audit log. Must be called before the first query.
func (r *Resolver) SetAuditSink(a AuditSink) {
	r.audit = a
}

// Resolve answers the start→goal query described by in.
func (r *Resolver) Resolve(in Inputs) (*model.QueryResult, error) {
	queryID, err := model.GenerateID(model.IDTypeQuery)
	if err != nil {
		return nil, err
	}

	result, q, err := r.resolve(queryID, in)
	r.record(queryID, q, result, err)
	if err != nil {
		r.log(LogLevelWarn, "query_failed id=%s kind=%s error=%v", queryID, ErrorKind(err), err)
		return nil, err
	}
	r.log(LogLevelInfo, "query_resolved id=%s start=%s goal=%s path_len=%d route_found=%t",
		queryID, result.Start, result.Goal, len(result.Path), result.RouteFound)
	return result, nil
}

func (r *Resolver) resolve(queryID string, in Inputs) (*model.QueryResult, Query, error) {
	w, err := r.load(in, true)
	if err != nil {
		return nil, Query{}, err
	}
	if err := w.validateQuery(in); err != nil {
		return nil, w.q, err
	}

	c, err := resolver.ComputeClosure(w.adj, w.q.Start, w.reg.NewState())
	if err != nil {
		return nil, w.q, err
	}
	members := c.Members()
	r.log(LogLevelDebug, "closure id=%s start=%s size=%d", queryID, w.q.Start, len(members))

	path, err := resolver.ResolvePath(w.adj, w.q.Goal, c)
	if err != nil {
		return nil, w.q, err
	}

	return &model.QueryResult{
		SchemaVersion: model.QueryResultSchemaVersion,
		FileType:      model.QueryResultFileType,
		QueryID:       queryID,
		Start:         w.q.Start,
		Goal:          w.q.Goal,
		Path:          path,
		RouteFound:    resolver.RouteFound(path, w.q.Start, w.q.Goal),
		Closure:       members,
		TaskCount:     w.reg.Len(),
		EdgeCount:     w.adj.EdgeCount(),
		ResolvedAt:    r.now().UTC().Format(time.RFC3339),
	}, w.q, nil
}

// Closure returns the start task of the query and its prerequisite closure.
func (r *Resolver) Closure(in Inputs) (model.TaskID, []model.TaskID, error) {
	w, err := r.load(in, true)
	if err != nil {
		return "", nil, err
	}
	if !w.reg.Contains(w.q.Start) {
		return "", nil, &model.TaskNotFoundError{Task: w.q.Start, Role: model.RoleStart, Source: filepath.Base(in.QueryFile)}
	}
	if err := graph.ValidateEndpoints(w.adj, w.reg, filepath.Base(in.RelationsFile)); err != nil {
		return "", nil, err
	}

	c, err := resolver.ComputeClosure(w.adj, w.q.Start, w.reg.NewState())
	if err != nil {
		return "", nil, err
	}
	r.log(LogLevelInfo, "closure start=%s size=%d", w.q.Start, len(c.Members()))
	return w.q.Start, c.Members(), nil
}

// CheckReport summarises a consistent relations file.
type CheckReport struct {
	Tasks int
	Edges int
	Order []model.TaskID
}

// Check loads the relations and task list and reports every inconsistency
// between them, including cycles.
func (r *Resolver) Check(in Inputs) (*CheckReport, error) {
	w, err := r.load(in, false)
	if err != nil {
		return nil, err
	}
	if verrs := graph.Check(w.adj, w.reg, filepath.Base(in.RelationsFile)); verrs != nil {
		r.log(LogLevelWarn, "check_failed problems=%d", len(verrs.Errors))
		return nil, verrs
	}
	order, err := graph.TopologicalOrder(w.adj, w.reg)
	if err != nil {
		return nil, err
	}
	r.log(LogLevelInfo, "check_ok tasks=%d edges=%d", w.reg.Len(), w.adj.EdgeCount())
	return &CheckReport{Tasks: w.reg.Len(), Edges: w.adj.EdgeCount(), Order: order}, nil
}

type workspace struct {
	adj *graph.Adjacency
	reg *registry.Registry
	q   Query
}

// validateQuery checks every referenced task before any traversal starts.
func (w *workspace) validateQuery(in Inputs) error {
	src := filepath.Base(in.QueryFile)
	if !w.reg.Contains(w.q.Start) {
		return &model.TaskNotFoundError{Task: w.q.Start, Role: model.RoleStart, Source: src}
	}
	if !w.reg.Contains(w.q.Goal) {
		return &model.TaskNotFoundError{Task: w.q.Goal, Role: model.RoleGoal, Source: src}
	}
	return graph.ValidateEndpoints(w.adj, w.reg, filepath.Base(in.RelationsFile))
}

// load reads every input file. Each file is closed before load returns.
func (r *Resolver) load(in Inputs, withQuery bool) (*workspace, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	kind := r.cfg.Inputs.IDKind
	w := &workspace{}

	err := readFile(in.TasksFile, func(f io.Reader) error {
		reg, err := registry.ParseTaskList(f, registry.ParseOptions{
			Source:    filepath.Base(in.TasksFile),
			Delimiter: r.cfg.Inputs.TaskDelimiter,
			Kind:      kind,
		})
		w.reg = reg
		return err
	})
	if err != nil {
		return nil, err
	}

	err = readFile(in.RelationsFile, func(f io.Reader) error {
		adj, err := graph.ParseRelations(f, graph.ParseOptions{
			Source:    filepath.Base(in.RelationsFile),
			Separator: r.cfg.Inputs.EdgeSeparator,
			Kind:      kind,
		})
		w.adj = adj
		return err
	})
	if err != nil {
		return nil, err
	}

	if withQuery {
		err = readFile(in.QueryFile, func(f io.Reader) error {
			q, err := ParseQuery(f, ParseOptions{
				Source:    filepath.Base(in.QueryFile),
				Separator: r.cfg.Inputs.QuerySeparator,
				Kind:      kind,
			})
			w.q = q
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	r.log(LogLevelDebug, "loaded tasks=%d dependents=%d edges=%d", w.reg.Len(), w.adj.Len(), w.adj.EdgeCount())
	return w, nil
}

func readFile(path string, parse func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()
	return parse(f)
}

func (r *Resolver) record(queryID string, q Query, result *model.QueryResult, err error) {
	if r.audit == nil {
		return
	}
	details := map[string]interface{}{
		"query_id": queryID,
		"start":    string(q.Start),
		"goal":     string(q.Goal),
	}
	eventType := EventQueryResolved
	if err != nil {
		eventType = EventQueryFailed
		details["error"] = err.Error()
		details["error_kind"] = ErrorKind(err)
	} else {
		details["path"] = model.JoinTaskIDs(result.Path, ",")
		details["path_length"] = len(result.Path)
		details["route_found"] = result.RouteFound
	}
	if aerr := r.audit.Log(eventType, details); aerr != nil {
		r.log(LogLevelWarn, "audit_write_failed id=%s error=%v", queryID, aerr)
	}
}

// ErrorKind classifies err for logs and exit codes.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrFormat):
		return "format"
	case errors.Is(err, model.ErrTaskNotFound):
		return "task_not_found"
	case errors.Is(err, model.ErrConfiguration):
		return "configuration"
	default:
		return "other"
	}
}

func (r *Resolver) log(level LogLevel, format string, args ...any) {
	Logf(r.logger, r.logLevel, level, component, format, args...)
}
