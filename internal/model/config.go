// Package model defines the data structures for taskpath's configuration, task identifiers and query results.
package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	Taskpath TaskpathConfig `yaml:"taskpath"`
	Inputs   InputsConfig   `yaml:"inputs"`
	Output   OutputConfig   `yaml:"output"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type TaskpathConfig struct {
	Version     string `yaml:"version"`
	Created     string `yaml:"created"`
	ProjectRoot string `yaml:"project_root"`
}

type InputsConfig struct {
	RelationsFile  string `yaml:"relations_file"`
	TasksFile      string `yaml:"tasks_file"`
	QueryFile      string `yaml:"query_file"`
	IDKind         IDKind `yaml:"id_kind"`
	EdgeSeparator  string `yaml:"edge_separator"`
	TaskDelimiter  string `yaml:"task_delimiter"`
	QuerySeparator string `yaml:"query_separator"`
}

type OutputConfig struct {
	Format OutputFormat `yaml:"format"`
	Joiner string       `yaml:"joiner"`
	Path   string       `yaml:"path"` // empty writes to stdout
}

type WatcherConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type AuditConfig struct {
	Enabled      bool  `yaml:"enabled"`
	MaxSizeBytes int64 `yaml:"max_size_bytes"` // 0 uses the audit logger default
	Checksum     bool  `yaml:"checksum"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
)

const (
	DefaultRelationsFile  = "relations.txt"
	DefaultTasksFile      = "task_ids.txt"
	DefaultQueryFile      = "question.txt"
	DefaultEdgeSeparator  = "->"
	DefaultTaskDelimiter  = ","
	DefaultQuerySeparator = ":"
	DefaultJoiner         = ","
	DefaultDebounceMs     = 200
)

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	in := &c.Inputs
	if in.RelationsFile == "" {
		in.RelationsFile = DefaultRelationsFile
	}
	if in.TasksFile == "" {
		in.TasksFile = DefaultTasksFile
	}
	if in.QueryFile == "" {
		in.QueryFile = DefaultQueryFile
	}
	if in.IDKind == "" {
		in.IDKind = IDKindInt
	}
	if in.EdgeSeparator == "" {
		in.EdgeSeparator = DefaultEdgeSeparator
	}
	if in.TaskDelimiter == "" {
		in.TaskDelimiter = DefaultTaskDelimiter
	}
	if in.QuerySeparator == "" {
		in.QuerySeparator = DefaultQuerySeparator
	}
	if c.Output.Format == "" {
		c.Output.Format = OutputFormatText
	}
	if c.Output.Joiner == "" {
		c.Output.Joiner = DefaultJoiner
	}
	if c.Watcher.DebounceMs <= 0 {
		c.Watcher.DebounceMs = DefaultDebounceMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports unsupported values. It expects ApplyDefaults to have run.
func (c *Config) Validate() error {
	var problems []string
	switch c.Inputs.IDKind {
	case IDKindInt, IDKindString:
	default:
		problems = append(problems, fmt.Sprintf("inputs.id_kind: unsupported value %q (want int or string)", c.Inputs.IDKind))
	}
	switch c.Output.Format {
	case OutputFormatText, OutputFormatYAML, OutputFormatJSON:
	default:
		problems = append(problems, fmt.Sprintf("output.format: unsupported value %q (want text, yaml or json)", c.Output.Format))
	}
	if strings.TrimSpace(c.Inputs.EdgeSeparator) == "" {
		problems = append(problems, "inputs.edge_separator: must not be blank")
	}
	if strings.TrimSpace(c.Inputs.TaskDelimiter) == "" {
		problems = append(problems, "inputs.task_delimiter: must not be blank")
	}
	if strings.TrimSpace(c.Inputs.QuerySeparator) == "" {
		problems = append(problems, "inputs.query_separator: must not be blank")
	}
	if c.Audit.MaxSizeBytes < 0 {
		problems = append(problems, "audit.max_size_bytes: must not be negative")
	}
	if len(problems) > 0 {
		return &ConfigurationError{Source: "config.yaml", Msg: strings.Join(problems, "; ")}
	}
	return nil
}

// ResolvePath makes a relative input path absolute against the project root.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Taskpath.ProjectRoot == "" {
		return p
	}
	return filepath.Join(c.Taskpath.ProjectRoot, p)
}
