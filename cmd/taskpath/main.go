package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/msageha/taskpath/internal/audit"
	"github.com/msageha/taskpath/internal/control"
	"github.com/msageha/taskpath/internal/model"
	"github.com/msageha/taskpath/internal/query"
	"github.com/msageha/taskpath/internal/report"
	"github.com/msageha/taskpath/internal/setup"
	"github.com/msageha/taskpath/internal/watch"
)

const version = "1.0.0"

// Exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitFormat        = 2
	exitConfiguration = 3
	exitTaskNotFound  = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitFailure
	}

	switch args[0] {
	case "setup":
		return runSetup(args[1:], stdout, stderr)
	case "resolve":
		return runResolve(args[1:], stdout, stderr)
	case "closure":
		return runClosure(args[1:], stdout, stderr)
	case "check":
		return runCheck(args[1:], stdout, stderr)
	case "watch":
		return runWatch(args[1:], stdout, stderr)
	case "audit":
		return runAudit(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "taskpath %s\n", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return exitFailure
	}
}

func runSetup(args []string, stdout, stderr io.Writer) int {
	var dir string
	var opts setup.Options
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name":
			if i+1 >= len(args) {
				fmt.Fprintln(stderr, "--name requires a value")
				return exitFailure
			}
			i++
			opts.Name = args[i]
		case "--example":
			opts.Example = true
		default:
			if dir != "" {
				fmt.Fprintf(stderr, "unexpected argument: %s\nusage: taskpath setup <project_dir> [--name <project>] [--example]\n", args[i])
				return exitFailure
			}
			dir = args[i]
		}
	}
	if dir == "" {
		fmt.Fprintln(stderr, "usage: taskpath setup <project_dir> [--name <project>] [--example]")
		return exitFailure
	}

	cfg, err := setup.Run(dir, opts)
	if err != nil {
		fmt.Fprintf(stderr, "setup: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "Initialized %s/ in %s\n", setup.DirName, cfg.Taskpath.ProjectRoot)
	return exitOK
}

// inputFlags are the overrides shared by resolve, closure and check.
type inputFlags struct {
	relations, tasks, query string
	format, out, joiner     string
}

func parseInputFlags(cmd string, args []string, stderr io.Writer) (inputFlags, bool) {
	var f inputFlags
	targets := map[string]*string{
		"--relations": &f.relations,
		"--tasks":     &f.tasks,
		"--query":     &f.query,
		"--format":    &f.format,
		"--out":       &f.out,
		"--joiner":    &f.joiner,
	}
	for i := 0; i < len(args); i++ {
		dst, ok := targets[args[i]]
		if !ok {
			fmt.Fprintf(stderr, "unknown flag: %s\nusage: taskpath %s [--relations f] [--tasks f] [--query f] [--format text|yaml|json] [--out f] [--joiner s]\n", args[i], cmd)
			return f, false
		}
		if i+1 >= len(args) {
			fmt.Fprintf(stderr, "%s requires a value\n", args[i])
			return f, false
		}
		i++
		*dst = args[i]
	}
	return f, true
}

// env is the project context of one CLI invocation.
type env struct {
	dir    string // .taskpath directory; empty when running on defaults
	cfg    model.Config
	inputs query.Inputs
	logger *log.Logger
}

func loadEnv(flags inputFlags, stderr io.Writer) (*env, error) {
	e := &env{logger: log.New(stderr, "", 0)}

	if dir := findTaskpathDir(); dir != "" {
		cfg, err := loadConfig(dir)
		if err != nil {
			return nil, err
		}
		e.dir = dir
		e.cfg = cfg
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		e.cfg.Taskpath.ProjectRoot = wd
	}

	if flags.format != "" {
		e.cfg.Output.Format = model.OutputFormat(flags.format)
	}
	if flags.out != "" {
		e.cfg.Output.Path = flags.out
	}
	if flags.joiner != "" {
		e.cfg.Output.Joiner = flags.joiner
	}
	e.cfg.ApplyDefaults()
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	e.inputs = query.InputsFromConfig(e.cfg)
	// flag paths are relative to the working directory, not the project root
	if flags.relations != "" {
		e.inputs.RelationsFile = flags.relations
	}
	if flags.tasks != "" {
		e.inputs.TasksFile = flags.tasks
	}
	if flags.query != "" {
		e.inputs.QueryFile = flags.query
	}
	return e, nil
}

// openAudit returns nil when there is no .taskpath directory or auditing is off.
func (e *env) openAudit() (*audit.Logger, error) {
	if e.dir == "" || !e.cfg.Audit.Enabled {
		return nil, nil
	}
	a, err := audit.Open(filepath.Join(e.dir, "logs", "audit.jsonl"), e.cfg.Audit.MaxSizeBytes)
	if err != nil {
		return nil, err
	}
	a.EnableChecksum(e.cfg.Audit.Checksum)
	return a, nil
}

func runResolve(args []string, stdout, stderr io.Writer) int {
	flags, ok := parseInputFlags("resolve", args, stderr)
	if !ok {
		return exitFailure
	}
	e, err := loadEnv(flags, stderr)
	if err != nil {
		return reportError(stderr, "resolve", err)
	}

	r := query.NewResolver(e.cfg, e.logger)
	al, err := e.openAudit()
	if err != nil {
		return reportError(stderr, "resolve", err)
	}
	if al != nil {
		defer al.Close()
		r.SetAuditSink(al)
	}

	result, err := r.Resolve(e.inputs)
	if err != nil {
		return reportError(stderr, "resolve", err)
	}

	if e.cfg.Output.Path != "" {
		out := e.cfg.Output.Path
		if flags.out == "" {
			out = e.cfg.ResolvePath(out)
		}
		if err := report.Write(out, result, e.cfg.Output.Format, e.cfg.Output.Joiner); err != nil {
			return reportError(stderr, "resolve", err)
		}
	} else {
		content, err := report.Render(result, e.cfg.Output.Format, e.cfg.Output.Joiner)
		if err != nil {
			return reportError(stderr, "resolve", err)
		}
		_, _ = stdout.Write(content)
	}

	if !result.RouteFound {
		fmt.Fprintf(stderr, "no route found from %s to %s\n", result.Start, result.Goal)
	}
	return exitOK
}

type closureReport struct {
	Start   model.TaskID   `yaml:"start" json:"start"`
	Closure []model.TaskID `yaml:"closure" json:"closure"`
}

func runClosure(args []string, stdout, stderr io.Writer) int {
	flags, ok := parseInputFlags("closure", args, stderr)
	if !ok {
		return exitFailure
	}
	e, err := loadEnv(flags, stderr)
	if err != nil {
		return reportError(stderr, "closure", err)
	}

	start, members, err := query.NewResolver(e.cfg, e.logger).Closure(e.inputs)
	if err != nil {
		return reportError(stderr, "closure", err)
	}

	rep := closureReport{Start: start, Closure: members}
	switch e.cfg.Output.Format {
	case model.OutputFormatYAML:
		if err := yaml.NewEncoder(stdout).Encode(rep); err != nil {
			return reportError(stderr, "closure", err)
		}
	case model.OutputFormatJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return reportError(stderr, "closure", err)
		}
	default:
		fmt.Fprintln(stdout, model.JoinTaskIDs(members, e.cfg.Output.Joiner))
	}
	return exitOK
}

func runCheck(args []string, stdout, stderr io.Writer) int {
	flags, ok := parseInputFlags("check", args, stderr)
	if !ok {
		return exitFailure
	}
	e, err := loadEnv(flags, stderr)
	if err != nil {
		return reportError(stderr, "check", err)
	}

	rep, err := query.NewResolver(e.cfg, e.logger).Check(e.inputs)
	if err != nil {
		return reportError(stderr, "check", err)
	}
	fmt.Fprintf(stdout, "ok: %d tasks, %d edges\n", rep.Tasks, rep.Edges)
	fmt.Fprintf(stdout, "order: %s\n", model.JoinTaskIDs(rep.Order, e.cfg.Output.Joiner))
	return exitOK
}

func runWatch(args []string, stdout, stderr io.Writer) int {
	dir := findTaskpathDir()
	if dir == "" {
		fmt.Fprintf(stderr, "error: %s/ directory not found. Run 'taskpath setup <dir>' first.\n", setup.DirName)
		return exitFailure
	}

	if len(args) > 0 {
		return runWatchClient(dir, args, stdout, stderr)
	}

	e, err := loadEnv(inputFlags{}, stderr)
	if err != nil {
		return reportError(stderr, "watch", err)
	}
	al, err := e.openAudit()
	if err != nil {
		return reportError(stderr, "watch", err)
	}
	var sink query.AuditSink
	if al != nil {
		defer al.Close()
		sink = al
	}

	w, err := watch.New(dir, e.cfg, e.inputs, sink)
	if err != nil {
		return reportError(stderr, "watch", err)
	}
	fmt.Fprintf(stderr, "watching inputs; log: %s\n", filepath.Join(dir, "logs", "watch.log"))
	if err := w.Run(); err != nil {
		return reportError(stderr, "watch", err)
	}
	return exitOK
}

func runWatchClient(dir string, args []string, stdout, stderr io.Writer) int {
	client := control.NewClient(filepath.Join(dir, control.DefaultSocketName))

	switch args[0] {
	case "status":
		var st watch.Status
		if err := client.Call(control.CommandStatus, nil, &st); err != nil {
			fmt.Fprintf(stderr, "watch status: %v\n", err)
			return exitFailure
		}
		if err := yaml.NewEncoder(stdout).Encode(st); err != nil {
			fmt.Fprintf(stderr, "watch status: %v\n", err)
			return exitFailure
		}
	case "trigger":
		var st watch.Status
		if err := client.Call(control.CommandTrigger, nil, &st); err != nil {
			fmt.Fprintf(stderr, "watch trigger: %v\n", err)
			return exitFailure
		}
		if st.Result != nil {
			fmt.Fprintln(stdout, model.JoinTaskIDs(st.Result.Path, ","))
		}
	case "stop":
		if err := client.Call(control.CommandShutdown, nil, nil); err != nil {
			fmt.Fprintf(stderr, "watch stop: %v\n", err)
			return exitFailure
		}
		fmt.Fprintln(stdout, "watcher stopping")
	default:
		fmt.Fprintf(stderr, "unknown watch subcommand: %s\nusage: taskpath watch [status|trigger|stop]\n", args[0])
		return exitFailure
	}
	return exitOK
}

func runAudit(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || args[0] != "verify" {
		fmt.Fprintln(stderr, "usage: taskpath audit verify")
		return exitFailure
	}
	dir := findTaskpathDir()
	if dir == "" {
		fmt.Fprintf(stderr, "error: %s/ directory not found. Run 'taskpath setup <dir>' first.\n", setup.DirName)
		return exitFailure
	}

	rep, err := audit.Verify(filepath.Join(dir, "logs", "audit.jsonl"))
	if err != nil {
		fmt.Fprintf(stderr, "audit verify: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "entries=%d valid=%d malformed=%d\n", rep.Total, rep.Valid, rep.Malformed)
	if rep.Valid != rep.Total {
		return exitFailure
	}
	return exitOK
}

// reportError prints err and maps its kind to an exit code.
func reportError(stderr io.Writer, cmd string, err error) int {
	var f interface{ FormatStderr() string }
	if errors.As(err, &f) {
		fmt.Fprint(stderr, f.FormatStderr())
	} else {
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
	}
	switch query.ErrorKind(err) {
	case "format":
		return exitFormat
	case "configuration":
		return exitConfiguration
	case "task_not_found":
		return exitTaskNotFound
	default:
		return exitFailure
	}
}

// findTaskpathDir searches for .taskpath/ in the current directory and ancestors.
func findTaskpathDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, setup.DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func loadConfig(taskpathDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(taskpathDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, &model.ConfigurationError{Source: "config.yaml", Msg: err.Error()}
	}
	if cfg.Taskpath.ProjectRoot == "" {
		cfg.Taskpath.ProjectRoot = filepath.Dir(taskpathDir)
	}
	return cfg, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `taskpath %s - task dependency path resolver

Usage: taskpath <command> [options]

Queries:
  resolve [flags]   Print the path from the query's start task to its goal
  closure [flags]   Print the start task and every task it depends on
  check [flags]     Validate relations against the task list (cycles, unknown ids)

  flags: --relations f  --tasks f  --query f  --format text|yaml|json  --out f  --joiner s

Project:
  setup <dir> [--name n] [--example]   Initialize .taskpath/ directory
  watch                                Re-resolve whenever an input file changes
  watch status|trigger|stop            Talk to a running watcher
  audit verify                         Check the audit log checksums

  version           Show version
  help              Show this help

Exit codes: 0 ok, 1 other failure, 2 malformed input, 3 configuration, 4 unknown task

`, version)
}
