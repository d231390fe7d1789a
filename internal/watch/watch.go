// Package watch re-resolves the configured query whenever one of its input
// files changes, and serves the latest result over the control socket.
package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/msageha/taskpath/internal/control"
	"github.com/msageha/taskpath/internal/lock"
	"github.com/msageha/taskpath/internal/model"
	"github.com/msageha/taskpath/internal/query"
	"github.com/msageha/taskpath/internal/report"
)

const component = "watch"

const shutdownTimeout = 10 * time.Second

// Status is what the watcher reports over the control socket.
type Status struct {
	PID           int                `json:"pid" yaml:"pid"`
	Runs          int                `json:"runs" yaml:"runs"`
	LastRunAt     string             `json:"last_run_at,omitempty" yaml:"last_run_at,omitempty"`
	LastTrigger   string             `json:"last_trigger,omitempty" yaml:"last_trigger,omitempty"`
	LastError     string             `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastErrorKind string             `json:"last_error_kind,omitempty" yaml:"last_error_kind,omitempty"`
	OutputPath    string             `json:"output_path" yaml:"output_path"`
	Result        *model.QueryResult `json:"result,omitempty" yaml:"result,omitempty"`
}

type Watcher struct {
	taskpathDir string
	config      model.Config
	inputs      query.Inputs
	watched     map[string]bool
	outPath     string
	debounce    time.Duration

	logLevel query.LogLevel
	logger   *log.Logger
	logFile  io.Closer

	resolver *query.Resolver
	fileLock *lock.FileLock
	server   *control.Server
	fsw      *fsnotify.Watcher
	group    singleflight.Group

	mu     sync.Mutex
	status Status

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
	started  bool
}

// New creates a Watcher logging to .taskpath/logs/watch.log. audit may be nil.
func New(taskpathDir string, cfg model.Config, in query.Inputs, audit query.AuditSink) (*Watcher, error) {
	logPath := filepath.Join(taskpathDir, "logs", "watch.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open watch log: %w", err)
	}
	w, err := newWatcher(taskpathDir, cfg, in, logFile, logFile)
	if err != nil {
		_ = logFile.Close()
		return nil, err
	}
	if audit != nil {
		w.resolver.SetAuditSink(audit)
	}
	return w, nil
}

// newWatcher is the internal constructor for testing.
func newWatcher(taskpathDir string, cfg model.Config, in query.Inputs, out io.Writer, closer io.Closer) (*Watcher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	abs := func(p string) (string, error) {
		a, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", p, err)
		}
		return filepath.Clean(a), nil
	}
	var err error
	watched := make(map[string]bool, 3)
	for _, p := range []*string{&in.RelationsFile, &in.TasksFile, &in.QueryFile} {
		if *p, err = abs(*p); err != nil {
			return nil, err
		}
		watched[*p] = true
	}

	outPath := cfg.ResolvePath(cfg.Output.Path)
	if outPath == "" {
		outPath = filepath.Join(taskpathDir, "results", "latest."+extension(cfg.Output.Format))
	}

	logger := log.New(out, "", 0)
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		taskpathDir: taskpathDir,
		config:      cfg,
		inputs:      in,
		watched:     watched,
		outPath:     outPath,
		debounce:    time.Duration(cfg.Watcher.DebounceMs) * time.Millisecond,
		logLevel:    query.ParseLogLevel(cfg.Logging.Level),
		logger:      logger,
		logFile:     closer,
		resolver:    query.NewResolver(cfg, logger),
		fileLock:    lock.NewFileLock(filepath.Join(taskpathDir, "locks", "watch.lock")),
		server:      control.NewServer(filepath.Join(taskpathDir, control.DefaultSocketName)),
		ctx:         ctx,
		cancel:      cancel,
	}
	w.status.PID = os.Getpid()
	w.status.OutputPath = outPath
	w.server.SetErrorLog(func(format string, args ...any) {
		w.log(query.LogLevelWarn, format, args...)
	})
	return w, nil
}

func extension(f model.OutputFormat) string {
	switch f {
	case model.OutputFormatYAML:
		return "yaml"
	case model.OutputFormatJSON:
		return "json"
	default:
		return "txt"
	}
}

// Run starts the watcher and blocks until SIGINT/SIGTERM or a shutdown
// request over the control socket.
func (w *Watcher) Run() error {
	if err := w.Start(); err != nil {
		return err
	}
	w.waitSignals()
	return nil
}

// Start acquires the lock, starts watching and serving, and runs the query
// once. It does not block.
func (w *Watcher) Start() error {
	if err := w.fileLock.TryLock(); err != nil {
		return fmt.Errorf("watch lock: %w", err)
	}
	w.log(query.LogLevelInfo, "watch starting pid=%d", os.Getpid())

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.cleanup()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	// Directories, not files: editors replace files by rename.
	dirs := make(map[string]bool)
	for p := range w.watched {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			w.cleanup()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.log(query.LogLevelDebug, "watching dir=%s", dir)
	}

	w.registerHandlers()
	if err := w.server.Start(); err != nil {
		_ = fsw.Close()
		w.cleanup()
		return fmt.Errorf("start control socket: %w", err)
	}
	w.started = true

	w.wg.Add(1)
	go w.eventLoop()

	_, _ = w.Trigger("startup")
	w.log(query.LogLevelInfo, "watch ready output=%s", w.outPath)
	return nil
}

func (w *Watcher) registerHandlers() {
	w.server.Handle(control.CommandPing, func(*control.Request) *control.Response {
		return control.OKResponse(map[string]any{"status": "ok", "pid": os.Getpid()})
	})
	w.server.Handle(control.CommandStatus, func(*control.Request) *control.Response {
		return control.OKResponse(w.Status())
	})
	w.server.Handle(control.CommandTrigger, func(*control.Request) *control.Response {
		st, err := w.Trigger("control")
		if err != nil {
			return control.ErrorResponse(control.ErrCodeQueryFailed, err.Error())
		}
		return control.OKResponse(st)
	})
	w.server.Handle(control.CommandShutdown, func(*control.Request) *control.Response {
		w.log(query.LogLevelInfo, "shutdown requested via control socket")
		go w.Shutdown()
		return control.OKResponse(map[string]string{"status": "shutdown_accepted"})
	})
}

// eventLoop coalesces bursts of events on the input files into one run per
// debounce window.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				w.log(query.LogLevelDebug, "fsnotify event=%s file=%s", event.Op, event.Name)
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log(query.LogLevelError, "fsnotify error=%v", err)
		case <-timer.C:
			_, _ = w.Trigger("fsnotify")
		}
	}
}

// Trigger resolves the query and writes the report. Concurrent calls share
// one run.
func (w *Watcher) Trigger(reason string) (Status, error) {
	_, err, shared := w.group.Do("resolve", func() (any, error) {
		return nil, w.run(reason)
	})
	if shared {
		w.log(query.LogLevelDebug, "trigger coalesced reason=%s", reason)
	}
	return w.Status(), err
}

func (w *Watcher) run(reason string) error {
	result, err := w.resolver.Resolve(w.inputs)
	if err == nil {
		err = report.Write(w.outPath, result, w.config.Output.Format, w.config.Output.Joiner)
		if err != nil {
			w.log(query.LogLevelError, "report_write_failed path=%s error=%v", w.outPath, err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Runs++
	w.status.LastRunAt = time.Now().UTC().Format(time.RFC3339)
	w.status.LastTrigger = reason
	if err != nil {
		w.status.LastError = err.Error()
		w.status.LastErrorKind = query.ErrorKind(err)
		return err
	}
	w.status.LastError = ""
	w.status.LastErrorKind = ""
	w.status.Result = result
	return nil
}

// Status returns a snapshot of the watcher state.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Done is closed once shutdown has begun.
func (w *Watcher) Done() <-chan struct{} {
	return w.ctx.Done()
}

func (w *Watcher) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		w.log(query.LogLevelInfo, "received signal=%s, initiating graceful shutdown", sig)
		go func() {
			<-sigCh
			w.log(query.LogLevelWarn, "received second signal, forcing exit")
			os.Exit(1)
		}()
		w.Shutdown()
	case <-w.ctx.Done():
		// shutdown came through the control socket; wait for it to finish
		w.Shutdown()
	}
}

// Shutdown stops the watcher. Idempotent.
func (w *Watcher) Shutdown() {
	w.shutdown.Do(func() {
		w.log(query.LogLevelInfo, "shutdown started")
		w.cancel()

		if w.fsw != nil {
			_ = w.fsw.Close()
		}
		if w.started {
			w.server.Stop()
		}

		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			w.log(query.LogLevelWarn, "shutdown timeout after %s", shutdownTimeout)
		}

		w.log(query.LogLevelInfo, "watch stopped")
		w.cleanup()
	})
}

func (w *Watcher) cleanup() {
	_ = w.fileLock.Unlock()
	if w.logFile != nil {
		_ = w.logFile.Close()
		w.logFile = nil
	}
}

func (w *Watcher) log(level query.LogLevel, format string, args ...any) {
	query.Logf(w.logger, w.logLevel, level, component, format, args...)
}
