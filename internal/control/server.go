package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

type HandlerFunc func(req *Request) *Response

// Server serves one request per connection.
type Server struct {
	socketPath  string
	listener    net.Listener
	handlers    map[string]HandlerFunc
	mu          sync.RWMutex
	connTimeout time.Duration
	logf        func(format string, args ...any)
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewServer(socketPath string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath:  socketPath,
		handlers:    make(map[string]HandlerFunc),
		connTimeout: 10 * time.Second,
		logf:        func(string, ...any) {},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetErrorLog routes connection-level errors to logf.
func (s *Server) SetErrorLog(logf func(format string, args ...any)) {
	if logf != nil {
		s.logf = logf
	}
}

func (s *Server) SetConnTimeout(d time.Duration) {
	s.connTimeout = d
}

func (s *Server) Handle(command string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = handler
}

func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) Start() error {
	// stale socket from a crashed watcher
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, waits for in-flight requests and removes the
// socket file.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logf("control accept error=%v", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()
	defer func() {
		if r := recover(); r != nil {
			s.logf("control handler panic=%v\n%s", r, debug.Stack())
		}
	}()

	_ = conn.SetDeadline(time.Now().Add(s.connTimeout))

	var req Request
	if err := ReadFrame(conn, &req); err != nil {
		s.logf("control read error=%v", err)
		return
	}
	if err := WriteFrame(conn, s.dispatch(&req)); err != nil {
		s.logf("control write error=%v", err)
	}
}

func (s *Server) dispatch(req *Request) *Response {
	if req.ProtocolVersion != ProtocolVersion {
		return ErrorResponse(ErrCodeProtocolMismatch,
			fmt.Sprintf("protocol version mismatch: got %d, expected %d", req.ProtocolVersion, ProtocolVersion))
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Command]
	s.mu.RUnlock()
	if !ok {
		return ErrorResponse(ErrCodeUnknownCommand, fmt.Sprintf("unknown command: %q", req.Command))
	}
	return handler(req)
}
