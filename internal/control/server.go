// Package control is a local unix-socket channel for talking to a running
// agent: one JSON command per connection, one JSON response back.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Command types understood by the agent
const (
	CommandStatus    = "status"
	CommandStop      = "stop"
	CommandApprovals = "approvals"
)

// Command is a request sent to the running agent
type Command struct {
	Type      string    `json:"type"`
	Limit     int       `json:"limit,omitempty"` // approvals only
	Timestamp time.Time `json:"timestamp"`
}

// Response is the reply to a Command
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode unmarshals the response payload into v
func (r *Response) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return errors.New("response carries no data")
	}
	return json.Unmarshal(r.Data, v)
}

// Handler answers one command. The returned value is JSON-encoded into Response.Data.
type Handler func(ctx context.Context, cmd Command) (interface{}, error)

const (
	acceptDeadline = time.Second
	readDeadline   = 5 * time.Second
	stopTimeout    = 5 * time.Second
)

// Server listens on a unix socket and dispatches commands to a Handler
type Server struct {
	socketPath string
	handler    Handler
	logger     *slog.Logger

	mu       sync.RWMutex
	listener *net.UnixListener
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewServer prepares a server. A stale socket left by a crashed process is removed.
func NewServer(socketPath string, handler Handler, logger *slog.Logger) (*Server, error) {
	if handler == nil {
		return nil, errors.New("control handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		handler:    handler,
		logger:     logger.With("component", "control"),
	}, nil
}

// Start begins accepting connections in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("control server already running")
	}

	addr, err := net.ResolveUnixAddr("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("invalid socket path: %w", err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to create control socket: %w", err)
	}

	s.listener = listener
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.logger.Info("control server listening", "socket", s.socketPath)

	go s.acceptLoop(ctx, listener, s.stopCh, s.doneCh)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, listener *net.UnixListener, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		// Bounded accept so stop and cancellation are observed
		if err := listener.SetDeadline(time.Now().Add(acceptDeadline)); err != nil {
			s.logger.Warn("failed to set accept deadline", "err", err)
			return
		}
		conn, err := listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-stopCh:
				return
			default:
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		s.logger.Warn("failed to set read deadline", "err", err)
		return
	}

	var cmd Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		s.send(conn, failure(fmt.Errorf("failed to decode command: %w", err)))
		return
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	s.send(conn, s.dispatch(ctx, cmd))
}

func (s *Server) dispatch(ctx context.Context, cmd Command) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("control handler panicked", "command", cmd.Type, "panic", r)
			resp = failure(fmt.Errorf("command %q panicked: %v", cmd.Type, r))
		}
	}()

	data, err := s.handler(ctx, cmd)
	if err != nil {
		return failure(err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return failure(fmt.Errorf("failed to encode response: %w", err))
	}
	return Response{
		Success: true,
		Message: fmt.Sprintf("command %q completed", cmd.Type),
		Data:    raw,
	}
}

func failure(err error) Response {
	return Response{Success: false, Message: err.Error(), Error: err.Error()}
}

func (s *Server) send(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Warn("failed to send response", "err", err)
	}
}

// Stop closes the listener, waits for the accept loop and removes the socket file.
// In-flight connections finish on their own.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	listener, doneCh := s.listener, s.doneCh
	s.mu.Unlock()

	var errs []error
	if err := listener.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close listener: %w", err))
	}

	select {
	case <-doneCh:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for control server: %w", ctx.Err()))
	case <-time.After(stopTimeout):
		errs = append(errs, errors.New("timeout waiting for control server shutdown"))
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove socket file: %w", err))
	}
	s.logger.Info("control server stopped")
	return errors.Join(errs...)
}

// IsRunning returns whether the server is accepting connections
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the path to the control socket
func (s *Server) SocketPath() string {
	return s.socketPath
}
