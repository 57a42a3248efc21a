// Package control lets a separate invocation of the program ask a
// running instance to shut down. The running instance listens on a
// per-user unix socket; the -stop invocation dials it, sends a stop
// request and waits for the acknowledgement.
package control

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Wire protocol: one line each way.
const (
	stopRequest = "stop"
	stopReply   = "ok"
)

const dialTimeout = 2 * time.Second

// ErrNoServer marks a stop request that found no listening instance,
// as opposed to one that reached a listener and got a bad reply.
var ErrNoServer = errors.New("no server listening")

// DefaultSocketPath returns the per-user control socket path.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "catfriend.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("catfriend-%d.sock", os.Getuid()))
}

// Server is the listening side of the stop mechanism.
type Server struct {
	path         string
	onDisconnect func()
	ln           net.Listener
	done         chan struct{}
	started      bool
	mu           sync.Mutex
}

// NewServer returns a server that will listen on the socket at path.
func NewServer(path string) *Server {
	return &Server{path: path, done: make(chan struct{})}
}

// OnDisconnect registers the callback raised when a stop request
// arrives. Must be called before Start.
func (s *Server) OnDisconnect(fn func()) {
	s.onDisconnect = fn
}

// Start begins listening and spawns the accept loop. A stale socket
// file left by a crashed instance is removed first; a socket with a
// live listener behind it means another instance is running.
func (s *Server) Start() error {
	if conn, err := net.DialTimeout("unix", s.path, dialTimeout); err == nil {
		conn.Close()
		return fmt.Errorf("control: another instance is already listening on %s", s.path)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("control: remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("control: listen on %s: %w", s.path, err)
	}
	s.ln = ln
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.serve()
	return nil
}

func (s *Server) serve() {
	defer close(s.done)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			// Listener closed by Join.
			return
		}
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(dialTimeout))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	if strings.TrimSpace(line) != stopRequest {
		return
	}
	// Raise the event before acknowledging, so a client that saw the
	// reply knows the request was delivered, not just received.
	if s.onDisconnect != nil {
		s.onDisconnect()
	}
	fmt.Fprintln(conn, stopReply)
}

// Join stops the listener, waits for the accept loop to exit and
// removes the socket file. Safe to call when Start was never reached.
func (s *Server) Join() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	s.ln.Close()
	<-s.done
	os.Remove(s.path)
}

// SendShutdown asks the instance listening on the socket at path to
// shut down. A dial failure wraps ErrNoServer so the caller can tell
// "nobody listening" from "listener misbehaved".
func SendShutdown(path string) error {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return fmt.Errorf("control: %w: %v", ErrNoServer, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(dialTimeout))

	if _, err := fmt.Fprintln(conn, stopRequest); err != nil {
		return fmt.Errorf("control: send stop request: %w", err)
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("control: read reply: %w", err)
	}
	if strings.TrimSpace(line) != stopReply {
		return fmt.Errorf("control: unexpected reply %q", strings.TrimSpace(line))
	}
	return nil
}
