package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/request"
)

// requestOverhead allows for the JSON envelope around the stdin payload.
const requestOverhead = 1 << 20

// SocketRequest is the JSON request the entry point sends over the Unix
// socket. Stdin is base64 in JSON.
type SocketRequest struct {
	Command string `json:"command"`
	Origin  string `json:"origin,omitempty"`
	Stdin   []byte `json:"stdin,omitempty"`
}

// SocketServer listens on a Unix socket and hands each request to a
// Receiver. Access control is the socket's file mode: 0600 in a 0700
// directory, so only the daemon's own user can connect.
type SocketServer struct {
	socketPath string
	receiver   Receiver
	maxRequest int64

	listener net.Listener
	stopped  bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects listener and stopped
}

// NewSocketServer creates a SocketServer on socketPath. stdinLimit sizes the
// largest request line accepted; zero leaves request size unbounded.
func NewSocketServer(socketPath string, receiver Receiver, stdinLimit int) *SocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &SocketServer{
		socketPath: socketPath,
		receiver:   receiver,
		ctx:        ctx,
		cancel:     cancel,
	}
	if stdinLimit > 0 {
		// base64 grows stdin by 4/3; one byte over the limit must still get
		// through so the daemon can report it.
		s.maxRequest = int64(stdinLimit+1)*4/3 + 4 + requestOverhead
	}
	return s
}

// Start begins listening on the Unix socket.
// It creates the parent directory if needed and sets socket permissions to 0600.
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	// Remove a stale socket left by a crashed daemon.
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = listener
	s.wg.Add(1)
	go s.acceptLoop(listener)

	return nil
}

// Stop stops accepting connections, cancels in-flight requests and waits for
// their handlers to return.
func (s *SocketServer) Stop() error {
	s.mu.Lock()
	if s.listener == nil || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cancel()
	err := s.listener.Close()
	s.mu.Unlock()

	s.wg.Wait()
	_ = os.Remove(s.socketPath)

	return err
}

// SocketPath returns the path to the Unix socket.
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

func (s *SocketServer) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			clog.Warn("socket accept: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads one newline-delimited JSON request, runs it and
// writes one result frame. The request is canceled if the client hangs up.
func (s *SocketServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	var r io.Reader = conn
	if s.maxRequest > 0 {
		r = io.LimitReader(conn, s.maxRequest)
	}
	reader := bufio.NewReader(r)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		s.writeResult(conn, request.Failed("", "failed to read request: "+describeReadErr(err)))
		return
	}

	var req SocketRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeResult(conn, request.Failed("", "invalid request: "+err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		// The client sends nothing after the request line; a read returning
		// means it went away.
		_, _ = conn.Read(make([]byte, 1))
		cancel()
	}()

	res := s.receiver.Receive(ctx, Submission{
		Command: req.Command,
		Origin:  req.Origin,
		Stdin:   req.Stdin,
	})
	s.writeResult(conn, res)
}

func describeReadErr(err error) string {
	if errors.Is(err, io.EOF) {
		return "request missing or too large"
	}
	return err.Error()
}

func (s *SocketServer) writeResult(conn net.Conn, res *request.Result) {
	if err := request.EncodeResult(conn, res); err != nil {
		clog.Debug("socket write: %v", err)
	}
}
