package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ampio/canresolve/internal/logging"
	"github.com/ampio/canresolve/internal/watch/eventcodec"
)

// Server owns the TCP listener for watch clients. Unlike the gateway's
// server.Server it is one-directional: clients only ever receive events, so
// there is no reader goroutine, codec.Decode path or backend Send.
type Server struct {
	mu               sync.RWMutex
	addr             string
	Hub              *Hub
	handshakeTimeout time.Duration
	readyOnce        sync.Once
	readyCh          chan struct{}
	listener         net.Listener
	clientsMu        sync.RWMutex
	clients          map[*Client]net.Conn
	wg               sync.WaitGroup
	logger           *slog.Logger
	nextConnID       uint64
	totalAccepted    atomic.Uint64
	totalConnected   atomic.Uint64
}

const defaultHandshakeTimeout = 3 * time.Second

type ServerOption func(*Server)

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		handshakeTimeout: defaultHandshakeTimeout,
		readyCh:          make(chan struct{}),
		clients:          make(map[*Client]net.Conn),
		logger:           logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }
func WithHub(h *Hub) ServerOption          { return func(s *Server) { s.Hub = h } }
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) SetListenAddr(a string) { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Serve accepts watch clients until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	s.mu.Unlock()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("watch: listen: %w", err)
	}
	s.SetListenAddr(ln.Addr().String())
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("watch_listen", "addr", s.Addr())
	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("watch: accept: %w", err)
		}
		s.totalAccepted.Add(1)
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	connID := atomic.AddUint64(&s.nextConnID, 1)
	logger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())
	if err := handshake(ctx, conn, s.handshakeTimeout); err != nil {
		logger.Warn("watch_handshake_failed", "error", err)
		_ = conn.Close()
		return
	}
	cl := &Client{Out: make(chan Event, 256), Closed: make(chan struct{})}
	if s.Hub != nil {
		s.Hub.Add(cl)
	}
	s.clientsMu.Lock()
	s.clients[cl] = conn
	s.clientsMu.Unlock()
	s.totalConnected.Add(1)
	logger.Info("watch_client_connected")

	s.wg.Add(1)
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
		if s.Hub != nil {
			s.Hub.Remove(cl)
		}
		s.clientsMu.Lock()
		delete(s.clients, cl)
		s.clientsMu.Unlock()
		logger.Info("watch_client_disconnected")
	}()

	codec := eventcodec.Codec{}
	for {
		select {
		case ev := <-cl.Out:
			wire, err := codec.Encode(ev)
			if err != nil {
				logger.Error("watch_encode_error", "error", err)
				continue
			}
			if _, err := conn.Write(wire); err != nil {
				return
			}
		case <-cl.Closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown closes the listener and disconnects all clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.clientsMu.Lock()
	for cl, conn := range s.clients {
		_ = conn.Close()
		if s.Hub != nil {
			s.Hub.Remove(cl)
		}
		delete(s.clients, cl)
	}
	s.clientsMu.Unlock()
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return errors.New("watch: shutdown timeout")
	case <-done:
		s.logger.Info("watch_shutdown_summary", "accepted", s.totalAccepted.Load(), "connected", s.totalConnected.Load())
		return nil
	}
}
