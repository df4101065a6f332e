package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/die-net/streamhost/internal/logging"
	"github.com/die-net/streamhost/internal/metrics"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("relay: server closed")

// Server accepts relay clients on any number of listeners and hands them to
// a shared Coordinator.
type Server struct {
	cfg    Config
	coord  *Coordinator
	pool   *bufferPool
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config, coord *Coordinator) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}

	return &Server{
		cfg:    cfg,
		coord:  coord,
		pool:   newBufferPool(cfg.BufferSize),
		logger: cfg.Logger.With(logging.Component("relay")),
		conns:  make(map[*Conn]struct{}),
	}, nil
}

// Serve accepts connections on ln until it fails or the server is closed.
// Closing ln also ends Serve with ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}

		c, ok := s.track(nc)
		if !ok {
			_ = nc.Close()
			return ErrServerClosed
		}

		go func() {
			defer s.untrack(c)
			c.serve()
		}()
	}
}

// Close closes every client connection and waits for their goroutines.
// Listeners belong to the caller.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	s.wg.Wait()
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(nc net.Conn) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}

	c := newConn(nc, s)
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	metrics.OpenConnections.Inc()
	return c, true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	metrics.OpenConnections.Dec()
	s.wg.Done()
}
