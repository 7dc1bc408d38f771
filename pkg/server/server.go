package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the chat relay: it accepts connections, tracks identities
// and group membership, and routes messages between clients.
type Server struct {
	config    ServerConfig
	registry  *Registry
	directory *Directory
	router    *Router
	metrics   *Metrics

	listener     net.Listener
	httpListener net.Listener
	httpServer   *http.Server
	shutdown     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	startTime    time.Time
}

// NewServer creates a new server instance
func NewServer(config ServerConfig) *Server {
	registry := NewRegistry()
	directory := NewDirectory(config.DefaultGroup)

	return &Server{
		config:    config,
		registry:  registry,
		directory: directory,
		router:    NewRouter(registry, directory),
		shutdown:  make(chan struct{}),
	}
}

// SetMetrics attaches Prometheus metrics to the server and its
// components. Call before Start.
func (s *Server) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
	s.registry.SetMetrics(metrics)
	s.directory.SetMetrics(metrics)
	s.router.SetMetrics(metrics)
	if metrics != nil {
		metrics.RecordGroups(s.directory.Count())
	}
}

// Start starts the TCP listener and, unless disabled, the HTTP
// listener carrying the WebSocket, health and metrics endpoints.
func (s *Server) Start() error {
	s.startTime = time.Now()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.TCPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("TCP server listening on %s", listener.Addr())

	if s.config.HTTPPort >= 0 {
		if err := s.startHTTPServer(); err != nil {
			s.listener.Close()
			return err
		}
	}

	s.wg.Add(1)
	go s.acceptLoop(listener)

	return nil
}

// startHTTPServer starts the HTTP listener with the WebSocket, health
// and metrics endpoints
func (s *Server) startHTTPServer() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.httpListener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errorLog.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("HTTP server listening on %s (WebSocket at /ws)", listener.Addr())
	return nil
}

// Addr returns the address the TCP listener is bound to
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HTTPAddr returns the address the HTTP listener is bound to, or nil
// if the HTTP listener is disabled
func (s *Server) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// Stop gracefully stops the server. Safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.shutdown)

		if s.listener != nil {
			s.listener.Close()
		}
		if s.httpServer != nil {
			s.httpServer.Close()
		}

		// Closing the connections unblocks every session handler
		s.registry.CloseAll()

		s.wg.Wait()
	})
	return nil
}

// acceptLoop accepts incoming TCP connections
func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				errorLog.Printf("Accept error: %v", err)
				continue
			}
		}

		// Disable Nagle's algorithm for immediate sends
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}

		go s.handleConnection(conn)
	}
}

// handleConnection runs the session handler for one accepted stream.
// The accept loop never blocks on per-connection work.
func (s *Server) handleConnection(conn net.Conn) {
	if s.metrics != nil {
		s.metrics.RecordConnectionAccepted()
	}

	debugLog.Printf("New connection from %s", conn.RemoteAddr())
	s.runSession(conn)
}
