// ABOUTME: Conference bridge server: HTTP endpoints and component lifecycle
// ABOUTME: Runs the mixing engine, WebSocket listener, mDNS and dashboard together
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/linksphere/confbridge/internal/bridge"
	"github.com/linksphere/confbridge/internal/discovery"
	"github.com/linksphere/confbridge/internal/logger"
	"github.com/linksphere/confbridge/internal/metrics"
)

const (
	// BridgePath is the WebSocket endpoint.
	BridgePath = "/bridge"

	shutdownTimeout = 5 * time.Second
)

// Config holds server configuration
type Config struct {
	Addr   string
	Name   string
	Engine bridge.Config

	// MasterHosts lists remote hosts allowed to connect as master.
	MasterHosts []string
	// AutoAdmit admits every client to the mix as soon as it connects.
	AutoAdmit bool

	EnableMDNS bool
	UseTUI     bool

	TLSCertFile string
	TLSKeyFile  string
}

// Server is the conference bridge
type Server struct {
	config   Config
	serverID string

	upgrader websocket.Upgrader
	mux      *http.ServeMux

	engine  *bridge.Engine
	metrics *metrics.Bridge

	// Client management
	clients   map[string]*Client
	master    *Client
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager
	tui         *ServerTUI
	startTime   time.Time

	// ctx scopes delivery loops and is cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	addrMu   sync.Mutex
	addr     net.Addr
	addrChan chan struct{}

	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup

	log *zap.Logger
}

// New creates a server and its mixing engine.
func New(config Config) (*Server, error) {
	m := metrics.New()
	log := logger.Named("server")

	engine, err := bridge.NewEngine(config.Engine,
		bridge.WithMetrics(m),
		bridge.WithLogger(log.Named("engine")))
	if err != nil {
		return nil, fmt.Errorf("create mixing engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    config,
		serverID:  uuid.NewString(),
		mux:       http.NewServeMux(),
		engine:    engine,
		metrics:   m,
		clients:   make(map[string]*Client),
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		addrChan:  make(chan struct{}),
		log:       log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// Clients are native applications without an Origin header.
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	s.mux.HandleFunc(BridgePath, s.handleWebSocket)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", m.Handler())
	return s, nil
}

// ID returns the random identifier of this server instance.
func (s *Server) ID() string {
	return s.serverID
}

// Engine exposes the mixing engine.
func (s *Server) Engine() *bridge.Engine {
	return s.engine
}

// Metrics exposes the server's collectors.
func (s *Server) Metrics() *metrics.Bridge {
	return s.metrics
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr blocks until the listener is bound and returns its address.
func (s *Server) Addr() net.Addr {
	<-s.addrChan
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// Run serves until ctx is cancelled, Stop is called, the dashboard quits
// or a component fails.
func (s *Server) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		close(s.addrChan)
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()
	close(s.addrChan)

	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("bridge starting",
		zap.String("name", s.config.Name),
		zap.String("id", s.serverID),
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", s.tlsEnabled()),
		zap.Bool("auto_admit", s.config.AutoAdmit))

	if s.config.UseTUI {
		s.tui = NewServerTUI()
	}

	g, gctx := errgroup.WithContext(s.ctx)

	g.Go(func() error {
		return s.engine.Run(gctx)
	})

	g.Go(func() error {
		var err error
		if s.tlsEnabled() {
			err = httpServer.ServeTLS(ln, s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = httpServer.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	})

	if s.config.EnableMDNS {
		s.startMDNS(ln.Addr())
	}

	if s.tui != nil {
		g.Go(func() error {
			return s.tui.Start(s.config.Name, ln.Addr().String())
		})
		g.Go(func() error {
			s.tuiLoop(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown(httpServer)
		return nil
	})

	err = g.Wait()
	s.wg.Wait()
	s.log.Info("bridge stopped cleanly")
	return err
}

// Stop asks a running server to shut down.
func (s *Server) Stop() {
	s.cancel()
}

func (s *Server) shutdown(httpServer *http.Server) {
	s.log.Info("bridge shutting down")

	// Mark server as shutting down to reject new connections
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Hijacked WebSocket connections are not closed by Shutdown.
	s.clientsMu.RLock()
	conns := make([]*Client, 0, len(s.clients)+1)
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	if s.master != nil {
		conns = append(conns, s.master)
	}
	s.clientsMu.RUnlock()
	for _, c := range conns {
		c.Conn.Close()
	}

	s.engine.Close()
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShutdown
}

// goTracked runs fn on a goroutine that Run waits for. It refuses once
// shutdown has begun, so no goroutine is added after Run starts waiting.
func (s *Server) goTracked(fn func()) bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.isShutdown {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Server) tlsEnabled() bool {
	return s.config.TLSCertFile != "" && s.config.TLSKeyFile != ""
}

func (s *Server) startMDNS(addr net.Addr) {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		s.log.Warn("cannot derive mDNS port", zap.Error(err))
		return
	}
	port, err := cast.ToIntE(portStr)
	if err != nil {
		s.log.Warn("cannot derive mDNS port", zap.Error(err))
		return
	}

	s.mdnsManager = discovery.NewManager(discovery.Config{
		ServiceName: s.config.Name,
		Port:        port,
		Path:        BridgePath,
		TLS:         s.tlsEnabled(),
	})
	if err := s.mdnsManager.Advertise(); err != nil {
		s.log.Warn("failed to start mDNS advertisement", zap.Error(err))
		return
	}
	s.log.Info("mDNS advertisement started")
}

// Health is the body served at /healthz.
type Health struct {
	Status   string `json:"status"`
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Uptime   string `json:"uptime"`
	Master   bool   `json:"master"`
	Clients  int    `json:"clients"`
	Channels int    `json:"channels"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	h := Health{
		Status:   "ok",
		ServerID: s.serverID,
		Name:     s.config.Name,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Master:   s.master != nil,
		Clients:  len(s.clients),
		Channels: s.engine.Len(),
	}
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h); err != nil {
		s.log.Warn("write health response", zap.Error(err))
	}
}
