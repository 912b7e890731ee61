package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalgrid-dev/signalgrid/pkg/bus"
	"github.com/signalgrid-dev/signalgrid/pkg/middleware"
	"github.com/signalgrid-dev/signalgrid/pkg/protocol"
	sig "github.com/signalgrid-dev/signalgrid/pkg/signal"
)

// AuthFunc resolves a verified user id from an upgrade request. It is the
// authentication collaborator at the subsystem's boundary: the server
// treats it as opaque and rejects the connection on any error. Return
// ErrAuthenticationFailed (or wrap it) for a clean 401.
type AuthFunc func(r *http.Request) (string, error)

// Deps are the injected collaborators for a Server.
type Deps struct {
	// Signals is the process-wide signal catalog.
	Signals *sig.Registry

	// Bus is the cross-process event bus. Single-process deployments use
	// bus.NewMemory().
	Bus bus.Bus

	// Auth authenticates upgrade requests.
	Auth AuthFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is the prometheus registry instruments register on and
	// /metrics serves from. Nil creates a private registry.
	Metrics *prometheus.Registry
}

// Server hosts the realtime endpoint: WebSocket upgrades on /ws, the HTTP
// emit API on /api/emit, plus /healthz and /metrics.
type Server struct {
	config  *Config
	deps    Deps
	conns   *ConnRegistry
	service *Service

	upgrader   websocket.Upgrader
	router     chi.Router
	httpServer *http.Server

	logger  *slog.Logger
	metrics *Metrics
}

// New creates a Server from config and collaborators.
func New(config *Config, deps Deps) (*Server, error) {
	config = config.withDefaults()

	if deps.Signals == nil {
		return nil, errors.New("server: nil signal registry")
	}
	if deps.Bus == nil {
		return nil, errors.New("server: nil bus")
	}
	if deps.Auth == nil {
		return nil, errors.New("server: nil auth func")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = prometheus.NewRegistry()
	}

	logger := deps.Logger.With("component", "server")
	metrics := NewMetrics(deps.Metrics, config.MetricsNamespace)
	conns := NewConnRegistry()

	service, err := NewService(deps.Signals, deps.Bus, conns, config.Topic, deps.Logger, metrics)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:  config,
		deps:    deps,
		conns:   conns,
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
		logger:  logger,
		metrics: metrics,
	}
	if s.upgrader.CheckOrigin == nil {
		s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}

	// The upgrade endpoint stays uninstrumented: its "request" lasts the
	// connection lifetime and would skew every latency histogram.
	notUpgrade := func(r *http.Request) bool { return r.URL.Path != "/ws" }
	r := chi.NewRouter()
	r.Use(middleware.Metrics(
		middleware.WithRegistry(deps.Metrics),
		middleware.WithNamespace(config.MetricsNamespace),
		middleware.WithMetricsFilter(notUpgrade),
	))
	r.Use(middleware.OpenTelemetry(middleware.WithTraceFilter(notUpgrade)))
	r.Get("/ws", s.handleWebSocket)
	r.Post("/api/emit", s.handleEmit)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	s.router = r

	return s, nil
}

// Service returns the emit facade for in-process application code.
func (s *Server) Service() *Service { return s.service }

// Connections returns the per-process connection registry.
func (s *Server) Connections() *ConnRegistry { return s.conns }

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving on the configured address and blocks until the
// listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.config.Address,
		Handler: s.router,
	}
	s.logger.Info("listening", "address", s.config.Address)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run starts the server and shuts down gracefully on SIGINT or SIGTERM.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sg := <-stop:
		s.logger.Info("shutting down", "signal", sg.String())
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	}
}

// Shutdown stops accepting upgrades, drops the bus subscription, and
// closes every live connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.service.Close()
	s.conns.CloseAll()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleWebSocket authenticates and upgrades one connection, registers it,
// and confirms the handshake. Authentication failure ends the request
// before any registry entry exists.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.deps.Auth(r)
	if err != nil {
		s.metrics.RecordAuthFailure()
		s.logger.Info("handshake rejected", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newConn(ws, userID, s.config, s.deps.Logger, s.metrics)
	c.onClose = func(closed *Conn) {
		s.conns.Remove(closed.ID())
		s.metrics.RecordDisconnect()
		s.logger.Info("connection closed",
			"conn_id", closed.ID(), "user_id", closed.UserID(),
			"active", s.conns.Count())
	}

	if err := s.conns.Add(c); err != nil {
		s.logger.Error("register connection failed", "error", err)
		ws.Close()
		return
	}

	// The confirmation goes through the send queue before the loops start,
	// so it is always the first message on the wire.
	if err := c.Send(protocol.Connected{UserID: userID}); err != nil {
		c.Close()
		return
	}
	c.start()

	s.metrics.RecordConnect()
	s.logger.Info("connection established",
		"conn_id", c.ID(), "user_id", userID, "active", s.conns.Count())
}

// emitRequest is the body of POST /api/emit, for platform processes that
// emit over HTTP instead of embedding the library.
type emitRequest struct {
	SignalID string `json:"signalId"`
	Channel  struct {
		Type    string   `json:"type"`
		UserIDs []string `json:"userIds,omitempty"`
	} `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	def, err := s.deps.Signals.Lookup(req.SignalID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	switch protocol.ChannelType(req.Channel.Type) {
	case protocol.ChannelBroadcast:
		err = s.service.Broadcast(r.Context(), def, req.Payload)
	case protocol.ChannelUser:
		if len(req.Channel.UserIDs) == 0 {
			writeJSONError(w, http.StatusBadRequest, "user channel requires userIds")
			return
		}
		err = s.service.SendToUsers(r.Context(), def, req.Channel.UserIDs, req.Payload)
	default:
		writeJSONError(w, http.StatusBadRequest, "unknown channel type")
		return
	}

	if err != nil {
		var verr *sig.ValidationError
		if errors.As(err, &verr) {
			writeJSONError(w, http.StatusBadRequest, verr.Error())
			return
		}
		s.logger.Error("emit failed", "signal_id", req.SignalID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "emit failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": s.conns.Count(),
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
