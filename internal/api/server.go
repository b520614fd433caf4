package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-homesim/internal/audit"
	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/dispatch"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-homesim/internal/telemetry"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Logger is the logging interface used by the server and hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DeviceStore is the registry as seen by the API.
type DeviceStore interface {
	All() []device.Record
	Get(id string) (device.Record, bool)
	Count() int
}

// Registrar applies registration pushes. *ingest.Ingestor satisfies it.
type Registrar interface {
	Apply(msg telemetry.Message) (device.Record, error)
}

// CommandSender dispatches commands. *dispatch.Dispatcher satisfies it.
type CommandSender interface {
	Send(ctx context.Context, rec device.Record, action string, params dispatch.Params) dispatch.Result
}

// ShutdownPublisher publishes on the shutdown exchange.
// *telemetry.Publisher satisfies it.
type ShutdownPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// HealthChecker reports a component's health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server. Registry and Logger are
// required; the endpoints backed by a nil optional dependency answer 503.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     Logger
	Registry   DeviceStore
	Registrar  Registrar
	Dispatcher CommandSender
	Audit      audit.Repository
	Shutdown   ShutdownPublisher
	Health     map[string]HealthChecker
	Hub        *Hub // if set, used instead of a hub owned by the server
	Version    string
}

// Server is the coordinator's HTTP API.
type Server struct {
	cfg        config.APIConfig
	logger     Logger
	registry   DeviceStore
	registrar  Registrar
	dispatcher CommandSender
	audit      audit.Repository
	shutdown   ShutdownPublisher
	health     map[string]HealthChecker
	version    string

	hub         *Hub
	externalHub bool
	server      *http.Server
	listener    net.Listener
	cancel      context.CancelFunc
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("device registry is required")
	}

	s := &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		registry:   deps.Registry,
		registrar:  deps.Registrar,
		dispatcher: deps.Dispatcher,
		audit:      deps.Audit,
		shutdown:   deps.Shutdown,
		health:     deps.Health,
		version:    deps.Version,
		hub:        deps.Hub,
	}
	if s.hub != nil {
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start listens on the configured address and serves in the background.
// A listen failure, such as a port in use, is returned directly.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = lis

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", lis.Addr().String())
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
