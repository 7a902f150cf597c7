package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/knxnet-core/internal/infrastructure/config"
	"github.com/nerrad567/knxnet-core/internal/infrastructure/logging"
	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/client"
	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
	"github.com/nerrad567/knxnet-core/internal/knxnet/status"
	"github.com/nerrad567/knxnet-core/internal/observer"
)

// gracefulShutdownTimeout bounds in-flight requests on Close.
const gracefulShutdownTimeout = 10 * time.Second

// ClientView is the part of the KNXnet/IP client the API reads.
// *client.Client satisfies it.
type ClientView interface {
	State() client.State
	ChannelID() (uint8, bool)
	IndividualAddress() address.Address
	Gateway() (netip.AddrPort, bool)
	Config() client.Config
	Stats() stats.Statistics
}

// AddressSource lists addresses seen on the bus. *observer.AddressRecorder
// satisfies it.
type AddressSource interface {
	GroupAddresses(ctx context.Context, limit int) ([]observer.GroupAddressRecord, error)
	Devices(ctx context.Context) ([]observer.DeviceRecord, error)
}

// HealthChecker is implemented by the infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Client   ClientView
	Status   status.Reader

	// Optional.
	Addresses AddressSource
	Gatherer  prometheus.Gatherer
	Hub       *Hub
	Health    map[string]HealthChecker
	Version   string
}

// Server is the HTTP status server.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	client    ClientView
	status    status.Reader
	addresses AddressSource
	gatherer  prometheus.Gatherer
	health    map[string]HealthChecker
	version   string
	started   time.Time

	hub         *Hub
	externalHub bool

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	serveErr chan error
}

// New creates a server. It does not listen until Start.
//
// Returns:
//   - *Server: Configured server
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("knxnet client is required")
	}
	if deps.Status == nil {
		return nil, fmt.Errorf("status reader is required")
	}

	s := &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		logger:    deps.Logger.Component("api"),
		client:    deps.Client,
		status:    deps.Status,
		addresses: deps.Addresses,
		gatherer:  deps.Gatherer,
		health:    deps.Health,
		version:   deps.Version,
		started:   time.Now(),
		hub:       deps.Hub,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.hub != nil {
		s.externalHub = true
	} else {
		s.hub = NewHub(s.logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub. Register it with the observer registry to
// feed it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router. Exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start listens on the configured address and serves in the background.
//
// Returns:
//   - error: If the listener cannot be opened (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.serveErr = make(chan error, 1)

	s.logger.Info("API server starting", "address", ln.Addr().String(), "auth", s.authEnabled())
	go func() {
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
			s.serveErr <- err
		}
		close(s.serveErr)
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Err returns a channel that yields a serve failure, then closes when the
// server stops.
func (s *Server) Err() <-chan error {
	return s.serveErr
}

// Close shuts the server down, waiting up to 10 seconds for in-flight
// requests.
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

// HealthCheck reports whether the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
