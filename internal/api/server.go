package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/castlogic-core/internal/auth"
	"github.com/nerrad567/castlogic-core/internal/events"
	"github.com/nerrad567/castlogic-core/internal/infrastructure/config"
	"github.com/nerrad567/castlogic-core/internal/infrastructure/logging"
	"github.com/nerrad567/castlogic-core/internal/phrase"
	"github.com/nerrad567/castlogic-core/internal/queue"
	"github.com/nerrad567/castlogic-core/internal/receiver"
	"github.com/nerrad567/castlogic-core/internal/status"
	"github.com/nerrad567/castlogic-core/internal/supervisor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Receivers is the receiver registry as used by the API.
// *receiver.Registry satisfies it.
type Receivers interface {
	List() []receiver.Device
	Get(ctx context.Context, id string) (receiver.Device, error)
	GetStatus(id string) (status.ReceiverStatus, bool)
	Stats() []supervisor.Stats
	Send(ctx context.Context, id string, cmd supervisor.Command) error
}

// Planner resolves language phrases into playback plans.
// *phrase.Resolver satisfies it.
type Planner interface {
	Resolve(ctx context.Context, p phrase.LanguagePhrase) (*phrase.Plan, error)
	Sources() []string
}

// EventSource is the subscribing side of the event bus.
type EventSource interface {
	Subscribe(name string, h events.Handler) events.Subscription
	Unsubscribe(id string) bool
}

// BrokerStatus reports the MQTT connection state for health output.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Receivers Receivers
	Queues    *queue.Engine
	Planner   Planner
	Gate      *auth.KeyGate
	Events    EventSource  // optional: WebSocket relay disabled without it
	MQTT      BrokerStatus // optional
	DB        *sql.DB      // optional: pool stats in /metrics
	Version   string
}

// Server is the HTTP API server for Cast Logic Core.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	receivers Receivers
	queues    *queue.Engine
	planner   Planner
	gate      *auth.KeyGate
	events    EventSource
	mqtt      BrokerStatus
	db        *sql.DB
	version   string
	startTime time.Time

	server *http.Server
	hub    *Hub
	relay  events.Subscription
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Receivers == nil {
		return nil, fmt.Errorf("receiver registry is required")
	}
	if deps.Queues == nil {
		return nil, fmt.Errorf("queue engine is required")
	}
	if deps.Planner == nil {
		return nil, fmt.Errorf("phrase planner is required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("auth gate is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		receivers: deps.Receivers,
		queues:    deps.Queues,
		planner:   deps.Planner,
		gate:      deps.Gate,
		events:    deps.Events,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes it to receiver events, and
// launches the HTTP listener in a background goroutine. The server can
// be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.attachRelay()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.events != nil && s.relay.ID != "" {
		s.events.Unsubscribe(s.relay.ID)
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

// HealthCheck verifies the API server is running and responsive.
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
