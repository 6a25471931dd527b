package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/chat"
)

// Service is the session gateway: WebSocket admission, command dispatch,
// event fan-out and the REST surface.
type Service struct {
	connectionManager *ConnectionManager
	session           *Session
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	CommandTimeout   time.Duration
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		CommandTimeout:   10 * time.Second,
	}
}

// NewService creates a new gateway service
func NewService(config Config, engine PollEngine, roster Roster, chatLog *chat.Log, clock clockwork.Clock, metrics Metrics) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	connectionManager := NewConnectionManager(config.ConnectionConfig, metrics)
	session := NewSession(engine, roster, chatLog, connectionManager, clock, config.CommandTimeout)

	return &Service{
		connectionManager: connectionManager,
		session:           session,
		wsHandler:         NewWebSocketHandler(connectionManager, session),
		stateHandler:      NewStateHandler(session),
	}
}

// Start runs the broadcast loop and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting session gateway")

	done := make(chan struct{})
	go func() {
		s.connectionManager.Start(ctx)
		close(done)
	}()

	<-ctx.Done()
	<-done

	log.Info().Msg("session gateway shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service
func (s *Service) Stop() error {
	log.Info().Msg("session gateway stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

func (s *Service) Session() *Session {
	return s.session
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
