package main

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/chat"
	"github.com/mcdev12/livepoll/go/internal/eventbus"
	"github.com/mcdev12/livepoll/go/internal/gateway"
	"github.com/mcdev12/livepoll/go/internal/metrics"
	"github.com/mcdev12/livepoll/go/internal/poll"
	"github.com/mcdev12/livepoll/go/internal/roster"
	"github.com/mcdev12/livepoll/go/internal/storage"
)

type Services struct {
	Polls     *poll.App
	Roster    *roster.Registry
	Chat      *chat.Log
	Gateway   *gateway.Service
	Metrics   *metrics.PrometheusMetrics
	Publisher eventbus.Publisher
}

func setupServices(ctx context.Context, cfg *Config, store storage.Store) *Services {
	// Wire up dependency injection chain
	// Store → Engine → Session gateway
	clock := clockwork.NewRealClock()
	promMetrics := metrics.NewPrometheusMetrics()
	publisher := setupPublisher(ctx, cfg)

	registry := roster.NewRegistry(clock)
	chatLog := chat.NewLog(cfg.Session.ChatCapacity)

	pollApp := poll.NewApp(store, registry,
		poll.WithClock(clock),
		poll.WithPublisher(publisher),
		poll.WithMetrics(promMetrics),
	)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.CommandTimeout = cfg.Session.CommandTimeout
	gatewayConfig.ConnectionConfig.MaxMessageSize = cfg.Session.MaxMessageSize
	gatewayConfig.ConnectionConfig.CheckOrigin = originChecker(cfg.allowedOrigins())

	gatewayService := gateway.NewService(gatewayConfig, pollApp, registry, chatLog, clock, promMetrics)

	return &Services{
		Polls:     pollApp,
		Roster:    registry,
		Chat:      chatLog,
		Gateway:   gatewayService,
		Metrics:   promMetrics,
		Publisher: publisher,
	}
}

// setupPublisher connects the JetStream mirror. Without a NATS URL, or if
// the bus is unreachable, events are dropped.
func setupPublisher(ctx context.Context, cfg *Config) eventbus.Publisher {
	if cfg.Events.NATSURL == "" {
		log.Info().Msg("NATS_URL not set, lifecycle events will not be mirrored")
		return eventbus.NoopPublisher{}
	}

	jsCfg := eventbus.DefaultJetStreamConfig()
	jsCfg.URL = cfg.Events.NATSURL
	jsCfg.StreamName = cfg.Events.StreamName
	jsCfg.SubjectPrefix = cfg.Events.SubjectPrefix

	publisher, err := eventbus.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		log.Error().Err(err).Str("nats_url", cfg.Events.NATSURL).Msg("failed to connect event bus, continuing without it")
		return eventbus.NoopPublisher{}
	}
	log.Info().Str("stream", jsCfg.StreamName).Msg("mirroring lifecycle events to JetStream")
	return publisher
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
