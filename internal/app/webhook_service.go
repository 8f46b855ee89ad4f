package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plexhue/internal/config"
	"github.com/dokzlo13/plexhue/internal/eventbus"
	"github.com/dokzlo13/plexhue/internal/webhook"
)

// WebhookService wraps the webhook HTTP server.
type WebhookService struct {
	cfg    *config.Config
	server *webhook.Server
	done   chan struct{}
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(cfg *config.Config, bus *eventbus.Bus, readiness webhook.ReadinessReporter) *WebhookService {
	server := webhook.NewServer(cfg.Webhook.Addr(), cfg.Webhook.Path, cfg.Webhook.MaxFormMemory, bus, readiness)
	return &WebhookService{
		cfg:    cfg,
		server: server,
		done:   make(chan struct{}),
	}
}

// Start runs the webhook server until ctx is cancelled.
// A listen failure is reported through onFatalError.
func (s *WebhookService) Start(ctx context.Context, onFatalError func(error)) {
	go func() {
		defer close(s.done)
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("Webhook server error")
			if onFatalError != nil {
				onFatalError(err)
			}
		}
	}()
}

// Wait blocks until the server has stopped or ctx expires.
func (s *WebhookService) Wait(ctx context.Context) {
	select {
	case <-s.done:
	case <-ctx.Done():
		log.Warn().Msg("Webhook server did not stop in time")
	}
}
