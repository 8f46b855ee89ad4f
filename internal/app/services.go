package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plexhue/internal/config"
	"github.com/dokzlo13/plexhue/internal/db"
	"github.com/dokzlo13/plexhue/internal/eventbus"
	"github.com/dokzlo13/plexhue/internal/hue"
	"github.com/dokzlo13/plexhue/internal/ledger"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// High-level services
	Hue       *HueService
	Events    *EventService
	Webhook   *WebhookService
	Retention *LedgerService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s, err := openLedger(cfg)
	if err != nil {
		return nil, err
	}
	s.wire(NewHueService(cfg, s.Ledger))
	return s, nil
}

// newServicesWithBridge wires the services around an already constructed bridge
func newServicesWithBridge(cfg *config.Config, bridge hue.Bridge) (*Services, error) {
	s, err := openLedger(cfg)
	if err != nil {
		return nil, err
	}
	s.wire(newHueService(cfg, bridge, s.Ledger))
	return s, nil
}

func openLedger(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	if !cfg.Ledger.IsEnabled() {
		log.Info().Msg("Audit ledger disabled")
		return s, nil
	}

	database, err := db.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Ledger = ledger.New(database.DB)
	return s, nil
}

func (s *Services) wire(hueSvc *HueService) {
	s.Hue = hueSvc
	s.Bus = eventbus.NewWithConfig(s.cfg.EventBus.Workers, s.cfg.EventBus.QueueSize)
	s.Events = NewEventService(s.cfg, s.Hue, s.Bus)
	s.Webhook = NewWebhookService(s.cfg, s.Bus, s.Hue)
	s.Retention = NewLedgerService(s.cfg, s.Ledger)
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a background service fails for good.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// Connect to the bridge and resolve the managed group before accepting webhooks
	if err := s.Hue.Start(ctx); err != nil {
		return err
	}

	s.Events.Start(ctx)
	s.Retention.Start(ctx)
	s.Webhook.Start(ctx, onFatalError)

	return nil
}

// Stop gracefully stops all services. The context passed to Start must
// already be cancelled so the HTTP server is shutting down.
func (s *Services) Stop(ctx context.Context) error {
	if s.Webhook != nil {
		s.Webhook.Wait(ctx)
	}
	if s.Events != nil {
		s.Events.Close(ctx)
	}
	if s.Hue != nil {
		s.Hue.Close(ctx)
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
		s.DB = nil
	}
}
