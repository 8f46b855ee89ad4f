package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plexhue/internal/config"
	"github.com/dokzlo13/plexhue/internal/eventbus"
	"github.com/dokzlo13/plexhue/internal/pipeline"
	"github.com/dokzlo13/plexhue/internal/plex"
)

// EventService feeds webhook events from the bus into the playback pipeline.
type EventService struct {
	cfg *config.Config
	hue *HueService
	bus *eventbus.Bus

	Pipeline *pipeline.Pipeline
}

// NewEventService creates a new EventService.
func NewEventService(cfg *config.Config, hueSvc *HueService, bus *eventbus.Bus) *EventService {
	return &EventService{
		cfg: cfg,
		hue: hueSvc,
		bus: bus,
	}
}

// Start builds the pipeline over the resolved group and subscribes it to webhook events.
// Must run after HueService.Start. Cancelling ctx does not abort queued events.
func (s *EventService) Start(ctx context.Context) {
	filter := plex.NewFilter(s.cfg.Plex.Users, s.cfg.Plex.Players, s.cfg.Plex.ExcludedTypes)
	s.Pipeline = pipeline.New(filter, s.hue.Tracker, s.hue.Reconciler)

	// Queued events still reach the bridge after the shutdown signal.
	// Each bridge call stays bounded by the client's request timeout.
	workCtx := context.WithoutCancel(ctx)

	s.bus.Subscribe(eventbus.EventTypePlexWebhook, func(event eventbus.Event) {
		result := s.Pipeline.Handle(workCtx, event.ID, event.Payload)
		log.Debug().
			Str("event_id", event.ID).
			Bool("admitted", result.Admitted).
			Bool("has_lights", result.HasLights).
			Str("command", result.Command.String()).
			Dur("latency", time.Since(event.ReceivedAt)).
			Msg("Webhook event processed")
	})
}

// Close shuts down the bus, letting queued events finish.
func (s *EventService) Close(ctx context.Context) {
	s.bus.Close(ctx)
}
