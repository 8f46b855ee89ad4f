package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plexhue/internal/config"
	"github.com/dokzlo13/plexhue/internal/group"
	"github.com/dokzlo13/plexhue/internal/hue"
	"github.com/dokzlo13/plexhue/internal/ledger"
	"github.com/dokzlo13/plexhue/internal/reconcile"
	"github.com/dokzlo13/plexhue/internal/session"
)

// HueService wraps all Hue-related components: client, managed group, session tracker and reconciler.
type HueService struct {
	cfg    *config.Config
	ledger *ledger.Ledger

	Client     hue.Bridge
	Resolver   *group.Resolver
	Reconciler *reconcile.Reconciler

	mu      sync.RWMutex
	group   *group.LightGroup
	Tracker *session.Tracker
}

// connector is implemented by bridges that verify connectivity up front
type connector interface {
	Connect(ctx context.Context) error
}

// NewHueService creates a new HueService with all components initialized but not connected.
func NewHueService(cfg *config.Config, l *ledger.Ledger) *HueService {
	client := hue.NewClient(cfg.Hue.Bridge, cfg.Hue.Token, cfg.Hue.Timeout.Duration(), cfg.Hue.RateLimitRPS)
	return newHueService(cfg, client, l)
}

func newHueService(cfg *config.Config, bridge hue.Bridge, l *ledger.Ledger) *HueService {
	return &HueService{
		cfg:        cfg,
		ledger:     l,
		Client:     bridge,
		Resolver:   group.NewResolver(bridge, cfg.Group.Name, cfg.Group.Sources),
		Reconciler: reconcile.New(bridge, auditor(l)),
	}
}

// Start connects to the Hue bridge and resolves the managed group.
// Errors are fatal: without a group there is nothing to drive.
func (s *HueService) Start(ctx context.Context) error {
	if c, ok := s.Client.(connector); ok {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	lg, err := s.Resolver.Resolve(ctx)
	if err != nil {
		return err
	}

	if err := s.ledger.Append(ledger.EventGroupResolved, lg.ID, map[string]any{
		"group_id": lg.ID,
		"name":     lg.Name,
		"lights":   lg.Lights,
		"created":  lg.Created,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record group resolution")
	}

	s.mu.Lock()
	s.group = &lg
	s.Tracker = session.NewTracker(s.Client, lg.Lights, auditor(s.ledger))
	s.mu.Unlock()

	log.Info().
		Str("group_id", lg.ID).
		Str("group", lg.Name).
		Strs("lights", lg.Lights).
		Bool("created", lg.Created).
		Msg("Managed light group ready")
	return nil
}

// Group returns the resolved group, or nil before Start succeeded.
func (s *HueService) Group() *group.LightGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.group
}

// Readiness reports whether the managed group is resolved
func (s *HueService) Readiness() (bool, map[string]any) {
	s.mu.RLock()
	lg, tracker := s.group, s.Tracker
	s.mu.RUnlock()

	if lg == nil {
		return false, map[string]any{"group": nil}
	}

	details := map[string]any{
		"group":    lg.Name,
		"group_id": lg.ID,
		"lights":   len(lg.Lights),
	}
	if tracker != nil {
		if key, ok := tracker.Current(); ok {
			details["session"] = key.String()
		}
		details["relevant_lights"] = len(tracker.Relevant())
	}
	for k, v := range s.recentActivity() {
		details[k] = v
	}
	return true, details
}

// recentActivity summarizes the latest ledger rows for the readiness report
func (s *HueService) recentActivity() map[string]any {
	if s.ledger == nil {
		return nil
	}
	activity := make(map[string]any)

	changes, err := s.ledger.GetByType(ledger.EventSessionChanged, 1)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read ledger")
		return nil
	}
	if len(changes) > 0 {
		activity["last_session_change"] = changes[0].Timestamp.Format(time.RFC3339)
	}

	failures, err := s.ledger.GetByType(ledger.EventCommandFailed, 1)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read ledger")
		return activity
	}
	if len(failures) == 0 {
		return activity
	}

	// Every light command of one webhook shares its event id
	outcomes, err := s.ledger.GetByKey(failures[0].IdempotencyKey)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read ledger")
		return activity
	}
	applied, failed := 0, 0
	for _, e := range outcomes {
		switch e.EventType {
		case ledger.EventCommandApplied:
			applied++
		case ledger.EventCommandFailed:
			failed++
		}
	}
	activity["last_failed_event"] = map[string]any{
		"event_id": failures[0].IdempotencyKey,
		"at":       failures[0].Timestamp.Format(time.RFC3339),
		"applied":  applied,
		"failed":   failed,
	}
	return activity
}

// Close stops issuing light commands and waits for the in-flight ones.
func (s *HueService) Close(ctx context.Context) {
	if err := s.Reconciler.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Light commands still in flight at shutdown")
	}
}

// auditor keeps a disabled ledger from becoming a typed-nil interface
func auditor(l *ledger.Ledger) reconcileAuditor {
	if l == nil {
		return nil
	}
	return l
}

// reconcileAuditor satisfies both the reconciler and tracker audit interfaces
type reconcileAuditor interface {
	reconcile.Auditor
	session.Auditor
}
