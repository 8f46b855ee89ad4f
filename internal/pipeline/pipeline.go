// Package pipeline turns admitted Plex webhooks into light commands.
package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plexhue/internal/plex"
	"github.com/dokzlo13/plexhue/internal/reconcile"
)

// Admitter decodes and filters raw webhook payloads.
type Admitter interface {
	Admit(raw string) (*plex.Event, bool)
}

// SessionTracker detects session changes and tracks the relevant lights.
type SessionTracker interface {
	Observe(ctx context.Context, key plex.SessionKey) bool
	Clear()
	Relevant() []string
}

// Applier sends the command for an event kind to a set of lights.
type Applier interface {
	Apply(ctx context.Context, eventID string, kind plex.Kind, lights []string) reconcile.Command
}

// Result describes what happened to one webhook
type Result struct {
	Admitted  bool
	Event     *plex.Event
	HasLights bool
	Command   reconcile.Command
}

// Pipeline runs filter, session tracking and reconciliation for one webhook
// at a time; concurrent calls to Handle are serialized.
type Pipeline struct {
	filter     Admitter
	tracker    SessionTracker
	reconciler Applier

	mu sync.Mutex
}

// New creates a new pipeline
func New(filter Admitter, tracker SessionTracker, reconciler Applier) *Pipeline {
	return &Pipeline{
		filter:     filter,
		tracker:    tracker,
		reconciler: reconciler,
	}
}

// Handle processes one raw payload. Light commands are dispatched but not awaited.
func (p *Pipeline) Handle(ctx context.Context, eventID, raw string) Result {
	event, ok := p.filter.Admit(raw)
	if !ok {
		return Result{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	hasLights := p.tracker.Observe(ctx, event.Session)

	// stop always ends the session, even when no light was on
	if event.Kind == plex.KindStop {
		p.tracker.Clear()
	}

	result := Result{
		Admitted:  true,
		Event:     event,
		HasLights: hasLights,
	}

	if !hasLights {
		log.Debug().
			Str("event_id", eventID).
			Str("event", event.Name).
			Msg("No relevant lights, nothing to do")
		return result
	}

	result.Command = p.reconciler.Apply(ctx, eventID, event.Kind, p.tracker.Relevant())

	log.Info().
		Str("event_id", eventID).
		Str("event", event.Name).
		Str("user", event.User).
		Str("player", event.PlayerTitle).
		Str("media", event.MediaTitle).
		Str("command", result.Command.String()).
		Msg("Handled playback event")

	return result
}
