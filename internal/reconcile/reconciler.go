package reconcile

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plexhue/internal/hue"
	"github.com/dokzlo13/plexhue/internal/ledger"
	"github.com/dokzlo13/plexhue/internal/plex"
)

// Applier pushes a target state to one light.
type Applier interface {
	SetLightState(ctx context.Context, lightID string, state hue.State) error
}

// Auditor records command outcomes.
type Auditor interface {
	Append(eventType ledger.EventType, idempotencyKey string, payload map[string]any) error
}

// Reconciler applies event commands to the relevant lights.
// Each light gets its own detached request; one failure never affects the others.
type Reconciler struct {
	applier Applier
	auditor Auditor

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// New creates a new Reconciler. auditor may be nil.
func New(applier Applier, auditor Auditor) *Reconciler {
	return &Reconciler{
		applier: applier,
		auditor: auditor,
	}
}

// Apply issues the command for kind to every light in lights and returns
// without waiting for the bridge. eventID tags log lines and ledger rows.
// Returns the command issued, or CommandNone when the kind maps to nothing
// or lights is empty.
func (r *Reconciler) Apply(ctx context.Context, eventID string, kind plex.Kind, lights []string) Command {
	cmd, ok := CommandFor(kind)
	if !ok || len(lights) == 0 {
		return CommandNone
	}

	// Add under mu so no new command slips in once Close has started waiting
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		log.Warn().
			Str("event_id", eventID).
			Str("kind", kind.String()).
			Msg("Reconciler closed, dropping command")
		return CommandNone
	}
	r.inflight.Add(len(lights))
	r.mu.Unlock()

	state := cmd.State()
	description := describe(kind)

	log.Debug().
		Str("event_id", eventID).
		Str("kind", kind.String()).
		Str("command", cmd.String()).
		Strs("lights", lights).
		Msg("Applying command")

	for _, lightID := range lights {
		go func(lightID string) {
			defer r.inflight.Done()
			r.applyOne(ctx, eventID, cmd, state, description, lightID)
		}(lightID)
	}

	return cmd
}

func (r *Reconciler) applyOne(ctx context.Context, eventID string, cmd Command, state hue.State, description, lightID string) {
	err := r.applier.SetLightState(ctx, lightID, state)

	payload := map[string]any{
		"light":   lightID,
		"command": cmd.String(),
	}
	eventType := ledger.EventCommandApplied

	if err != nil {
		log.Error().
			Err(err).
			Str("event_id", eventID).
			Str("light", lightID).
			Str("command", cmd.String()).
			Msg("An error occurred and state could not be changed on light")
		payload["error"] = err.Error()
		eventType = ledger.EventCommandFailed
	} else {
		log.Info().
			Str("event_id", eventID).
			Str("light", lightID).
			Msg(description)
	}

	if r.auditor != nil {
		if aerr := r.auditor.Append(eventType, eventID, payload); aerr != nil {
			log.Warn().Err(aerr).Str("light", lightID).Msg("Failed to record command outcome")
		}
	}
}

// Close stops accepting commands and waits for the in-flight ones.
func (r *Reconciler) Close(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()
	return r.Wait(ctx)
}

// Wait blocks until every in-flight command has finished or ctx is done.
// Callers must not run Apply concurrently with Wait; use Close at shutdown.
// When ctx wins, the waiter goroutine lives on until the remaining requests
// hit their per-request timeout.
func (r *Reconciler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
