// Package session tracks the current Plex playback session and the lights
// that were on when it started.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plexhue/internal/hue"
	"github.com/dokzlo13/plexhue/internal/ledger"
	"github.com/dokzlo13/plexhue/internal/plex"
)

// StatusProber queries the power state of a single light.
type StatusProber interface {
	GetLightStatus(ctx context.Context, lightID string) (*hue.LightStatus, error)
}

// Auditor records tracker events.
type Auditor interface {
	Append(eventType ledger.EventType, idempotencyKey string, payload map[string]any) error
}

// Tracker holds the session state: the current session key (nil when none)
// and the relevant lights, i.e. the group members observed on at the last
// session change. The relevant set is always a subset of the group lights.
type Tracker struct {
	prober  StatusProber
	auditor Auditor
	lights  []string

	// observeMu serializes Observe; mu guards the fields below it.
	observeMu sync.Mutex
	mu        sync.RWMutex
	current   *plex.SessionKey
	relevant  []string
}

// NewTracker creates a tracker for the given group lights.
// auditor may be nil.
func NewTracker(prober StatusProber, lights []string, auditor Auditor) *Tracker {
	return &Tracker{
		prober:  prober,
		auditor: auditor,
		lights:  append([]string(nil), lights...),
	}
}

// Observe compares key with the current session. On a change it becomes the
// current session and every group light is probed concurrently; Observe
// returns once all probes have completed. An unchanged key reuses the last
// probe result. Returns whether any relevant light is known.
func (t *Tracker) Observe(ctx context.Context, key plex.SessionKey) bool {
	t.observeMu.Lock()
	defer t.observeMu.Unlock()

	t.mu.RLock()
	changed := t.current == nil || *t.current != key
	t.mu.RUnlock()

	if !changed {
		return t.hasRelevant()
	}

	relevant := t.probe(ctx)

	t.mu.Lock()
	k := key
	t.current = &k
	t.relevant = relevant
	t.mu.Unlock()

	log.Info().
		Str("session", key.String()).
		Strs("relevant_lights", relevant).
		Int("group_lights", len(t.lights)).
		Msg("Playback session changed")

	if t.auditor != nil {
		if err := t.auditor.Append(ledger.EventSessionChanged, "", map[string]any{
			"session":         key.String(),
			"relevant_lights": relevant,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to record session change")
		}
	}

	return len(relevant) > 0
}

// probe fans out a status query per group light and joins on all of them.
func (t *Tracker) probe(ctx context.Context) []string {
	on := make([]bool, len(t.lights))

	var wg sync.WaitGroup
	for i, lightID := range t.lights {
		wg.Add(1)
		go func(i int, lightID string) {
			defer wg.Done()
			status, err := t.prober.GetLightStatus(ctx, lightID)
			if err != nil {
				log.Warn().Err(err).Str("light", lightID).Msg("Light status probe failed")
				return
			}
			if status == nil {
				return
			}
			log.Debug().
				Str("light", lightID).
				Bool("on", status.On).
				Int("brightness", status.Brightness).
				Bool("reachable", status.Reachable).
				Msg("Probed light")
			// The bridge keeps the last known state of an unreachable light
			if status.On && !status.Reachable {
				log.Warn().Str("light", lightID).Msg("Light reported on but unreachable, commands may fail")
			}
			on[i] = status.On
		}(i, lightID)
	}
	wg.Wait()

	// Keep group order so results are deterministic
	relevant := make([]string, 0, len(t.lights))
	for i, lightID := range t.lights {
		if on[i] {
			relevant = append(relevant, lightID)
		}
	}
	return relevant
}

// Clear forgets the current session so the next event is a session change.
// The relevant set is left as is; the next Observe recomputes it.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = nil
}

// Current returns the current session key and whether one is set
func (t *Tracker) Current() (plex.SessionKey, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return plex.SessionKey{}, false
	}
	return *t.current, true
}

// Relevant returns a copy of the relevant light set
func (t *Tracker) Relevant() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.relevant...)
}

func (t *Tracker) hasRelevant() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.relevant) > 0
}
