package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/plexhue/internal/hue"
	"github.com/dokzlo13/plexhue/internal/hue/huetest"
	"github.com/dokzlo13/plexhue/internal/plex"
	"github.com/dokzlo13/plexhue/internal/reconcile"
	"github.com/dokzlo13/plexhue/internal/session"
)

type harness struct {
	bridge     *huetest.FakeBridge
	tracker    *session.Tracker
	reconciler *reconcile.Reconciler
	pipeline   *Pipeline
}

func newHarness(lights ...string) *harness {
	bridge := huetest.New().AddGroup("1", "Plex Home Theater", lights...)
	tracker := session.NewTracker(bridge, lights, nil)
	reconciler := reconcile.New(bridge, nil)
	filter := plex.NewFilter([]string{"alice"}, []string{"player-1"}, []string{"track"})
	return &harness{
		bridge:     bridge,
		tracker:    tracker,
		reconciler: reconciler,
		pipeline:   New(filter, tracker, reconciler),
	}
}

func (h *harness) handle(t *testing.T, raw string) Result {
	t.Helper()
	result := h.pipeline.Handle(context.Background(), "test", raw)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.reconciler.Wait(ctx))
	return result
}

func payload(event, key string) string {
	return fmt.Sprintf(`{"event":%q,"Account":{"title":"alice"},"Player":{"uuid":"player-1","title":"TV"},"Metadata":{"type":"movie","key":%q}}`, event, key)
}

func setIDs(sets []huetest.SetCall) []string {
	ids := make([]string, 0, len(sets))
	for _, s := range sets {
		ids = append(ids, s.LightID)
	}
	sort.Strings(ids)
	return ids
}

func TestPauseDimsOnlyLightsThatWereOn(t *testing.T) {
	h := newHarness("L1", "L2")
	h.bridge.SetOn("L1", true).SetOn("L2", false)

	result := h.handle(t, payload("media.pause", "s1"))

	assert.True(t, result.Admitted)
	assert.True(t, result.HasLights)
	assert.Equal(t, reconcile.CommandDim, result.Command)
	assert.Equal(t, []huetest.SetCall{
		{LightID: "L1", State: hue.State{On: true, Brightness: 33}},
	}, h.bridge.Sets())
}

func TestNoRelevantLightsSendsNothing(t *testing.T) {
	h := newHarness("L1", "L2")

	for _, event := range []string{"media.play", "media.pause", "media.resume", "media.stop"} {
		result := h.handle(t, payload(event, "s1"))
		assert.True(t, result.Admitted)
		assert.False(t, result.HasLights)
	}
	assert.Empty(t, h.bridge.Sets())
}

func TestRejectedPayloadsTouchNothing(t *testing.T) {
	h := newHarness("L1")
	h.bridge.SetOn("L1", true)

	payloads := []string{
		`not json`,
		`{"event":"media.play","Account":{"title":"bob"},"Player":{"uuid":"player-1"},"Metadata":{"type":"movie","key":"1"}}`,
		`{"event":"media.play","Account":{"title":"alice"},"Player":{"uuid":"other"},"Metadata":{"type":"movie","key":"1"}}`,
		`{"event":"media.play","Account":{"title":"alice"},"Player":{"uuid":"player-1"},"Metadata":{"type":"track","key":"1"}}`,
		`{"event":"media.play","Account":{"title":"alice"},"Player":{"uuid":"player-1"},"Metadata":{"key":"1"}}`,
	}

	for _, raw := range payloads {
		result := h.handle(t, raw)
		assert.False(t, result.Admitted)
	}
	assert.Empty(t, h.bridge.Probes())
	assert.Empty(t, h.bridge.Sets())
}

func TestSameSessionProbesOnce(t *testing.T) {
	h := newHarness("L1", "L2")
	h.bridge.SetOn("L1", true).SetOn("L2", true)

	h.handle(t, payload("media.play", "s1"))
	h.handle(t, payload("media.pause", "s1"))
	h.handle(t, payload("media.resume", "s1"))

	assert.Len(t, h.bridge.Probes(), 2, "one probe per light for the whole session")
	assert.Len(t, h.bridge.Sets(), 6)
}

func TestLightsTurnedOffByPlayStayRelevant(t *testing.T) {
	h := newHarness("L1", "L2")
	h.bridge.SetOn("L1", true)

	h.handle(t, payload("media.play", "s1"))
	h.bridge.Reset()

	// L1 is now off on the bridge, but the session did not change
	result := h.handle(t, payload("media.pause", "s1"))
	assert.Equal(t, reconcile.CommandDim, result.Command)
	assert.Equal(t, []string{"L1"}, setIDs(h.bridge.Sets()))
	assert.Empty(t, h.bridge.Probes())
}

func TestStopTurnsLightsOnAndEndsSession(t *testing.T) {
	h := newHarness("L1", "L2")
	h.bridge.SetOn("L1", true).SetOn("L2", true)

	h.handle(t, payload("media.play", "s1"))
	h.bridge.Reset()

	result := h.handle(t, payload("media.stop", "s1"))
	assert.Equal(t, reconcile.CommandOn, result.Command)
	assert.Equal(t, []string{"L1", "L2"}, setIDs(h.bridge.Sets()))
	for _, s := range h.bridge.Sets() {
		assert.Equal(t, hue.State{On: true, Brightness: 100}, s.State)
	}

	_, ok := h.tracker.Current()
	assert.False(t, ok)

	// Same key again is a new session and probes again
	h.bridge.Reset()
	h.handle(t, payload("media.play", "s1"))
	assert.Len(t, h.bridge.Probes(), 2)
}

func TestStopClearsSessionEvenWithoutLights(t *testing.T) {
	h := newHarness("L1")

	h.handle(t, payload("media.stop", "s1"))
	_, ok := h.tracker.Current()
	assert.False(t, ok)

	h.bridge.Reset()
	h.handle(t, payload("media.play", "s1"))
	assert.Len(t, h.bridge.Probes(), 1)
}

func TestUnmappedEventStillTracksSession(t *testing.T) {
	h := newHarness("L1")
	h.bridge.SetOn("L1", true)

	result := h.handle(t, payload("media.scrobble", "s1"))
	assert.True(t, result.Admitted)
	assert.True(t, result.HasLights)
	assert.Equal(t, reconcile.CommandNone, result.Command)
	assert.Empty(t, h.bridge.Sets())
	assert.Len(t, h.bridge.Probes(), 1)

	h.bridge.Reset()
	h.handle(t, payload("media.play", "s1"))
	assert.Empty(t, h.bridge.Probes())
	assert.Len(t, h.bridge.Sets(), 1)
}

func TestConcurrentHandlesAreSerialized(t *testing.T) {
	h := newHarness("L1", "L2", "L3")
	h.bridge.SetOn("L1", true).SetOn("L2", true).SetOn("L3", true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.pipeline.Handle(context.Background(), "concurrent", payload("media.pause", "same"))
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.reconciler.Wait(ctx))

	assert.Len(t, h.bridge.Probes(), 3, "the shared session is probed exactly once")
	assert.Len(t, h.bridge.Sets(), 60)
}
