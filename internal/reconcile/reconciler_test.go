package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/plexhue/internal/hue"
	"github.com/dokzlo13/plexhue/internal/hue/huetest"
	"github.com/dokzlo13/plexhue/internal/ledger"
	"github.com/dokzlo13/plexhue/internal/plex"
)

type recordingAuditor struct {
	mu      sync.Mutex
	entries map[ledger.EventType][]string
}

func newRecordingAuditor() *recordingAuditor {
	return &recordingAuditor{entries: make(map[ledger.EventType][]string)}
}

func (a *recordingAuditor) Append(eventType ledger.EventType, _ string, payload map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	light, _ := payload["light"].(string)
	a.entries[eventType] = append(a.entries[eventType], light)
	return nil
}

func (a *recordingAuditor) lights(eventType ledger.EventType) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := append([]string(nil), a.entries[eventType]...)
	sort.Strings(out)
	return out
}

func waitAll(t *testing.T, r *Reconciler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func TestCommandFor(t *testing.T) {
	tests := []struct {
		kind     plex.Kind
		expected Command
		ok       bool
	}{
		{plex.KindPlay, CommandOff, true},
		{plex.KindResume, CommandOff, true},
		{plex.KindPause, CommandDim, true},
		{plex.KindStop, CommandOn, true},
		{plex.KindOther, CommandNone, false},
		{plex.Kind(42), CommandNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got, ok := CommandFor(tt.kind)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("CommandFor(%s) = (%s, %v), want (%s, %v)",
					tt.kind, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestCommandState(t *testing.T) {
	tests := []struct {
		command  Command
		expected hue.State
	}{
		{CommandOff, hue.State{On: false}},
		{CommandOn, hue.State{On: true, Brightness: 100}},
		{CommandDim, hue.State{On: true, Brightness: 33}},
	}

	for _, tt := range tests {
		t.Run(tt.command.String(), func(t *testing.T) {
			if got := tt.command.State(); got != tt.expected {
				t.Errorf("State() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		command  Command
		expected string
	}{
		{CommandNone, "none"},
		{CommandOff, "off"},
		{CommandOn, "on"},
		{CommandDim, "dim"},
		{Command(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.command.String(); got != tt.expected {
				t.Errorf("Command.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestApplyPauseDimsOnlyRelevantLights(t *testing.T) {
	bridge := huetest.New().
		AddGroup("1", "Plex Home Theater", "L1", "L2").
		SetOn("L1", true)
	r := New(bridge, nil)

	cmd := r.Apply(context.Background(), "evt", plex.KindPause, []string{"L1"})
	waitAll(t, r)

	assert.Equal(t, CommandDim, cmd)
	assert.Equal(t, []huetest.SetCall{
		{LightID: "L1", State: hue.State{On: true, Brightness: 33}},
	}, bridge.Sets())
}

func TestApplyEveryRelevantLight(t *testing.T) {
	bridge := huetest.New().AddGroup("1", "Plex Home Theater", "L1", "L2", "L3")
	r := New(bridge, nil)

	r.Apply(context.Background(), "evt", plex.KindPlay, []string{"L1", "L2", "L3"})
	waitAll(t, r)

	sets := bridge.Sets()
	require.Len(t, sets, 3)
	var ids []string
	for _, s := range sets {
		assert.Equal(t, hue.State{On: false}, s.State)
		ids = append(ids, s.LightID)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"L1", "L2", "L3"}, ids)
}

func TestApplyNoCommandForOtherKinds(t *testing.T) {
	bridge := huetest.New().AddGroup("1", "Plex Home Theater", "L1")
	r := New(bridge, nil)

	cmd := r.Apply(context.Background(), "evt", plex.KindOther, []string{"L1"})
	waitAll(t, r)

	assert.Equal(t, CommandNone, cmd)
	assert.Empty(t, bridge.Sets())
}

func TestApplyEmptyLightsSendsNothing(t *testing.T) {
	bridge := huetest.New()
	r := New(bridge, nil)

	for _, kind := range []plex.Kind{plex.KindPlay, plex.KindResume, plex.KindPause, plex.KindStop} {
		assert.Equal(t, CommandNone, r.Apply(context.Background(), "evt", kind, nil))
	}
	waitAll(t, r)
	assert.Empty(t, bridge.Sets())
}

func TestApplyFailureDoesNotBlockSiblings(t *testing.T) {
	bridge := huetest.New().
		AddGroup("1", "Plex Home Theater", "L1", "L2", "L3").
		FailSet("L2", errors.New("unreachable"))
	auditor := newRecordingAuditor()
	r := New(bridge, auditor)

	r.Apply(context.Background(), "evt", plex.KindStop, []string{"L1", "L2", "L3"})
	waitAll(t, r)

	assert.Len(t, bridge.Sets(), 3)
	assert.Equal(t, []string{"L1", "L3"}, auditor.lights(ledger.EventCommandApplied))
	assert.Equal(t, []string{"L2"}, auditor.lights(ledger.EventCommandFailed))
}

func TestApplyReturnsBeforeBridgeResponds(t *testing.T) {
	bridge := huetest.New().AddGroup("1", "Plex Home Theater", "L1")
	bridge.Gate = make(chan struct{})
	r := New(bridge, nil)

	r.Apply(context.Background(), "evt", plex.KindPlay, []string{"L1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)

	close(bridge.Gate)
	waitAll(t, r)
	assert.Len(t, bridge.Sets(), 1)
}

func TestCloseWaitsForInflightCommands(t *testing.T) {
	bridge := huetest.New().AddGroup("1", "Plex Home Theater", "L1", "L2")
	bridge.Gate = make(chan struct{})
	r := New(bridge, nil)

	r.Apply(context.Background(), "evt", plex.KindStop, []string{"L1", "L2"})

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		closed <- r.Close(ctx)
	}()

	close(bridge.Gate)
	require.NoError(t, <-closed)
	assert.Len(t, bridge.Sets(), 2)
}

func TestApplyAfterCloseIsDropped(t *testing.T) {
	bridge := huetest.New().AddGroup("1", "Plex Home Theater", "L1")
	r := New(bridge, nil)
	require.NoError(t, r.Close(context.Background()))

	cmd := r.Apply(context.Background(), "late", plex.KindPause, []string{"L1"})

	assert.Equal(t, CommandNone, cmd)
	waitAll(t, r)
	assert.Empty(t, bridge.Sets())
}
