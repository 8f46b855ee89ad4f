// Package huetest provides an in-memory hue.Bridge for tests.
package huetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/dokzlo13/plexhue/internal/hue"
)

// SetCall records a SetLightState call
type SetCall struct {
	LightID string
	State   hue.State
}

// FakeBridge implements hue.Bridge with configurable lights and groups and
// records every call it receives.
type FakeBridge struct {
	mu sync.Mutex

	groups      []hue.Group
	lights      map[string]bool // light id -> on
	unreachable map[string]bool
	statusErrs  map[string]error
	setErrs     map[string]error
	CreateErr   error
	ListErr     error
	nextGroupID int

	listCalls   int
	createCalls []hue.Group
	probes      []string
	sets        []SetCall

	// Gate, when set, blocks every SetLightState until it is closed.
	Gate chan struct{}
	// ProbeGate, when set, blocks every GetLightStatus until it is closed.
	ProbeGate chan struct{}
}

var _ hue.Bridge = (*FakeBridge)(nil)

// New creates an empty fake bridge
func New() *FakeBridge {
	return &FakeBridge{
		lights:      make(map[string]bool),
		unreachable: make(map[string]bool),
		statusErrs:  make(map[string]error),
		setErrs:     make(map[string]error),
		nextGroupID: 100,
	}
}

// AddGroup registers a group on the fake bridge
func (f *FakeBridge) AddGroup(id, name string, lights ...string) *FakeBridge {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, hue.Group{ID: id, Name: name, Lights: lights})
	for _, l := range lights {
		if _, ok := f.lights[l]; !ok {
			f.lights[l] = false
		}
	}
	return f
}

// SetOn sets the observed power state of a light
func (f *FakeBridge) SetOn(lightID string, on bool) *FakeBridge {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lights[lightID] = on
	return f
}

// SetReachable sets whether the bridge reports a light as reachable
func (f *FakeBridge) SetReachable(lightID string, reachable bool) *FakeBridge {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreachable[lightID] = !reachable
	return f
}

// FailStatus makes GetLightStatus fail for a light
func (f *FakeBridge) FailStatus(lightID string, err error) *FakeBridge {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusErrs[lightID] = err
	return f
}

// FailSet makes SetLightState fail for a light
func (f *FakeBridge) FailSet(lightID string, err error) *FakeBridge {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErrs[lightID] = err
	return f
}

// ListGroups implements hue.Bridge
func (f *FakeBridge) ListGroups(ctx context.Context) ([]hue.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]hue.Group, len(f.groups))
	copy(out, f.groups)
	return out, nil
}

// GetGroup implements hue.Bridge
func (f *FakeBridge) GetGroup(ctx context.Context, groupID string) (*hue.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.ID == groupID {
			g := g
			return &g, nil
		}
	}
	return nil, fmt.Errorf("group %s not found", groupID)
}

// CreateGroup implements hue.Bridge
func (f *FakeBridge) CreateGroup(ctx context.Context, name string, lightIDs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lights := append([]string(nil), lightIDs...)
	f.createCalls = append(f.createCalls, hue.Group{Name: name, Lights: lights})
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	id := strconv.Itoa(f.nextGroupID)
	f.nextGroupID++
	f.groups = append(f.groups, hue.Group{ID: id, Name: name, Lights: lights})
	return id, nil
}

// GetLightStatus implements hue.Bridge
func (f *FakeBridge) GetLightStatus(ctx context.Context, lightID string) (*hue.LightStatus, error) {
	f.mu.Lock()
	gate := f.ProbeGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, lightID)
	if err := f.statusErrs[lightID]; err != nil {
		return nil, err
	}
	on, ok := f.lights[lightID]
	if !ok {
		return nil, fmt.Errorf("light %s not found", lightID)
	}
	status := &hue.LightStatus{ID: lightID, On: on, Reachable: !f.unreachable[lightID]}
	if on {
		status.Brightness = 100
	}
	return status, nil
}

// SetLightState implements hue.Bridge
func (f *FakeBridge) SetLightState(ctx context.Context, lightID string, state hue.State) error {
	f.mu.Lock()
	gate := f.Gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, SetCall{LightID: lightID, State: state})
	if err := f.setErrs[lightID]; err != nil {
		return err
	}
	f.lights[lightID] = state.On
	return nil
}

// ListCalls returns how many times ListGroups was called
func (f *FakeBridge) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// CreateCalls returns all CreateGroup calls
func (f *FakeBridge) CreateCalls() []hue.Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hue.Group(nil), f.createCalls...)
}

// Probes returns the light ids passed to GetLightStatus, in call order
func (f *FakeBridge) Probes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probes...)
}

// Sets returns all SetLightState calls, in call order
func (f *FakeBridge) Sets() []SetCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SetCall(nil), f.sets...)
}

// Reset forgets recorded calls but keeps lights and groups
func (f *FakeBridge) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = 0
	f.createCalls = nil
	f.probes = nil
	f.sets = nil
}
