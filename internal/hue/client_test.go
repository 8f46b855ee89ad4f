package hue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridgeServer serves the subset of the v1 API the client uses.
type fakeBridgeServer struct {
	mu     sync.Mutex
	bodies map[string]string // "METHOD path" -> last request body
}

func (s *fakeBridgeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/token"), "/")

	s.mu.Lock()
	s.bodies[r.Method+" "+path] = string(body)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && path == "/config":
		io.WriteString(w, `{"name":"Philips hue","apiversion":"1.50.0"}`)
	case r.Method == http.MethodGet && path == "/groups":
		io.WriteString(w, `{
			"1": {"name": "Living room", "lights": ["1", "2"], "type": "Room"},
			"2": {"name": "Plex Home Theater", "lights": ["3"], "type": "LightGroup"}
		}`)
	case r.Method == http.MethodGet && path == "/groups/2":
		io.WriteString(w, `{"name": "Plex Home Theater", "lights": ["3", "4"], "type": "LightGroup"}`)
	case r.Method == http.MethodPost && path == "/groups":
		io.WriteString(w, `[{"success": {"id": "7"}}]`)
	case r.Method == http.MethodGet && path == "/lights/3":
		io.WriteString(w, `{"name": "Lamp", "state": {"on": true, "bri": 254, "reachable": true}}`)
	case r.Method == http.MethodPut && path == "/lights/3/state":
		io.WriteString(w, `[{"success": {"/lights/3/state/on": true}}]`)
	case r.Method == http.MethodPut && path == "/lights/9/state":
		io.WriteString(w, `[{"error": {"type": 3, "address": "/lights/9", "description": "resource, /lights/9, not available"}}]`)
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeBridgeServer) body(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[key]
}

func newTestClient(t *testing.T) (*Client, *fakeBridgeServer) {
	t.Helper()
	fake := &fakeBridgeServer{bodies: make(map[string]string)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	return NewClient(host, "token", time.Second, 100), fake
}

func TestClientConnect(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))
}

func TestClientListGroups(t *testing.T) {
	c, _ := newTestClient(t)

	groups, err := c.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	byName := make(map[string]Group)
	for _, g := range groups {
		byName[g.Name] = g
	}
	assert.Equal(t, "1", byName["Living room"].ID)
	assert.Equal(t, []string{"1", "2"}, byName["Living room"].Lights)
	assert.Equal(t, "2", byName["Plex Home Theater"].ID)
}

func TestClientGetGroup(t *testing.T) {
	c, _ := newTestClient(t)

	group, err := c.GetGroup(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "2", group.ID)
	assert.Equal(t, []string{"3", "4"}, group.Lights)

	_, err = c.GetGroup(context.Background(), "abc")
	assert.Error(t, err)
}

func TestClientCreateGroup(t *testing.T) {
	c, fake := newTestClient(t)

	id, err := c.CreateGroup(context.Background(), "Plex Home Theater", []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, "7", id)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.body("POST /groups")), &sent))
	assert.Equal(t, "Plex Home Theater", sent["name"])
	assert.Equal(t, []any{"1", "2"}, sent["lights"])
}

func TestClientGetLightStatus(t *testing.T) {
	c, _ := newTestClient(t)

	status, err := c.GetLightStatus(context.Background(), "3")
	require.NoError(t, err)
	assert.True(t, status.On)
	assert.True(t, status.Reachable)
	assert.Equal(t, 100, status.Brightness)
}

func TestClientSetLightState(t *testing.T) {
	c, fake := newTestClient(t)

	require.NoError(t, c.SetLightState(context.Background(), "3", State{On: true, Brightness: 33}))

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.body("PUT /lights/3/state")), &sent))
	assert.Equal(t, true, sent["on"])
	assert.Equal(t, float64(84), sent["bri"])

	err := c.SetLightState(context.Background(), "9", State{On: false})
	assert.Error(t, err)
}

func TestPercentToBri(t *testing.T) {
	tests := []struct {
		percent  int
		expected uint8
	}{
		{-5, 1},
		{0, 1},
		{1, 3},
		{33, 84},
		{50, 127},
		{100, 254},
		{150, 254},
	}

	for _, tt := range tests {
		got := PercentToBri(tt.percent)
		if got != tt.expected {
			t.Errorf("PercentToBri(%d) = %d, want %d", tt.percent, got, tt.expected)
		}
	}
}

func TestToHuegoStateOffOmitsBrightness(t *testing.T) {
	s := toHuegoState(State{On: false, Brightness: 100})
	assert.False(t, s.On)
	assert.Equal(t, uint8(0), s.Bri)

	s = toHuegoState(State{On: true, Brightness: 100})
	assert.True(t, s.On)
	assert.Equal(t, uint8(254), s.Bri)
}
