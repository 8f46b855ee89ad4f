package hue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrGroupNotCreated is returned when the bridge accepts a create call but
// does not report the id of the new group.
var ErrGroupNotCreated = errors.New("bridge did not return a group id")

// Bridge is the capability surface plexhue needs from a Hue bridge.
type Bridge interface {
	ListGroups(ctx context.Context) ([]Group, error)
	GetGroup(ctx context.Context, groupID string) (*Group, error)
	CreateGroup(ctx context.Context, name string, lightIDs []string) (string, error)
	GetLightStatus(ctx context.Context, lightID string) (*LightStatus, error)
	SetLightState(ctx context.Context, lightID string, state State) error
}

// Client implements Bridge on top of huego (Hue v1 API).
// All calls share one rate limiter so fan-outs over a group never flood the bridge.
type Client struct {
	address string
	bridge  *huego.Bridge
	limiter *rate.Limiter
	timeout time.Duration
}

var _ Bridge = (*Client)(nil)

// NewClient creates a new Hue client
func NewClient(address, token string, timeout time.Duration, rateLimitRPS float64) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if rateLimitRPS == 0 {
		rateLimitRPS = 10.0
	}

	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		address: address,
		bridge:  huego.New(address, token),
		limiter: rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
		timeout: timeout,
	}
}

// Connect verifies the bridge is reachable and the token is accepted
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	cfg, err := c.bridge.GetConfigContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Hue bridge at %s: %w", c.address, err)
	}

	log.Info().
		Str("address", c.address).
		Str("name", cfg.Name).
		Str("api_version", cfg.APIVersion).
		Msg("Connected to Hue bridge")
	return nil
}

// Address returns the bridge address
func (c *Client) Address() string {
	return c.address
}

// begin waits for the rate limiter and derives the per-request deadline.
func (c *Client) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return ctx, cancel, nil
}

// ListGroups returns all groups known to the bridge
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	raw, err := c.bridge.GetGroupsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	groups := make([]Group, 0, len(raw))
	for _, g := range raw {
		groups = append(groups, fromHuegoGroup(g))
	}

	log.Debug().Int("groups", len(groups)).Msg("Listed bridge groups")
	return groups, nil
}

// GetGroup returns a group by ID
func (c *Client) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	id, err := strconv.Atoi(groupID)
	if err != nil {
		return nil, fmt.Errorf("invalid group id %q: %w", groupID, err)
	}

	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	raw, err := c.bridge.GetGroupContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", groupID, err)
	}

	group := fromHuegoGroup(*raw)
	group.ID = groupID
	return &group, nil
}

// CreateGroup creates a LightGroup with the given lights and returns its id
func (c *Client) CreateGroup(ctx context.Context, name string, lightIDs []string) (string, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	resp, err := c.bridge.CreateGroupContext(ctx, huego.Group{
		Name:   name,
		Type:   "LightGroup",
		Lights: lightIDs,
	})
	if err != nil {
		return "", fmt.Errorf("create group %q: %w", name, err)
	}
	if resp == nil {
		return "", ErrGroupNotCreated
	}

	id, ok := resp.Success["id"]
	if !ok {
		return "", ErrGroupNotCreated
	}
	groupID := fmt.Sprint(id)
	if groupID == "" {
		return "", ErrGroupNotCreated
	}

	log.Info().Str("group", groupID).Str("name", name).Strs("lights", lightIDs).Msg("Created group")
	return groupID, nil
}

// GetLightStatus returns the current on/off state of a light
func (c *Client) GetLightStatus(ctx context.Context, lightID string) (*LightStatus, error) {
	id, err := strconv.Atoi(lightID)
	if err != nil {
		return nil, fmt.Errorf("invalid light id %q: %w", lightID, err)
	}

	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	light, err := c.bridge.GetLightContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get light %s: %w", lightID, err)
	}

	status := &LightStatus{ID: lightID}
	if light.State != nil {
		status.On = light.State.On
		status.Reachable = light.State.Reachable
		status.Brightness = BriToPercent(light.State.Bri)
	}
	return status, nil
}

// SetLightState pushes a target state to a light
func (c *Client) SetLightState(ctx context.Context, lightID string, state State) error {
	id, err := strconv.Atoi(lightID)
	if err != nil {
		return fmt.Errorf("invalid light id %q: %w", lightID, err)
	}

	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := c.bridge.SetLightStateContext(ctx, id, toHuegoState(state)); err != nil {
		return fmt.Errorf("set light %s: %w", lightID, err)
	}
	return nil
}

func fromHuegoGroup(g huego.Group) Group {
	lights := make([]string, len(g.Lights))
	copy(lights, g.Lights)
	return Group{
		ID:     strconv.Itoa(g.ID),
		Name:   g.Name,
		Lights: lights,
	}
}

func toHuegoState(s State) huego.State {
	state := huego.State{On: s.On}
	if s.On {
		state.Bri = PercentToBri(s.Brightness)
	}
	return state
}

// PercentToBri converts a brightness percentage to the bridge's 1-254 scale.
func PercentToBri(percent int) uint8 {
	if percent <= 0 {
		return 1
	}
	if percent >= 100 {
		return 254
	}
	bri := int(math.Round(float64(percent) * 254 / 100))
	if bri < 1 {
		bri = 1
	}
	return uint8(bri)
}

// BriToPercent converts a bridge brightness (1-254) to percent.
func BriToPercent(bri uint8) int {
	return int(math.Round(float64(bri) * 100 / 254))
}
