// Package group locates or creates the Hue group whose lights follow Plex playback.
package group

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plexhue/internal/hue"
)

var (
	// ErrGroupLookup is returned when the bridge groups cannot be read.
	ErrGroupLookup = errors.New("group lookup failed")
	// ErrNoLights is returned when no light could be found for the managed group.
	ErrNoLights = errors.New("no light has been found for the managed group")
	// ErrCreateGroup is returned when the bridge refuses to create the managed group.
	ErrCreateGroup = errors.New("unable to create group of lights")
)

// LightGroup is the managed group: a bridge group id and its member lights.
// It does not change after resolution.
type LightGroup struct {
	ID     string
	Name   string
	Lights []string
	// Created is true when the group was created during resolution.
	Created bool
}

// Bridge is the subset of the Hue bridge used for resolution.
type Bridge interface {
	ListGroups(ctx context.Context) ([]hue.Group, error)
	GetGroup(ctx context.Context, groupID string) (*hue.Group, error)
	CreateGroup(ctx context.Context, name string, lightIDs []string) (string, error)
}

// Resolver finds the managed group by its reserved name, or builds it from
// the lights of the configured source groups.
type Resolver struct {
	bridge  Bridge
	name    string
	sources map[string]struct{}
}

// NewResolver creates a resolver for the reserved group name and source group names.
func NewResolver(bridge Bridge, name string, sources []string) *Resolver {
	set := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		set[s] = struct{}{}
	}
	return &Resolver{
		bridge:  bridge,
		name:    name,
		sources: set,
	}
}

// Resolve returns the managed group. Any error is permanent: the caller
// should not start serving events.
func (r *Resolver) Resolve(ctx context.Context) (LightGroup, error) {
	groups, err := r.bridge.ListGroups(ctx)
	if err != nil {
		return LightGroup{}, fmt.Errorf("%w: %w", ErrGroupLookup, err)
	}

	for _, g := range groups {
		if g.Name == r.name {
			return r.adopt(ctx, g.ID)
		}
	}

	return r.create(ctx)
}

// adopt loads the member lights of an existing managed group.
func (r *Resolver) adopt(ctx context.Context, groupID string) (LightGroup, error) {
	g, err := r.bridge.GetGroup(ctx, groupID)
	if err != nil {
		return LightGroup{}, fmt.Errorf("%w: group %s: %w", ErrGroupLookup, groupID, err)
	}

	lights := dedupe(g.Lights)
	if len(lights) == 0 {
		return LightGroup{}, fmt.Errorf("%w: group %q (%s) is empty", ErrNoLights, r.name, groupID)
	}

	log.Info().
		Str("group", groupID).
		Str("name", r.name).
		Strs("lights", lights).
		Msg("Using existing group")

	return LightGroup{ID: groupID, Name: r.name, Lights: lights}, nil
}

// create builds the managed group from the union of the source groups' lights.
func (r *Resolver) create(ctx context.Context) (LightGroup, error) {
	groups, err := r.bridge.ListGroups(ctx)
	if err != nil {
		return LightGroup{}, fmt.Errorf("%w: %w", ErrGroupLookup, err)
	}

	var lights []string
	for _, g := range groups {
		if _, ok := r.sources[g.Name]; ok {
			lights = append(lights, g.Lights...)
		}
	}
	lights = dedupe(lights)

	if len(lights) == 0 {
		return LightGroup{}, fmt.Errorf("%w: no source group among %d bridge groups has lights", ErrNoLights, len(groups))
	}

	id, err := r.bridge.CreateGroup(ctx, r.name, lights)
	if err != nil {
		return LightGroup{}, fmt.Errorf("%w %q: %w", ErrCreateGroup, r.name, err)
	}
	if id == "" {
		return LightGroup{}, fmt.Errorf("%w %q: bridge returned no id", ErrCreateGroup, r.name)
	}

	log.Info().
		Str("group", id).
		Str("name", r.name).
		Strs("lights", lights).
		Msg("Created group from source groups")

	return LightGroup{ID: id, Name: r.name, Lights: lights, Created: true}, nil
}

// dedupe drops repeated ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
