package plex

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Filter admits webhook payloads from whitelisted users and players.
// All comparisons are exact string matches.
type Filter struct {
	users         map[string]struct{}
	players       map[string]struct{}
	excludedTypes map[string]struct{}
}

// NewFilter creates a filter from the configured whitelists
func NewFilter(users, players, excludedTypes []string) *Filter {
	return &Filter{
		users:         toSet(users),
		players:       toSet(players),
		excludedTypes: toSet(excludedTypes),
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Admit decodes raw and returns the event if it passes every rule.
// Rejected payloads are logged at debug level and never reach the bridge.
func (f *Filter) Admit(raw string) (*Event, bool) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		log.Debug().Err(err).Msg("Dropping webhook: malformed payload")
		return nil, false
	}

	if p.Account == nil || p.Account.Title == nil {
		log.Debug().Str("event", p.Event).Msg("Dropping webhook: no account")
		return nil, false
	}
	user := *p.Account.Title

	var playerTitle string
	if p.Player != nil {
		playerTitle = p.Player.Title
	}

	log.Debug().
		Str("event", p.Event).
		Str("user", user).
		Str("player", playerTitle).
		Msg("Webhook received")

	if _, ok := f.users[user]; !ok {
		log.Debug().Str("user", user).Msg("Dropping webhook: user not whitelisted")
		return nil, false
	}

	if p.Player == nil || p.Player.UUID == nil {
		log.Debug().Msg("Dropping webhook: no player uuid")
		return nil, false
	}
	playerUUID := *p.Player.UUID
	if _, ok := f.players[playerUUID]; !ok {
		log.Debug().Str("player_uuid", playerUUID).Msg("Dropping webhook: player not whitelisted")
		return nil, false
	}

	if p.Metadata == nil || p.Metadata.Type == nil {
		log.Debug().Msg("Dropping webhook: no media type")
		return nil, false
	}
	mediaType := *p.Metadata.Type
	if _, excluded := f.excludedTypes[mediaType]; excluded {
		log.Debug().Str("media_type", mediaType).Msg("Dropping webhook: media type excluded")
		return nil, false
	}

	session := NoSession
	if p.Metadata.Key != nil {
		session = NewSessionKey(*p.Metadata.Key)
	}

	return &Event{
		Name:        p.Event,
		Kind:        ParseKind(p.Event),
		User:        user,
		PlayerUUID:  playerUUID,
		PlayerTitle: playerTitle,
		MediaType:   mediaType,
		MediaTitle:  p.Metadata.Title,
		Session:     session,
	}, true
}
