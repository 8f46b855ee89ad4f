// Package plex decodes and admits Plex Media Server webhook payloads.
package plex

// Kind is the playback event kind carried by a webhook
type Kind int

const (
	KindOther Kind = iota
	KindPlay
	KindResume
	KindPause
	KindStop
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindResume:
		return "resume"
	case KindPause:
		return "pause"
	case KindStop:
		return "stop"
	default:
		return "other"
	}
}

// ParseKind maps a Plex event name (e.g. "media.play") to a Kind.
// Unknown names map to KindOther.
func ParseKind(event string) Kind {
	switch event {
	case "media.play":
		return KindPlay
	case "media.resume":
		return KindResume
	case "media.pause":
		return KindPause
	case "media.stop":
		return KindStop
	default:
		return KindOther
	}
}

// SessionKey identifies one playback instance on a player.
// The zero value is the "no session" sentinel used when a payload carries
// no Metadata.key; it never equals a real key.
type SessionKey struct {
	key   string
	valid bool
}

// NewSessionKey wraps a Metadata.key value
func NewSessionKey(key string) SessionKey {
	return SessionKey{key: key, valid: true}
}

// NoSession is the sentinel for payloads without a session key
var NoSession = SessionKey{}

// Valid reports whether the key came from the payload
func (k SessionKey) Valid() bool {
	return k.valid
}

// String returns the key, or "<none>" for the sentinel
func (k SessionKey) String() string {
	if !k.valid {
		return "<none>"
	}
	return k.key
}

// Event is an admitted playback event
type Event struct {
	Name        string
	Kind        Kind
	User        string
	PlayerUUID  string
	PlayerTitle string
	MediaType   string
	MediaTitle  string
	Session     SessionKey
}

// payload mirrors the JSON object Plex posts in the "payload" form field.
// Pointers distinguish absent fields from empty ones.
type payload struct {
	Event   string `json:"event"`
	Account *struct {
		Title *string `json:"title"`
	} `json:"Account"`
	Player *struct {
		Title string  `json:"title"`
		UUID  *string `json:"uuid"`
	} `json:"Player"`
	Metadata *struct {
		Type  *string `json:"type"`
		Key   *string `json:"key"`
		Title string  `json:"title"`
	} `json:"Metadata"`
}
