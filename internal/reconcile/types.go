// Package reconcile maps playback events to light commands and applies them
// to the lights that were on when the session started.
package reconcile

import (
	"github.com/dokzlo13/plexhue/internal/hue"
	"github.com/dokzlo13/plexhue/internal/plex"
)

// Command is a fixed target state for a light
type Command int

const (
	CommandNone Command = iota
	CommandOff
	CommandOn
	CommandDim
)

// Brightness targets in percent
const (
	BrightnessOn  = 100
	BrightnessDim = 33
)

// String returns a human-readable name for the command
func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandOff:
		return "off"
	case CommandOn:
		return "on"
	case CommandDim:
		return "dim"
	default:
		return "unknown"
	}
}

// State returns the bridge state for the command
func (c Command) State() hue.State {
	switch c {
	case CommandOn:
		return hue.State{On: true, Brightness: BrightnessOn}
	case CommandDim:
		return hue.State{On: true, Brightness: BrightnessDim}
	default:
		return hue.State{On: false}
	}
}

// describe returns the log line for a successful command
func describe(kind plex.Kind) string {
	switch kind {
	case plex.KindPlay:
		return "Playback has started: lights have been turned off"
	case plex.KindResume:
		return "Playback has resumed: lights have been turned off"
	case plex.KindPause:
		return "Playback has paused: lights have been dimmed"
	case plex.KindStop:
		return "Playback has stopped: lights have been turned on"
	default:
		return "Light state changed"
	}
}

// CommandFor returns the command for an event kind.
// play/resume turn lights off, pause dims them, stop turns them on.
// Every other kind maps to no command.
func CommandFor(kind plex.Kind) (Command, bool) {
	switch kind {
	case plex.KindPlay, plex.KindResume:
		return CommandOff, true
	case plex.KindPause:
		return CommandDim, true
	case plex.KindStop:
		return CommandOn, true
	default:
		return CommandNone, false
	}
}
