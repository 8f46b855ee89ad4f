package hue

// Group represents a Hue group (v1 API) as seen by plexhue
type Group struct {
	ID     string
	Name   string
	Lights []string
}

// LightStatus is the observed state of a single light
type LightStatus struct {
	ID         string
	On         bool
	Brightness int // percent, 0-100
	Reachable  bool
}

// State is a target state pushed to a light.
// Brightness is in percent and only sent when On is true.
type State struct {
	On         bool
	Brightness int
}
