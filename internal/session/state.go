package session

import "fmt"

// State is the lifecycle state of the sensor link.
type State int

const (
	Disconnected State = iota
	Connecting
	ServicesDiscovering
	EnablingNotifications
	Active
	Disconnecting
	Failed
)

var stateNames = [...]string{
	Disconnected:          "disconnected",
	Connecting:            "connecting",
	ServicesDiscovering:   "services_discovering",
	EnablingNotifications: "enabling_notifications",
	Active:                "active",
	Disconnecting:         "disconnecting",
	Failed:                "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the state holds no link and accepts a new Connect.
func (s State) Terminal() bool {
	return s == Disconnected || s == Failed
}

// transitions lists every legal edge. A transport disconnect may arrive in
// any linked state, so each of them can fall back to Disconnected.
var transitions = map[State][]State{
	Disconnected:          {Connecting},
	Connecting:            {ServicesDiscovering, Failed, Disconnecting, Disconnected},
	ServicesDiscovering:   {EnablingNotifications, Failed, Disconnecting, Disconnected},
	EnablingNotifications: {Active, Disconnecting, Disconnected},
	Active:                {Disconnecting, Disconnected},
	Disconnecting:         {Disconnected},
	Failed:                {Connecting},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
