// Package status keeps the latest session snapshot for the HTTP endpoint
// and any other reader outside the session goroutine.
package status

import (
	"sync"
	"time"

	"github.com/chaz8081/sipsmart/internal/session"
)

// Config is the daemon configuration shown alongside the session.
type Config struct {
	UserID       string
	Device       string
	StorePath    string
	MQTTBroker   string
	HTTPAddr     string
	AlertPercent int
}

// Snapshot is a point-in-time view of daemon state.
type Snapshot struct {
	Session     session.Snapshot
	Transitions int
	StartTime   time.Time
	Now         time.Time
	Config      Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds the latest session snapshot behind an RWMutex. Its Update
// method is meant to be passed to session.Machine.Subscribe.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Session:   session.Snapshot{State: session.Disconnected, Status: session.StatusDisconnected},
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update stores s and counts state changes.
func (t *Tracker) Update(s session.Snapshot) {
	t.mu.Lock()
	if s.State != t.snap.Session.State {
		t.snap.Transitions++
	}
	t.snap.Session = s
	t.mu.Unlock()
}

// Snapshot returns a copy of the daemon state with Now set to the current
// time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
