package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/sipsmart/internal/session"
	"github.com/chaz8081/sipsmart/internal/telemetry"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{UserID: "u1", HTTPAddr: ":8090", AlertPercent: 20})

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Session.State != session.Disconnected {
		t.Errorf("State: got %s, want disconnected", snap.Session.State)
	}
	if snap.Config.AlertPercent != 20 {
		t.Errorf("Config.AlertPercent: got %d, want 20", snap.Config.AlertPercent)
	}
}

func TestUpdateCountsTransitions(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Update(session.Snapshot{State: session.Connecting})
	tr.Update(session.Snapshot{State: session.Connecting, Status: "still connecting"})
	tr.Update(session.Snapshot{State: session.Active})

	snap := tr.Snapshot()
	if snap.Transitions != 2 {
		t.Errorf("Transitions: got %d, want 2", snap.Transitions)
	}
	if snap.Session.State != session.Active {
		t.Errorf("State: got %s, want active", snap.Session.State)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Update(session.Snapshot{State: session.Active})
		}()
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	rec := telemetry.Record{Temperature: 25, LiquidFraction: 1, Timestamp: start.Add(time.Minute)}
	snap := Snapshot{
		Session: session.Snapshot{
			State:          session.Active,
			Status:         session.StatusActive,
			Peripheral:     telemetry.Peripheral{Address: "AA:BB", Name: "SipSmart", RSSI: -55},
			Since:          start,
			HasTemperature: true,
			Temperature:    25,
			HasLevel:       true,
			Level:          1,
			RawLevel:       80,
			Records:        1,
			LastRecord:     rec,
		},
		Transitions: 4,
		StartTime:   start,
		Now:         start.Add(90 * time.Second),
		Config:      Config{UserID: "u1", StorePath: "/tmp/s.db", HTTPAddr: ":8090", AlertPercent: 20},
	}

	var got StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s := got.Status
	if s.State != "active" || s.Message != session.StatusActive {
		t.Errorf("state/message = %q/%q", s.State, s.Message)
	}
	if s.UptimeSeconds != 90 {
		t.Errorf("uptime_seconds = %d, want 90", s.UptimeSeconds)
	}
	if s.Device == nil || s.Device.Address != "AA:BB" {
		t.Errorf("device = %+v", s.Device)
	}
	if s.Latest.TemperatureC == nil || *s.Latest.TemperatureC != 25 {
		t.Errorf("latest temperature = %v", s.Latest.TemperatureC)
	}
	if s.Latest.RawLevel == nil || *s.Latest.RawLevel != 80 {
		t.Errorf("latest raw level = %v", s.Latest.RawLevel)
	}
	if s.LastRecord == nil || s.LastRecord.Timestamp != "2026-10-16T08:01:00Z" {
		t.Errorf("last_record = %+v", s.LastRecord)
	}
}

func TestFormatJSONOmitsUnknowns(t *testing.T) {
	snap := Snapshot{Session: session.Snapshot{State: session.Disconnected}}
	var raw map[string]map[string]any
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"device", "last_record", "last_error"} {
		if _, ok := raw["status"][key]; ok {
			t.Errorf("key %q present for an idle session", key)
		}
	}
	if latest := raw["status"]["latest"].(map[string]any); len(latest) != 0 {
		t.Errorf("latest = %v, want empty", latest)
	}
}
