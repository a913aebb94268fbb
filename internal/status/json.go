package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	State         string      `json:"state"`
	Message       string      `json:"message"`
	LastError     string      `json:"last_error,omitempty"`
	Since         string      `json:"since"`
	Transitions   int         `json:"transitions"`
	Device        *DeviceJSON `json:"device,omitempty"`
	Latest        LatestJSON  `json:"latest"`
	Records       int         `json:"records"`
	LastRecord    *RecordJSON `json:"last_record,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	Config        ConfigJSON  `json:"config"`
}

// DeviceJSON identifies the connected peripheral.
type DeviceJSON struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
}

// LatestJSON holds the most recent decoded readings.
type LatestJSON struct {
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	LiquidLevel  *float64 `json:"liquid_level,omitempty"`
	RawLevel     *int     `json:"raw_level,omitempty"`
}

// RecordJSON is the last record handed to the sync gateway.
type RecordJSON struct {
	TemperatureC float64 `json:"temperature_c"`
	LiquidLevel  float64 `json:"liquid_level"`
	Timestamp    string  `json:"timestamp"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	UserID       string `json:"user_id"`
	Device       string `json:"device,omitempty"`
	StorePath    string `json:"store_path"`
	MQTTBroker   string `json:"mqtt_broker,omitempty"`
	HTTPAddr     string `json:"http_addr"`
	AlertPercent int    `json:"alert_percent"`
}

func buildInner(snap Snapshot) StatusInner {
	s := snap.Session
	inner := StatusInner{
		State:         s.State.String(),
		Message:       s.Status,
		LastError:     s.LastError,
		Transitions:   snap.Transitions,
		Records:       s.Records,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Config: ConfigJSON{
			UserID:       snap.Config.UserID,
			Device:       snap.Config.Device,
			StorePath:    snap.Config.StorePath,
			MQTTBroker:   snap.Config.MQTTBroker,
			HTTPAddr:     snap.Config.HTTPAddr,
			AlertPercent: snap.Config.AlertPercent,
		},
	}
	if !s.Since.IsZero() {
		inner.Since = s.Since.UTC().Format(time.RFC3339)
	}
	if s.Peripheral.Address != "" {
		inner.Device = &DeviceJSON{Address: s.Peripheral.Address, Name: s.Peripheral.Name, RSSI: s.Peripheral.RSSI}
	}
	if s.HasTemperature {
		v := s.Temperature
		inner.Latest.TemperatureC = &v
	}
	if s.HasLevel {
		v, raw := s.Level, s.RawLevel
		inner.Latest.LiquidLevel = &v
		inner.Latest.RawLevel = &raw
	}
	if s.Records > 0 {
		inner.LastRecord = &RecordJSON{
			TemperatureC: s.LastRecord.Temperature,
			LiquidLevel:  s.LastRecord.LiquidFraction,
			Timestamp:    s.LastRecord.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
