package telemetry

import (
	"encoding/json"
	"testing"
	"time"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		k    Kind
		want string
	}{
		{KindTemperature, "temperature"},
		{KindLiquidLevel, "liquid_level"},
		{Kind(9), "kind(9)"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.k), got, tt.want)
		}
	}
}

func TestRecordPairRoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	p := Pair{Temperature: 21.5, Level: 0.2}
	rec := NewRecord(p, at)

	if rec.Pair() != p {
		t.Errorf("Pair() = %+v, want %+v", rec.Pair(), p)
	}
	if !rec.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp, at)
	}
}

func TestRecordJSONFieldNames(t *testing.T) {
	rec := NewRecord(Pair{Temperature: 25, Level: 1}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"temperature":25,"liquid_level":1,"timestamp":"2026-01-02T03:04:05Z"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestMeasurementConstructors(t *testing.T) {
	if m := Temperature(-2.5); m.Kind != KindTemperature || m.Celsius != -2.5 {
		t.Errorf("Temperature() = %+v", m)
	}
	if m := LiquidLevel(0.2, 20); m.Kind != KindLiquidLevel || m.Fraction != 0.2 || m.RawPercent != 20 {
		t.Errorf("LiquidLevel() = %+v", m)
	}
}
