// Package telemetry defines the values that flow from the bottle sensor to
// the sync gateway: decoded measurements, the temperature/level pair used
// for deduplication, and the persisted record.
package telemetry

import (
	"fmt"
	"time"
)

// Peripheral identifies a sensor peripheral. It is fixed for the lifetime of
// a session.
type Peripheral struct {
	Address string
	Name    string
	RSSI    int
}

// Kind discriminates the Measurement variants.
type Kind int

const (
	KindTemperature Kind = iota + 1
	KindLiquidLevel
)

func (k Kind) String() string {
	switch k {
	case KindTemperature:
		return "temperature"
	case KindLiquidLevel:
		return "liquid_level"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Measurement is a single decoded reading. Only the fields belonging to Kind
// are meaningful.
type Measurement struct {
	Kind       Kind
	Celsius    float64 // KindTemperature
	Fraction   float64 // KindLiquidLevel, calibrated to [0,1]
	RawPercent int     // KindLiquidLevel, 0-255 as sent by the sensor
}

// Temperature returns a temperature measurement.
func Temperature(celsius float64) Measurement {
	return Measurement{Kind: KindTemperature, Celsius: celsius}
}

// LiquidLevel returns a liquid-level measurement.
func LiquidLevel(fraction float64, raw int) Measurement {
	return Measurement{Kind: KindLiquidLevel, Fraction: fraction, RawPercent: raw}
}

// Pair is a completed temperature + level combination. It is comparable and
// serves as the dedup memo.
type Pair struct {
	Temperature float64
	Level       float64
}

// Record is the unit of persistence.
type Record struct {
	Temperature    float64   `json:"temperature"`
	LiquidFraction float64   `json:"liquid_level"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewRecord stamps a pair with the given time.
func NewRecord(p Pair, at time.Time) Record {
	return Record{Temperature: p.Temperature, LiquidFraction: p.Level, Timestamp: at}
}

// Pair returns the record's values without the timestamp.
func (r Record) Pair() Pair {
	return Pair{Temperature: r.Temperature, Level: r.LiquidFraction}
}
