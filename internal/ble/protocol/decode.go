// Package protocol decodes the bottle sensor's notification payloads.
//
// Temperature arrives as a 2-byte big-endian signed fixed-point value in
// hundredths of a degree Celsius. Liquid level arrives as a single unsigned
// byte that is mapped to a fill fraction through LevelCalibration.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TemperatureLen and LevelLen are the minimum payload sizes.
const (
	TemperatureLen = 2
	LevelLen       = 1
)

// ErrShortPayload is returned when a payload has fewer bytes than its
// channel requires.
var ErrShortPayload = errors.New("protocol: payload too short")

// DecodeTemperature returns degrees Celsius from a big-endian int16 in
// units of 0.01 °C. Trailing bytes are ignored.
func DecodeTemperature(data []byte) (float64, error) {
	if len(data) < TemperatureLen {
		return 0, fmt.Errorf("%w: temperature needs %d bytes, got %d", ErrShortPayload, TemperatureLen, len(data))
	}
	raw := int(binary.BigEndian.Uint16(data[:TemperatureLen]))
	if raw >= 0x8000 {
		raw -= 0x10000
	}
	return float64(raw) / 100.0, nil
}

// DecodeLiquidLevel returns the raw byte and its calibrated fraction.
func DecodeLiquidLevel(data []byte) (raw int, fraction float64, err error) {
	if len(data) < LevelLen {
		return 0, 0, fmt.Errorf("%w: liquid level needs %d byte, got %d", ErrShortPayload, LevelLen, len(data))
	}
	raw = int(data[0])
	return raw, CalibrateLevel(raw), nil
}
