package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chaz8081/sipsmart/internal/telemetry"
)

// Sensor GATT identifiers.
const (
	ServiceUUID         = "0000feed-cc7a-482a-984a-7f2ed5b3e58f"
	LiquidLevelCharUUID = "0000abcd-8e22-4541-9d4c-21edae82ed19"
	TemperatureCharUUID = "00001234-8e22-4541-9d4c-21edae82ed19"
)

// ErrUnknownCharacteristic is returned for notifications from a
// characteristic the sensor protocol does not define.
var ErrUnknownCharacteristic = errors.New("protocol: unknown characteristic")

// DecodeNotification decodes a notification payload according to the
// characteristic it arrived on. UUIDs are matched case-insensitively.
func DecodeNotification(charUUID string, data []byte) (telemetry.Measurement, error) {
	switch strings.ToLower(charUUID) {
	case TemperatureCharUUID:
		c, err := DecodeTemperature(data)
		if err != nil {
			return telemetry.Measurement{}, err
		}
		return telemetry.Temperature(c), nil
	case LiquidLevelCharUUID:
		raw, fraction, err := DecodeLiquidLevel(data)
		if err != nil {
			return telemetry.Measurement{}, err
		}
		return telemetry.LiquidLevel(fraction, raw), nil
	default:
		return telemetry.Measurement{}, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, charUUID)
	}
}

// ChannelOf names the measurement channel carried by a characteristic, for
// logs and metric labels.
func ChannelOf(charUUID string) string {
	switch strings.ToLower(charUUID) {
	case TemperatureCharUUID:
		return telemetry.KindTemperature.String()
	case LiquidLevelCharUUID:
		return telemetry.KindLiquidLevel.String()
	default:
		return "unknown"
	}
}
