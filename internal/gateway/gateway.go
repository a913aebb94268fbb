// Package gateway persists telemetry for a user. The Gateway interface is
// the sync boundary the session engine talks to; SQLiteStore is the local
// implementation and Mirrored forwards successful writes to MQTT.
package gateway

import (
	"context"
	"errors"

	"github.com/chaz8081/sipsmart/internal/telemetry"
)

// Field names written with SaveField / UpsertMerge.
const (
	FieldTemperature   = "temperature"
	FieldLiquidLevel   = "liquid_level"
	FieldHydrationGoal = "hydration_goal"
	FieldDisplayName   = "display_name"
	FieldDeviceAddress = "device_address"
)

var (
	// ErrUnsupported is returned by backends that cannot serve an operation.
	ErrUnsupported = errors.New("gateway: operation not supported")
	// ErrNoUser is returned when userID is empty.
	ErrNoUser = errors.New("gateway: user id is required")
)

// Gateway is the remote per-user store.
type Gateway interface {
	// SaveField sets a single named value for the user.
	SaveField(ctx context.Context, userID, field string, value any) error
	// SaveRecord appends a measurement record.
	SaveRecord(ctx context.Context, userID string, rec telemetry.Record) error
	// FetchRecent returns up to n records, newest first.
	FetchRecent(ctx context.Context, userID string, n int) ([]telemetry.Record, error)
	// UpsertMerge sets several fields at once, leaving others untouched.
	UpsertMerge(ctx context.Context, userID string, fields map[string]any) error
}
