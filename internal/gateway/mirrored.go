package gateway

import (
	"context"
	"log/slog"

	"github.com/chaz8081/sipsmart/internal/telemetry"
)

// Mirrored writes to a primary Gateway and, on success, mirrors the write to
// a Publisher. Mirror failures are logged and never fail the write.
type Mirrored struct {
	Primary Gateway
	Mirror  Publisher
}

func (m *Mirrored) SaveField(ctx context.Context, userID, field string, value any) error {
	return m.UpsertMerge(ctx, userID, map[string]any{field: value})
}

func (m *Mirrored) SaveRecord(ctx context.Context, userID string, rec telemetry.Record) error {
	if err := m.Primary.SaveRecord(ctx, userID, rec); err != nil {
		return err
	}
	if err := m.Mirror.PublishRecord(userID, rec); err != nil {
		slog.Warn("[MQTT] mirror record failed", "error", err)
	}
	return nil
}

func (m *Mirrored) FetchRecent(ctx context.Context, userID string, n int) ([]telemetry.Record, error) {
	return m.Primary.FetchRecent(ctx, userID, n)
}

func (m *Mirrored) UpsertMerge(ctx context.Context, userID string, fields map[string]any) error {
	if err := m.Primary.UpsertMerge(ctx, userID, fields); err != nil {
		return err
	}
	if err := m.Mirror.PublishFields(userID, fields); err != nil {
		slog.Warn("[MQTT] mirror fields failed", "error", err)
	}
	return nil
}

var _ Gateway = (*Mirrored)(nil)
