// Package pairing combines independently arriving temperature and liquid
// level readings into records and suppresses consecutive duplicates.
package pairing

import (
	"log/slog"
	"time"

	"github.com/chaz8081/sipsmart/internal/telemetry"
)

// LevelObserver receives every raw liquid-level reading before it is paired.
type LevelObserver interface {
	ObserveLevel(raw int)
}

// SubmitFunc hands a finished record to persistence. It must not block;
// failures are reported back through Buffer.PersistFailed.
type SubmitFunc func(rec telemetry.Record)

// Buffer holds at most one pending temperature and one pending level.
//
// Not safe for concurrent use; the owning session serializes access.
type Buffer struct {
	submit   SubmitFunc
	observer LevelObserver
	now      func() time.Time

	temp  *float64
	level *float64
	last  *telemetry.Pair // most recently attempted pair
}

// NewBuffer returns an empty buffer. observer may be nil; now defaults to
// time.Now.
func NewBuffer(submit SubmitFunc, observer LevelObserver, now func() time.Time) *Buffer {
	if now == nil {
		now = time.Now
	}
	return &Buffer{submit: submit, observer: observer, now: now}
}

// Add stores a measurement in its slot, replacing any unflushed value, and
// attempts a flush.
func (b *Buffer) Add(m telemetry.Measurement) {
	switch m.Kind {
	case telemetry.KindTemperature:
		v := m.Celsius
		b.temp = &v
	case telemetry.KindLiquidLevel:
		if b.observer != nil {
			b.observer.ObserveLevel(m.RawPercent)
		}
		v := m.Fraction
		b.level = &v
	default:
		slog.Warn("[PAIR] ignoring measurement of unknown kind", "kind", m.Kind)
		return
	}
	b.flush()
}

func (b *Buffer) flush() {
	if b.temp == nil || b.level == nil {
		return
	}
	pair := telemetry.Pair{Temperature: *b.temp, Level: *b.level}
	if b.last != nil && *b.last == pair {
		// Duplicate of the last attempt: keep the slots as they are.
		return
	}

	b.last = &pair
	b.temp, b.level = nil, nil

	slog.Debug("[PAIR] flushing record", "temperature", pair.Temperature, "level", pair.Level)
	b.submit(telemetry.NewRecord(pair, b.now()))
}

// PersistFailed rolls back the dedup memo so an identical reading can be
// retried. It is a no-op when a newer pair has been attempted since.
func (b *Buffer) PersistFailed(p telemetry.Pair) {
	if b.last != nil && *b.last == p {
		b.last = nil
	}
}

// Reset drops both slots and the dedup memo without flushing.
func (b *Buffer) Reset() {
	b.temp, b.level, b.last = nil, nil, nil
}

// Pending returns copies of the unflushed slots; nil means empty.
func (b *Buffer) Pending() (temp, level *float64) {
	if b.temp != nil {
		v := *b.temp
		temp = &v
	}
	if b.level != nil {
		v := *b.level
		level = &v
	}
	return temp, level
}

// LastAttempt returns the dedup memo.
func (b *Buffer) LastAttempt() (telemetry.Pair, bool) {
	if b.last == nil {
		return telemetry.Pair{}, false
	}
	return *b.last, true
}
