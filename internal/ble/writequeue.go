package ble

import "log/slog"

// DescriptorWrite asks for notifications on a characteristic to be turned
// on or off.
type DescriptorWrite struct {
	CharUUID string
	Enable   bool
}

// Value returns the CCCD bytes for the request.
func (w DescriptorWrite) Value() []byte {
	if w.Enable {
		return EnableNotificationValue
	}
	return DisableNotificationValue
}

// WriteQueue linearizes descriptor writes for transports that allow a single
// outstanding GATT operation. The issue func starts a write; the owner must
// call Complete exactly once per issued write.
//
// Not safe for concurrent use; the owning session serializes access.
type WriteQueue struct {
	issue     func(DescriptorWrite)
	onDrained func()

	pending  []DescriptorWrite // pending[0] is in flight when inFlight is set
	inFlight bool
}

// NewWriteQueue returns an empty queue. onDrained may be nil.
func NewWriteQueue(issue func(DescriptorWrite), onDrained func()) *WriteQueue {
	return &WriteQueue{issue: issue, onDrained: onDrained}
}

// Enqueue appends req and issues it immediately if nothing is in flight.
func (q *WriteQueue) Enqueue(req DescriptorWrite) {
	q.pending = append(q.pending, req)
	if !q.inFlight {
		q.issueHead()
	}
}

// Complete records the outcome of the in-flight write and issues the next
// one. Failures are logged and not retried. Complete without a write in
// flight is ignored.
func (q *WriteQueue) Complete(err error) {
	if !q.inFlight {
		slog.Debug("[BLE] descriptor write completion with nothing in flight")
		return
	}
	head := q.pending[0]
	q.pending = q.pending[1:]
	q.inFlight = false

	if err != nil {
		slog.Warn("[BLE] descriptor write failed", "char", head.CharUUID, "enable", head.Enable, "error", err)
	} else {
		slog.Debug("[BLE] descriptor written", "char", head.CharUUID, "enable", head.Enable)
	}

	if len(q.pending) > 0 {
		q.issueHead()
		return
	}
	if q.onDrained != nil {
		q.onDrained()
	}
}

// Reset discards every queued request, including the one in flight. A late
// Complete for the discarded write is ignored.
func (q *WriteQueue) Reset() {
	q.pending = nil
	q.inFlight = false
}

// Len returns the number of queued requests, including the one in flight.
func (q *WriteQueue) Len() int {
	return len(q.pending)
}

// InFlight reports whether a write has been issued and not completed.
func (q *WriteQueue) InFlight() bool {
	return q.inFlight
}

func (q *WriteQueue) issueHead() {
	q.inFlight = true
	q.issue(q.pending[0])
}
