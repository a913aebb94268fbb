package ble

import (
	"errors"
	"testing"
)

// recordingIssuer records issued writes; completions are driven by the test.
type recordingIssuer struct {
	issued []DescriptorWrite
}

func (r *recordingIssuer) issue(w DescriptorWrite) {
	r.issued = append(r.issued, w)
}

func TestWriteQueueIssuesHeadImmediately(t *testing.T) {
	rec := &recordingIssuer{}
	q := NewWriteQueue(rec.issue, nil)

	q.Enqueue(DescriptorWrite{CharUUID: TemperatureCharUUID, Enable: true})

	if len(rec.issued) != 1 {
		t.Fatalf("issued %d writes, want 1", len(rec.issued))
	}
	if !q.InFlight() {
		t.Error("InFlight() = false after Enqueue on empty queue")
	}
}

func TestWriteQueueSingleInFlight(t *testing.T) {
	rec := &recordingIssuer{}
	q := NewWriteQueue(rec.issue, nil)

	q.Enqueue(DescriptorWrite{CharUUID: "a", Enable: true})
	q.Enqueue(DescriptorWrite{CharUUID: "b", Enable: true})
	q.Enqueue(DescriptorWrite{CharUUID: "c", Enable: true})

	if len(rec.issued) != 1 {
		t.Fatalf("issued %d writes before any completion, want 1", len(rec.issued))
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
}

func TestWriteQueueFIFORegardlessOfFailures(t *testing.T) {
	rec := &recordingIssuer{}
	drained := 0
	q := NewWriteQueue(rec.issue, func() { drained++ })

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		q.Enqueue(DescriptorWrite{CharUUID: id, Enable: true})
	}

	outcomes := []error{nil, errors.New("gatt busy"), nil, errors.New("timeout"), errors.New("gone")}
	for i, err := range outcomes {
		if len(rec.issued) != i+1 {
			t.Fatalf("before completion %d: issued %d, want %d", i, len(rec.issued), i+1)
		}
		q.Complete(err)
	}

	if len(rec.issued) != len(ids) {
		t.Fatalf("issued %d writes, want %d", len(rec.issued), len(ids))
	}
	for i, w := range rec.issued {
		if w.CharUUID != ids[i] {
			t.Errorf("issued[%d] = %q, want %q", i, w.CharUUID, ids[i])
		}
	}
	if q.Len() != 0 || q.InFlight() {
		t.Errorf("queue not empty after all completions: Len=%d InFlight=%v", q.Len(), q.InFlight())
	}
	if drained != 1 {
		t.Errorf("drained called %d times, want 1", drained)
	}
}

func TestWriteQueueSynchronousCompletion(t *testing.T) {
	var q *WriteQueue
	var order []string
	q = NewWriteQueue(func(w DescriptorWrite) {
		order = append(order, w.CharUUID)
		q.Complete(nil)
	}, nil)

	q.Enqueue(DescriptorWrite{CharUUID: "a"})
	q.Enqueue(DescriptorWrite{CharUUID: "b"})

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestWriteQueueResetDropsLateCompletion(t *testing.T) {
	rec := &recordingIssuer{}
	drained := 0
	q := NewWriteQueue(rec.issue, func() { drained++ })

	q.Enqueue(DescriptorWrite{CharUUID: "a"})
	q.Enqueue(DescriptorWrite{CharUUID: "b"})
	q.Reset()

	q.Complete(nil)

	if len(rec.issued) != 1 {
		t.Errorf("issued %d writes, want 1", len(rec.issued))
	}
	if drained != 0 {
		t.Errorf("drained called %d times after Reset, want 0", drained)
	}
}

func TestDescriptorWriteValue(t *testing.T) {
	if got := (DescriptorWrite{Enable: true}).Value(); got[0] != 0x01 || got[1] != 0x00 {
		t.Errorf("enable value = %x, want 0100", got)
	}
	if got := (DescriptorWrite{Enable: false}).Value(); got[0] != 0x00 || got[1] != 0x00 {
		t.Errorf("disable value = %x, want 0000", got)
	}
}
