package alert

import (
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recordingNotifier) Notify(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestTriggerFiresOnExactThreshold(t *testing.T) {
	n := &recordingNotifier{}
	trig := NewTrigger(n)

	for _, raw := range []int{19, 21, 0, 255, 25, 15} {
		trig.ObserveLevel(raw)
	}
	if n.count() != 0 {
		t.Fatalf("got %d alerts for non-threshold readings, want 0", n.count())
	}

	trig.ObserveLevel(20)
	if n.count() != 1 {
		t.Fatalf("got %d alerts, want 1", n.count())
	}
	a := n.alerts[0]
	if a.Priority != PriorityHigh {
		t.Errorf("Priority = %v, want high", a.Priority)
	}
	if a.Title != DefaultTitle || a.Body != DefaultBody {
		t.Errorf("alert text = %q/%q, want defaults", a.Title, a.Body)
	}
}

func TestTriggerFiresEveryOccurrence(t *testing.T) {
	n := &recordingNotifier{}
	trig := NewTrigger(n)

	trig.ObserveLevel(20)
	trig.ObserveLevel(20)
	trig.ObserveLevel(20)

	if n.count() != 3 {
		t.Errorf("got %d alerts, want one per occurrence (3)", n.count())
	}
}

func TestTriggerWithThresholdAndText(t *testing.T) {
	n := &recordingNotifier{}
	trig := NewTrigger(n).WithThreshold(10).WithText("Drink", "")

	trig.ObserveLevel(20)
	trig.ObserveLevel(10)

	if n.count() != 1 {
		t.Fatalf("got %d alerts, want 1", n.count())
	}
	if n.alerts[0].Title != "Drink" || n.alerts[0].Body != DefaultBody {
		t.Errorf("alert = %+v", n.alerts[0])
	}
}

type fakeBus struct {
	mu    sync.Mutex
	calls [][]interface{}
	done  chan struct{}
}

func (b *fakeBus) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	b.mu.Lock()
	b.calls = append(b.calls, append([]interface{}{method}, args...))
	b.mu.Unlock()
	b.done <- struct{}{}
	return &dbus.Call{}
}

func TestDBusNotifierSendsCriticalUrgency(t *testing.T) {
	bus := &fakeBus{done: make(chan struct{}, 1)}
	n := &DBusNotifier{obj: bus, appName: "sipsmart"}

	n.Notify(Alert{Title: "t", Body: "b", Priority: PriorityHigh})

	select {
	case <-bus.done:
	case <-time.After(time.Second):
		t.Fatal("Notify did not reach the bus")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	call := bus.calls[0]
	if call[0] != notifyMethod {
		t.Errorf("method = %v, want %s", call[0], notifyMethod)
	}
	if call[1] != "sipsmart" || call[4] != "t" || call[5] != "b" {
		t.Errorf("args = %v", call[1:])
	}
	hints := call[7].(map[string]dbus.Variant)
	if got := hints["urgency"].Value(); got != byte(2) {
		t.Errorf("urgency = %v, want 2", got)
	}
}

func TestUrgencyMapping(t *testing.T) {
	if urgency(PriorityLow) != 0 || urgency(PriorityNormal) != 1 || urgency(PriorityHigh) != 2 {
		t.Error("unexpected urgency mapping")
	}
}
