package session

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Disconnected, Connecting, true},
		{Disconnected, Active, false},
		{Connecting, ServicesDiscovering, true},
		{Connecting, Failed, true},
		{ServicesDiscovering, EnablingNotifications, true},
		{ServicesDiscovering, Failed, true},
		{ServicesDiscovering, Active, false},
		{EnablingNotifications, Active, true},
		{EnablingNotifications, Failed, false},
		{Active, Disconnected, true},
		{Active, Disconnecting, true},
		{Active, Connecting, false},
		{Disconnecting, Disconnected, true},
		{Disconnecting, Connecting, false},
		{Failed, Connecting, true},
		{Failed, Active, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEveryLinkedStateCanDropToDisconnected(t *testing.T) {
	for _, s := range []State{Connecting, ServicesDiscovering, EnablingNotifications, Active, Disconnecting} {
		if !CanTransition(s, Disconnected) {
			t.Errorf("%s cannot reach Disconnected", s)
		}
	}
}

func TestStateString(t *testing.T) {
	if got := EnablingNotifications.String(); got != "enabling_notifications" {
		t.Errorf("String() = %q", got)
	}
	if got := State(42).String(); got != "state(42)" {
		t.Errorf("String() = %q", got)
	}
	if !Failed.Terminal() || !Disconnected.Terminal() || Active.Terminal() {
		t.Error("Terminal() wrong")
	}
}
