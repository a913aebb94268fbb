package ble

import "testing"

func TestSightingsKeepStrongestRSSI(t *testing.T) {
	s := newSightings()
	s.add(Device{Address: "AA:01", RSSI: -80})
	s.add(Device{Address: "AA:02", Name: "kitchen", RSSI: -60})
	s.add(Device{Address: "AA:01", Name: "desk", RSSI: -55})
	s.add(Device{Address: "AA:01", Name: "other", RSSI: -90})
	s.add(Device{Address: "AA:02", RSSI: -70})

	got := s.devices()
	want := []Device{
		{Address: "AA:01", Name: "desk", RSSI: -55},
		{Address: "AA:02", Name: "kitchen", RSSI: -60},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d devices, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("devices[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSightingsEmpty(t *testing.T) {
	if got := newSightings().devices(); len(got) != 0 {
		t.Errorf("devices() = %+v, want none", got)
	}
}
