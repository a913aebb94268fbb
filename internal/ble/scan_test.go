package ble_test

import (
	"errors"
	"testing"
	"time"

	"github.com/chaz8081/sipsmart/internal/ble"
	"github.com/chaz8081/sipsmart/internal/ble/bletest"
)

func TestScanForDevicesSortsByRSSI(t *testing.T) {
	adapter := bletest.NewAdapter()
	adapter.Devices = []ble.Device{
		{Name: "far", Address: "AA:00:00:00:00:01", RSSI: -90},
		{Name: "near", Address: "AA:00:00:00:00:02", RSSI: -40},
		{Name: "mid", Address: "AA:00:00:00:00:03", RSSI: -65},
	}

	devices, err := ble.ScanForDevices(adapter, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	want := []string{"near", "mid", "far"}
	if len(devices) != len(want) {
		t.Fatalf("got %d devices, want %d", len(devices), len(want))
	}
	for i, name := range want {
		if devices[i].Name != name {
			t.Errorf("devices[%d] = %q, want %q", i, devices[i].Name, name)
		}
	}
}

func TestScanForDevicesEnableError(t *testing.T) {
	adapter := bletest.NewAdapter()
	adapter.EnableErr = errors.New("powered off")

	if _, err := ble.ScanForDevices(adapter, time.Millisecond); err == nil {
		t.Error("ScanForDevices() should fail when the adapter cannot be enabled")
	}
}

func TestSignalStrength(t *testing.T) {
	tests := []struct {
		rssi int
		want float64
	}{
		{-30, 1},
		{-50, 1},
		{-75, 0.5},
		{-100, 0},
		{-120, 0},
	}
	for _, tt := range tests {
		if got := ble.SignalStrength(tt.rssi); got != tt.want {
			t.Errorf("SignalStrength(%d) = %v, want %v", tt.rssi, got, tt.want)
		}
	}
}

func TestBletestImplementsInterfaces(t *testing.T) {
	var _ ble.Adapter = (*bletest.Adapter)(nil)
	var _ ble.Connection = (*bletest.Connection)(nil)
}
