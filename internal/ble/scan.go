package ble

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ScanForDevices scans for sensors advertising the bottle service, strongest
// signal first.
func ScanForDevices(adapter Adapter, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	sort.SliceStable(devices, func(i, j int) bool { return devices[i].RSSI > devices[j].RSSI })
	return devices, nil
}

// SignalStrength maps RSSI in dBm to [0,1]: -50 and above is full strength,
// -100 and below is none.
func SignalStrength(rssi int) float64 {
	switch {
	case rssi >= -50:
		return 1
	case rssi <= -100:
		return 0
	default:
		return float64(rssi+100) / 50
	}
}

// sightings folds repeated advertisements into one Device per address,
// keeping the strongest RSSI and the first non-empty name. Devices keep the
// order they were first seen in.
type sightings struct {
	order  []string
	byAddr map[string]Device
}

func newSightings() *sightings {
	return &sightings{byAddr: make(map[string]Device)}
}

func (s *sightings) add(d Device) {
	prev, ok := s.byAddr[d.Address]
	if !ok {
		s.order = append(s.order, d.Address)
		s.byAddr[d.Address] = d
		return
	}
	if d.RSSI > prev.RSSI {
		prev.RSSI = d.RSSI
	}
	if prev.Name == "" {
		prev.Name = d.Name
	}
	s.byAddr[d.Address] = prev
}

func (s *sightings) devices() []Device {
	out := make([]Device, 0, len(s.order))
	for _, addr := range s.order {
		out = append(out, s.byAddr[addr])
	}
	return out
}
