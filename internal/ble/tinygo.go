package ble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// ErrUnsupportedDescriptor is returned for descriptor writes the underlying
// stack cannot express.
var ErrUnsupportedDescriptor = errors.New("ble: unsupported descriptor")

// TinyGoAdapter wraps tinygo-org/bluetooth (BlueZ on Linux, CoreBluetooth on
// macOS). On macOS device addresses are CoreBluetooth UUIDs rather than MAC
// addresses; both are carried as opaque strings.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects enabled and the connections map.
	mu          sync.Mutex
	enabled     bool
	connections map[string]*tinyGoConnection // keyed by address
}

// NewTinyGoAdapter returns an adapter bound to the default controller.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*tinyGoConnection),
	}
}

// Enable powers on the controller. Calling it again is a no-op.
func (a *TinyGoAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled {
		return nil
	}
	if err := a.adapter.Enable(); err != nil {
		return err
	}
	a.enabled = true

	// Disconnects are reported adapter-wide; route them to the connection.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[addr]
		delete(a.connections, addr)
		a.mu.Unlock()
		if ok {
			conn.fireDisconnect()
		}
	})

	return nil
}

// Scan listens for advertisements of serviceUUID until ctx is done. A
// peripheral advertises many times per scan; each address is reported once
// with its best RSSI.
func (a *TinyGoAdapter) Scan(ctx context.Context, serviceUUID string) ([]Device, error) {
	want, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}

	if ctx.Err() != nil {
		return nil, nil
	}

	var mu sync.Mutex
	seen := newSightings()

	stop := context.AfterFunc(ctx, func() { a.adapter.StopScan() })
	defer stop()

	err = a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(want) {
			return
		}
		d := Device{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    int(result.RSSI),
		}
		mu.Lock()
		seen.add(d)
		mu.Unlock()
	})
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return seen.devices(), nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// tinygo's Connect blocks with its own timeout; ctx only lets the
	// caller stop waiting.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// Release the link if it comes up after we stopped waiting.
		go func() {
			if res := <-ch; res.err == nil {
				_ = res.device.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		conn := &tinyGoConnection{
			device:  result.device,
			chars:   make(map[string]bluetooth.DeviceCharacteristic),
			enabled: make(map[string]bool),
		}
		a.mu.Lock()
		a.connections[result.device.Address.String()] = conn
		a.mu.Unlock()
		return conn, nil
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device bluetooth.Device

	mu           sync.Mutex
	chars        map[string]bluetooth.DeviceCharacteristic // filled by DiscoverServices
	enabled      map[string]bool
	notifyCb     func(charUUID string, data []byte)
	disconnectCb func()
}

func (c *tinyGoConnection) DiscoverServices() (map[string][]string, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	out := make(map[string][]string, len(svcs))
	for _, svc := range svcs {
		svcUUID := strings.ToLower(svc.UUID().String())
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svcUUID, err)
		}
		c.mu.Lock()
		for _, ch := range chars {
			id := strings.ToLower(ch.UUID().String())
			c.chars[id] = ch
			out[svcUUID] = append(out[svcUUID], id)
		}
		c.mu.Unlock()
	}
	return out, nil
}

func (c *tinyGoConnection) SetNotification(charUUID string, enabled bool) error {
	id := strings.ToLower(charUUID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.chars[id]; !ok {
		return fmt.Errorf("ble: characteristic %s not discovered", charUUID)
	}
	c.enabled[id] = enabled
	return nil
}

// WriteDescriptor only supports the CCCD: tinygo writes it itself when
// notifications are enabled or disabled.
func (c *tinyGoConnection) WriteDescriptor(charUUID, descUUID string, value []byte) error {
	if !strings.EqualFold(descUUID, ClientConfigDescUUID) {
		return fmt.Errorf("%w: %s", ErrUnsupportedDescriptor, descUUID)
	}
	id := strings.ToLower(charUUID)
	c.mu.Lock()
	ch, ok := c.chars[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: characteristic %s not discovered", charUUID)
	}

	if bytes.Equal(value, DisableNotificationValue) {
		return ch.EnableNotifications(nil)
	}
	return ch.EnableNotifications(func(buf []byte) {
		c.mu.Lock()
		cb := c.notifyCb
		on := c.enabled[id]
		c.mu.Unlock()
		if cb == nil || !on {
			return
		}
		data := make([]byte, len(buf))
		copy(data, buf)
		cb(id, data)
	})
}

func (c *tinyGoConnection) OnNotification(cb func(charUUID string, data []byte)) {
	c.mu.Lock()
	c.notifyCb = cb
	c.mu.Unlock()
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.disconnectCb = cb
	c.mu.Unlock()
}

func (c *tinyGoConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *tinyGoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}
