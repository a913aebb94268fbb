// Package bletest provides in-memory ble.Adapter and ble.Connection
// implementations for tests.
package bletest

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/chaz8081/sipsmart/internal/ble"
)

// Adapter is an in-memory ble.Adapter. Every Connect returns a new
// Connection pre-loaded with Services.
type Adapter struct {
	mu sync.Mutex

	// Devices is returned by Scan.
	Devices []ble.Device
	// Services is copied into every new connection.
	Services map[string][]string
	// ConnectErr, if set, is returned by Connect.
	ConnectErr error
	// ConnectGate, if set, makes Connect wait for a receive before returning.
	ConnectGate chan struct{}
	// EnableErr, if set, is returned by Enable.
	EnableErr error
	// DiscoverErr, if set, is returned by DiscoverServices on new connections.
	DiscoverErr error
	// WriteGate and WriteErrs are installed on new connections; see
	// Connection.SetWriteGate and SetWriteError.
	WriteGate chan struct{}
	WriteErrs map[string]error

	connectCalls int
	connections  []*Connection
}

// NewAdapter returns an adapter whose connections expose the bottle
// service with both characteristics.
func NewAdapter() *Adapter {
	return &Adapter{Services: SensorServices()}
}

// SensorServices returns a discovery result that matches the bottle sensor.
func SensorServices() map[string][]string {
	return map[string][]string{
		"00001800-0000-1000-8000-00805f9b34fb": {"00002a00-0000-1000-8000-00805f9b34fb"},
		ble.ServiceUUID:                        {ble.LiquidLevelCharUUID, ble.TemperatureCharUUID},
	}
}

func (a *Adapter) Enable() error { return a.EnableErr }

func (a *Adapter) Scan(_ context.Context, _ string) ([]ble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ble.Device, len(a.Devices))
	copy(out, a.Devices)
	return out, nil
}

func (a *Adapter) Connect(ctx context.Context, address string) (ble.Connection, error) {
	a.mu.Lock()
	a.connectCalls++
	gate := a.ConnectGate
	connErr := a.ConnectErr
	discoverErr := a.DiscoverErr
	writeGate := a.WriteGate
	writeErrs := a.WriteErrs
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if connErr != nil {
		return nil, fmt.Errorf("fake: connect to %s: %w", address, connErr)
	}

	conn := NewConnection(a.Services)
	conn.Address = address
	conn.discoverErr = discoverErr
	conn.writeGate = writeGate
	for char, err := range writeErrs {
		conn.writeErrs[char] = err
	}
	a.mu.Lock()
	a.connections = append(a.connections, conn)
	a.mu.Unlock()
	return conn, nil
}

// SetConnectErr changes the error returned by subsequent Connect calls.
func (a *Adapter) SetConnectErr(err error) {
	a.mu.Lock()
	a.ConnectErr = err
	a.mu.Unlock()
}

// ConnectCalls returns how many times Connect was called.
func (a *Adapter) ConnectCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectCalls
}

// Connections returns every connection handed out, oldest first.
func (a *Adapter) Connections() []*Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Connection, len(a.connections))
	copy(out, a.connections)
	return out
}

// LatestConnection returns the most recent connection, or nil.
func (a *Adapter) LatestConnection() *Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.connections) == 0 {
		return nil
	}
	return a.connections[len(a.connections)-1]
}

var _ ble.Adapter = (*Adapter)(nil)

// Write is one recorded WriteDescriptor call.
type Write struct {
	CharUUID string
	DescUUID string
	Value    []byte
}

// Enable reports whether the write enabled notifications.
func (w Write) Enable() bool {
	return bytes.Equal(w.Value, ble.EnableNotificationValue)
}

// Connection is an in-memory ble.Connection.
type Connection struct {
	mu sync.Mutex

	Address string

	services    map[string][]string
	discoverErr error
	writeErrs   map[string]error
	writeGate   chan struct{}

	writes       []Write
	notify       map[string]bool
	notifyCb     func(string, []byte)
	disconnectCb func()
	disconnects  int
}

// NewConnection returns a connection exposing services.
func NewConnection(services map[string][]string) *Connection {
	return &Connection{
		services:  services,
		writeErrs: make(map[string]error),
		notify:    make(map[string]bool),
	}
}

// SetDiscoverError makes DiscoverServices fail.
func (c *Connection) SetDiscoverError(err error) {
	c.mu.Lock()
	c.discoverErr = err
	c.mu.Unlock()
}

// SetWriteError makes writes to charUUID's descriptor fail.
func (c *Connection) SetWriteError(charUUID string, err error) {
	c.mu.Lock()
	c.writeErrs[charUUID] = err
	c.mu.Unlock()
}

// SetWriteGate makes every WriteDescriptor wait for a receive on gate.
func (c *Connection) SetWriteGate(gate chan struct{}) {
	c.mu.Lock()
	c.writeGate = gate
	c.mu.Unlock()
}

func (c *Connection) DiscoverServices() (map[string][]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discoverErr != nil {
		return nil, c.discoverErr
	}
	out := make(map[string][]string, len(c.services))
	for k, v := range c.services {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (c *Connection) SetNotification(charUUID string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify[charUUID] = enabled
	return nil
}

func (c *Connection) WriteDescriptor(charUUID, descUUID string, value []byte) error {
	c.mu.Lock()
	c.writes = append(c.writes, Write{CharUUID: charUUID, DescUUID: descUUID, Value: append([]byte(nil), value...)})
	gate := c.writeGate
	err := c.writeErrs[charUUID]
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (c *Connection) OnNotification(cb func(string, []byte)) {
	c.mu.Lock()
	c.notifyCb = cb
	c.mu.Unlock()
}

func (c *Connection) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.disconnectCb = cb
	c.mu.Unlock()
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
	return nil
}

// Writes returns the recorded descriptor writes in call order.
func (c *Connection) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Write, len(c.writes))
	copy(out, c.writes)
	return out
}

// NotificationsEnabled reports the last SetNotification value for charUUID.
func (c *Connection) NotificationsEnabled(charUUID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notify[charUUID]
}

// Disconnects returns how many times Disconnect was called.
func (c *Connection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// SimulateNotification delivers data as if the peripheral pushed it.
func (c *Connection) SimulateNotification(charUUID string, data []byte) {
	c.mu.Lock()
	cb := c.notifyCb
	c.mu.Unlock()
	if cb != nil {
		cb(charUUID, data)
	}
}

// SimulateDisconnect triggers the disconnect callback.
func (c *Connection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

var _ ble.Connection = (*Connection)(nil)
