// Package ble provides the transport side of the bottle sensor link: the
// adapter/connection abstraction over a BLE GATT stack, the fixed sensor
// UUIDs, and the descriptor write queue that serializes notification setup.
package ble

import (
	"context"

	"github.com/chaz8081/sipsmart/internal/ble/protocol"
)

// Sensor GATT UUIDs.
const (
	ServiceUUID          = protocol.ServiceUUID
	LiquidLevelCharUUID  = protocol.LiquidLevelCharUUID
	TemperatureCharUUID  = protocol.TemperatureCharUUID
	ClientConfigDescUUID = "00002902-0000-1000-8000-00805f9b34fb" // CCCD
)

// CCCD values.
var (
	EnableNotificationValue  = []byte{0x01, 0x00}
	DisableNotificationValue = []byte{0x00, 0x00}
)

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active GATT connection to a peripheral. Methods
// may block; callers that must not block run them on their own goroutine.
type Connection interface {
	// DiscoverServices enumerates services and their characteristics,
	// keyed by lower-case service UUID.
	DiscoverServices() (map[string][]string, error)
	// SetNotification enables or disables local routing of notifications
	// for a characteristic. It does not touch the peripheral.
	SetNotification(charUUID string, enabled bool) error
	// WriteDescriptor writes value to a characteristic's descriptor and
	// returns once the peripheral acknowledged the write.
	WriteDescriptor(charUUID, descUUID string, value []byte) error
	// OnNotification registers the callback for incoming notifications.
	OnNotification(callback func(charUUID string, data []byte))
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
	// Disconnect terminates the connection and releases its resources.
	Disconnect() error
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals advertising the given service UUID
	// until ctx is done.
	Scan(ctx context.Context, serviceUUID string) ([]Device, error)
	// Connect establishes a connection to the peripheral at address.
	Connect(ctx context.Context, address string) (Connection, error)
}
