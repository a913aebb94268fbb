package alert

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"
)

// busCaller is the subset of dbus.BusObject used by DBusNotifier.
type busCaller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DBusNotifier posts alerts to the desktop notification daemon over the
// session bus.
type DBusNotifier struct {
	conn    *dbus.Conn
	obj     busCaller
	appName string
}

// NewDBusNotifier connects to the session bus.
func NewDBusNotifier(appName string) (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("alert: connect session bus: %w", err)
	}
	return &DBusNotifier{
		conn:    conn,
		obj:     conn.Object(notifyDest, notifyPath),
		appName: appName,
	}, nil
}

// urgency maps a Priority to the freedesktop urgency hint byte.
func urgency(p Priority) byte {
	switch p {
	case PriorityHigh:
		return 2 // critical
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Notify sends the alert on its own goroutine; delivery errors are logged.
func (n *DBusNotifier) Notify(a Alert) {
	go func() {
		hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency(a.Priority))}
		call := n.obj.Call(notifyMethod, 0,
			n.appName, uint32(0), "", a.Title, a.Body, []string{}, hints, int32(-1))
		if call.Err != nil {
			slog.Error("[ALERT] desktop notification failed", "error", call.Err)
		}
	}()
}

// Close releases the bus connection.
func (n *DBusNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}
