// Package session owns the link to one bottle sensor: it drives the adapter
// through connect, service discovery and notification setup, routes decoded
// notifications into the pairing buffer, and hands finished records to the
// sync gateway.
//
// All session state lives on the goroutine running Machine.Run. Adapter
// callbacks and the results of blocking adapter calls are posted to it as
// events tagged with the link generation they belong to, so completions from
// a link that has since been torn down are recognised and dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/sipsmart/internal/ble"
	"github.com/chaz8081/sipsmart/internal/ble/protocol"
	"github.com/chaz8081/sipsmart/internal/gateway"
	"github.com/chaz8081/sipsmart/internal/metrics"
	"github.com/chaz8081/sipsmart/internal/pairing"
	"github.com/chaz8081/sipsmart/internal/telemetry"
)

var (
	ErrAlreadyConnecting = errors.New("session: connection already in progress")
	ErrAlreadyConnected  = errors.New("session: already connected")
	ErrNotConnected      = errors.New("session: not connected")
	ErrDisconnecting     = errors.New("session: disconnect in progress")
	ErrIncompatible      = errors.New("session: device incompatible")
	ErrStopped           = errors.New("session: not running")
)

// Status texts shown to the user.
const (
	StatusIncompatible = "device incompatible"
	StatusConnecting   = "connecting"
	StatusDiscovering  = "discovering services"
	StatusEnabling     = "enabling notifications"
	StatusActive       = "receiving telemetry"
	StatusPaused       = "notifications paused"
	StatusDisconnect   = "disconnecting"
	StatusDisconnected = "disconnected"
	StatusLinkLost     = "connection lost"
)

const (
	defaultSaveTimeout = 10 * time.Second
	eventBuffer        = 64
)

// Options configures a Machine.
type Options struct {
	// UserID is the owner of every saved record.
	UserID string
	// Gateway persists finished records.
	Gateway gateway.Gateway
	// Observer sees every raw liquid-level reading (the alert trigger).
	Observer pairing.LevelObserver
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// SkipFirstNotification discards the first notification on each
	// characteristic after setup and after SetNotifications(true); the sensor
	// replays a stale value when a subscription is enabled.
	SkipFirstNotification bool
	// SaveTimeout bounds each SaveRecord call. Defaults to 10s.
	SaveTimeout time.Duration
	// Now stamps records. Defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a point-in-time view of the session. It is a value type and
// safe to keep after the call returns.
type Snapshot struct {
	State      State
	Peripheral telemetry.Peripheral
	Status     string
	LastError  string
	Since      time.Time
	// Notifying is false while Active with notifications switched off.
	Notifying bool

	HasTemperature bool
	Temperature    float64
	HasLevel       bool
	Level          float64
	RawLevel       int

	Records    int
	LastRecord telemetry.Record
}

// Machine is the connection state machine for a single peripheral.
type Machine struct {
	adapter ble.Adapter
	opts    Options

	events chan func()
	done   chan struct{}

	// Owned by the Run goroutine.
	runCtx        context.Context
	state         State
	gen           uint64
	peripheral    telemetry.Peripheral
	conn          ble.Connection
	cancelConnect context.CancelFunc
	queue         *ble.WriteQueue
	buffer        *pairing.Buffer
	skipped       map[string]bool
	paused        bool

	mu   sync.RWMutex
	snap Snapshot
	subs []func(Snapshot)
}

// New returns a Machine in the Disconnected state. Run must be started
// before Connect or Disconnect are called.
func New(adapter ble.Adapter, opts Options) *Machine {
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Machine{
		adapter: adapter,
		opts:    opts,
		events:  make(chan func(), eventBuffer),
		done:    make(chan struct{}),
		runCtx:  context.Background(),
		state:   Disconnected,
	}
	m.snap = Snapshot{State: Disconnected, Status: StatusDisconnected, Since: opts.Now()}
	return m
}

// Run processes session events until ctx is cancelled, then releases any
// open link. It returns nil on a clean shutdown.
func (m *Machine) Run(ctx context.Context) error {
	m.runCtx = ctx
	defer close(m.done)
	m.opts.Metrics.State(int(m.state))

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case fn := <-m.events:
			fn()
		}
	}
}

// Connect starts connecting to p. It returns ErrAlreadyConnecting or
// ErrAlreadyConnected when a link is being set up or is live.
func (m *Machine) Connect(p telemetry.Peripheral) error {
	return m.call(func() error { return m.connect(p) })
}

// Disconnect tears down the current link. It returns ErrNotConnected when
// there is none.
func (m *Machine) Disconnect() error {
	return m.call(m.disconnect)
}

// SetNotifications turns notifications on or off for both characteristics
// of an Active link. The descriptor writes go through the same queue as
// setup. Readings that arrive while off are dropped. It returns
// ErrNotConnected unless the session is Active.
func (m *Machine) SetNotifications(enabled bool) error {
	return m.call(func() error { return m.setNotifications(enabled) })
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.State
}

// Status returns a snapshot of the session.
func (m *Machine) Status() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Subscribe registers fn to receive a snapshot after every change. fn runs
// on the session goroutine; it must return quickly and must not call
// Connect or Disconnect.
func (m *Machine) Subscribe(fn func(Snapshot)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

func (m *Machine) call(fn func() error) error {
	errc := make(chan error, 1)
	if !m.post(func() { errc <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-errc:
		return err
	case <-m.done:
		return ErrStopped
	}
}

// post queues fn for the Run goroutine. It reports false once Run has
// returned.
func (m *Machine) post(fn func()) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.events <- fn:
		return true
	case <-m.done:
		return false
	}
}

// sync waits until every event posted before it has been handled.
func (m *Machine) sync() {
	_ = m.call(func() error { return nil })
}

func (m *Machine) connect(p telemetry.Peripheral) error {
	switch m.state {
	case Connecting, ServicesDiscovering, EnablingNotifications:
		return ErrAlreadyConnecting
	case Active:
		return ErrAlreadyConnected
	case Disconnecting:
		return ErrDisconnecting
	}

	m.gen++
	gen := m.gen
	m.peripheral = p
	m.setState(Connecting, StatusConnecting, func(s *Snapshot) {
		s.Peripheral = p
		s.LastError = ""
	})
	slog.Info("[SESSION] connecting", "address", p.Address, "name", p.Name)

	ctx, cancel := context.WithCancel(m.runCtx)
	m.cancelConnect = cancel
	go func() {
		defer cancel()
		conn, err := m.adapter.Connect(ctx, p.Address)
		if !m.post(func() { m.connected(gen, conn, err) }) && conn != nil {
			release(conn)
		}
	}()
	return nil
}

func (m *Machine) connected(gen uint64, conn ble.Connection, err error) {
	if gen != m.gen || m.state != Connecting {
		if conn != nil {
			slog.Info("[SESSION] releasing connection that completed after teardown", "address", m.peripheral.Address)
			go release(conn)
		}
		return
	}
	m.cancelConnect = nil

	if err != nil {
		slog.Warn("[SESSION] connect failed", "address", m.peripheral.Address, "error", err)
		m.fail(err, fmt.Sprintf("connect failed: %v", err))
		return
	}

	m.conn = conn
	m.buffer = pairing.NewBuffer(m.submitter(gen), m.opts.Observer, m.opts.Now)
	m.skipped = make(map[string]bool)
	conn.OnDisconnect(func() {
		m.post(func() { m.linkLost(gen) })
	})
	conn.OnNotification(func(charUUID string, data []byte) {
		payload := append([]byte(nil), data...)
		m.post(func() { m.notification(gen, charUUID, payload) })
	})

	m.setState(ServicesDiscovering, StatusDiscovering, nil)
	go func() {
		services, err := conn.DiscoverServices()
		m.post(func() { m.discovered(gen, services, err) })
	}()
}

func (m *Machine) discovered(gen uint64, services map[string][]string, err error) {
	if gen != m.gen || m.state != ServicesDiscovering {
		return
	}
	if err != nil {
		slog.Warn("[SESSION] service discovery failed", "address", m.peripheral.Address, "error", err)
		services = nil
	}
	if !hasSensorCharacteristics(services) {
		slog.Warn("[SESSION] peripheral does not expose the sensor service", "address", m.peripheral.Address)
		m.fail(ErrIncompatible, StatusIncompatible)
		return
	}

	m.setState(EnablingNotifications, StatusEnabling, nil)
	m.queue = ble.NewWriteQueue(m.writer(gen), func() { m.notificationsReady(gen) })
	m.queue.Enqueue(ble.DescriptorWrite{CharUUID: ble.TemperatureCharUUID, Enable: true})
	m.queue.Enqueue(ble.DescriptorWrite{CharUUID: ble.LiquidLevelCharUUID, Enable: true})
}

// writer returns the queue's issue func. Each write runs off the session
// goroutine and reports back through writeDone.
func (m *Machine) setNotifications(enabled bool) error {
	if m.state != Active {
		return ErrNotConnected
	}
	if m.paused == !enabled {
		return nil
	}
	m.paused = !enabled
	if enabled {
		// The sensor replays its last value on every subscription.
		m.skipped = make(map[string]bool)
	}
	slog.Info("[SESSION] switching notifications", "address", m.peripheral.Address, "enabled", enabled)
	m.queue.Enqueue(ble.DescriptorWrite{CharUUID: ble.TemperatureCharUUID, Enable: enabled})
	m.queue.Enqueue(ble.DescriptorWrite{CharUUID: ble.LiquidLevelCharUUID, Enable: enabled})

	status := StatusActive
	if !enabled {
		status = StatusPaused
	}
	m.update(func(s *Snapshot) {
		s.Status = status
		s.Notifying = enabled
	})
	return nil
}

func (m *Machine) writer(gen uint64) func(ble.DescriptorWrite) {
	conn := m.conn
	return func(w ble.DescriptorWrite) {
		go func() {
			err := conn.SetNotification(w.CharUUID, w.Enable)
			if err == nil {
				err = conn.WriteDescriptor(w.CharUUID, ble.ClientConfigDescUUID, w.Value())
			}
			m.post(func() { m.writeDone(gen, err) })
		}()
	}
}

func (m *Machine) writeDone(gen uint64, err error) {
	if gen != m.gen || m.queue == nil {
		return
	}
	m.opts.Metrics.DescriptorWrite(err)
	if err != nil {
		m.update(func(s *Snapshot) { s.LastError = err.Error() })
	}
	m.queue.Complete(err)
}

func (m *Machine) notificationsReady(gen uint64) {
	if gen != m.gen || m.state != EnablingNotifications {
		return
	}
	slog.Info("[SESSION] notifications enabled", "address", m.peripheral.Address)
	m.setState(Active, StatusActive, func(s *Snapshot) { s.Notifying = true })
}

func (m *Machine) notification(gen uint64, charUUID string, data []byte) {
	if gen != m.gen {
		return
	}
	channel := protocol.ChannelOf(charUUID)
	if m.state != Active {
		slog.Debug("[SESSION] dropping notification before setup finished", "channel", channel, "state", m.state)
		return
	}
	if m.paused {
		slog.Debug("[SESSION] dropping notification while switched off", "channel", channel)
		return
	}
	m.opts.Metrics.Notification(channel)

	if m.opts.SkipFirstNotification && !m.skipped[channel] {
		m.skipped[channel] = true
		slog.Debug("[SESSION] skipping replayed notification", "channel", channel)
		return
	}

	meas, err := protocol.DecodeNotification(charUUID, data)
	if err != nil {
		slog.Warn("[SESSION] dropping undecodable notification", "channel", channel, "len", len(data), "error", err)
		m.opts.Metrics.DecodeError(channel)
		return
	}

	m.update(func(s *Snapshot) {
		switch meas.Kind {
		case telemetry.KindTemperature:
			s.HasTemperature = true
			s.Temperature = meas.Celsius
		case telemetry.KindLiquidLevel:
			s.HasLevel = true
			s.Level = meas.Fraction
			s.RawLevel = meas.RawPercent
		}
	})
	m.buffer.Add(meas)
}

// submitter returns the buffer's SubmitFunc for link gen.
func (m *Machine) submitter(gen uint64) pairing.SubmitFunc {
	return func(rec telemetry.Record) {
		ctx := m.runCtx
		go func() {
			ctx, cancel := context.WithTimeout(ctx, m.opts.SaveTimeout)
			defer cancel()
			err := m.opts.Gateway.SaveRecord(ctx, m.opts.UserID, rec)
			m.post(func() { m.saved(gen, rec, err) })
		}()
	}
}

func (m *Machine) saved(gen uint64, rec telemetry.Record, err error) {
	m.opts.Metrics.Record(err)
	if err != nil {
		slog.Warn("[SYNC] save record failed", "temperature", rec.Temperature, "level", rec.LiquidFraction, "error", err)
		m.update(func(s *Snapshot) { s.LastError = err.Error() })
		if gen == m.gen && m.buffer != nil {
			m.buffer.PersistFailed(rec.Pair())
		}
		return
	}
	slog.Debug("[SYNC] record saved", "temperature", rec.Temperature, "level", rec.LiquidFraction)
	m.update(func(s *Snapshot) {
		s.Records++
		s.LastRecord = rec
	})
}

func (m *Machine) linkLost(gen uint64) {
	if gen != m.gen || m.state.Terminal() {
		return
	}
	slog.Warn("[SESSION] link lost", "address", m.peripheral.Address, "state", m.state)
	conn := m.teardown()
	if conn != nil {
		go release(conn)
	}
	m.setState(Disconnected, StatusLinkLost, nil)
}

func (m *Machine) disconnect() error {
	switch m.state {
	case Disconnected, Failed:
		return ErrNotConnected
	case Disconnecting:
		return ErrDisconnecting
	}

	slog.Info("[SESSION] disconnecting", "address", m.peripheral.Address, "state", m.state)
	conn := m.teardown()
	gen := m.gen
	m.setState(Disconnecting, StatusDisconnect, nil)
	go func() {
		if conn != nil {
			release(conn)
		}
		m.post(func() { m.disconnected(gen) })
	}()
	return nil
}

func (m *Machine) disconnected(gen uint64) {
	if gen != m.gen || m.state != Disconnecting {
		return
	}
	m.setState(Disconnected, StatusDisconnected, nil)
}

// fail releases the link and enters Failed.
func (m *Machine) fail(err error, status string) {
	conn := m.teardown()
	if conn != nil {
		go release(conn)
	}
	m.setState(Failed, status, func(s *Snapshot) { s.LastError = err.Error() })
}

// teardown discards all per-link state and returns the connection, if any,
// for the caller to release. Bumping the generation orphans every
// outstanding completion for the old link.
func (m *Machine) teardown() ble.Connection {
	m.gen++
	if m.cancelConnect != nil {
		m.cancelConnect()
		m.cancelConnect = nil
	}
	if m.queue != nil {
		m.queue.Reset()
		m.queue = nil
	}
	if m.buffer != nil {
		m.buffer.Reset()
		m.buffer = nil
	}
	m.skipped = nil
	m.paused = false
	conn := m.conn
	m.conn = nil
	return conn
}

func (m *Machine) shutdown() {
	if m.state.Terminal() {
		return
	}
	conn := m.teardown()
	if conn != nil {
		release(conn)
	}
	if m.state != Disconnecting {
		m.setState(Disconnecting, StatusDisconnect, nil)
	}
	m.setState(Disconnected, StatusDisconnected, nil)
}

func (m *Machine) setState(to State, status string, mutate func(*Snapshot)) {
	from := m.state
	if !CanTransition(from, to) {
		slog.Error("[SESSION] illegal transition", "from", from, "to", to)
		return
	}
	m.state = to
	m.opts.Metrics.State(int(to))
	slog.Debug("[SESSION] state changed", "from", from, "to", to, "status", status)
	m.update(func(s *Snapshot) {
		s.State = to
		s.Status = status
		s.Since = m.opts.Now()
		if to != Active {
			s.Notifying = false
		}
		if mutate != nil {
			mutate(s)
		}
	})
}

// update applies mutate to the published snapshot and notifies subscribers.
func (m *Machine) update(mutate func(*Snapshot)) {
	m.mu.Lock()
	mutate(&m.snap)
	snap := m.snap
	subs := m.subs
	m.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func release(conn ble.Connection) {
	if err := conn.Disconnect(); err != nil {
		slog.Debug("[SESSION] releasing connection", "error", err)
	}
}

func hasSensorCharacteristics(services map[string][]string) bool {
	for svc, chars := range services {
		if !strings.EqualFold(svc, ble.ServiceUUID) {
			continue
		}
		var temp, level bool
		for _, c := range chars {
			switch strings.ToLower(c) {
			case ble.TemperatureCharUUID:
				temp = true
			case ble.LiquidLevelCharUUID:
				level = true
			}
		}
		return temp && level
	}
	return false
}
