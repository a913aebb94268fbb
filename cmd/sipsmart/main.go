package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chaz8081/sipsmart/internal/alert"
	"github.com/chaz8081/sipsmart/internal/ble"
	"github.com/chaz8081/sipsmart/internal/config"
	"github.com/chaz8081/sipsmart/internal/gateway"
	"github.com/chaz8081/sipsmart/internal/logging"
	"github.com/chaz8081/sipsmart/internal/metrics"
	"github.com/chaz8081/sipsmart/internal/session"
	"github.com/chaz8081/sipsmart/internal/status"
	"github.com/chaz8081/sipsmart/internal/telemetry"
	"github.com/chaz8081/sipsmart/internal/web"
)

const appName = "sipsmart"

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/sipsmart/config.yaml)")
	device := flag.String("device", "", "bottle address, overrides device.address")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *device != "" {
		cfg.Device.Address = *device
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	slog.SetDefault(logging.New(os.Stderr, cfg.LogFormat, level, appName))

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
	slog.Info("Goodbye!")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := gateway.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	slog.Info("[SYNC] store ready", "path", cfg.Store.Path)

	var gw gateway.Gateway = store
	if cfg.MQTT.Enabled {
		pub, err := gateway.NewMQTTPublisher(ctx, gateway.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Timeout:  cfg.MQTT.Timeout,
		})
		if err != nil {
			slog.Warn("[MQTT] mirror disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			defer pub.Close()
			gw = &gateway.Mirrored{Primary: store, Mirror: pub}
			slog.Info("[MQTT] mirroring records", "broker", cfg.MQTT.Broker, "topic", gateway.RecordTopic(cfg.UserID))
		}
	}

	syncProfile(ctx, gw, cfg)
	logHistory(ctx, gw, cfg.UserID, cfg.History.FetchRecent)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	notifier, closeNotifier := newNotifier(cfg.Alert.Desktop)
	defer closeNotifier()
	trigger := alert.NewTrigger(countingNotifier{next: notifier, metrics: m}).
		WithThreshold(cfg.Alert.Threshold).
		WithText(cfg.Alert.Title, cfg.Alert.Body)

	adapter := ble.NewTinyGoAdapter()
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("enabling bluetooth: %w", err)
	}

	peripheral, err := selectPeripheral(adapter, cfg.Device)
	if err != nil {
		return err
	}

	machine := session.New(adapter, session.Options{
		UserID:                cfg.UserID,
		Gateway:               gw,
		Observer:              trigger,
		Metrics:               m,
		SkipFirstNotification: cfg.Session.SkipFirstNotification,
		SaveTimeout:           cfg.Session.SaveTimeout,
	})

	tracker := status.NewTracker(time.Now(), status.Config{
		UserID:       cfg.UserID,
		Device:       peripheral.Address,
		StorePath:    cfg.Store.Path,
		MQTTBroker:   mirrorBroker(cfg),
		HTTPAddr:     cfg.HTTP.Addr,
		AlertPercent: cfg.Alert.Threshold,
	})
	machine.Subscribe(tracker.Update)
	machine.Subscribe(logFailures())

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := machine.Run(ctx); err != nil {
			slog.Error("[SESSION] stopped", "error", err)
		}
	}()

	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		srv = web.New(cfg.HTTP.Addr, tracker, gw, cfg.UserID, reg)
		srv.SetNotificationSwitch(machine)
		go func() {
			slog.Info("[HTTP] listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("[HTTP] server failed", "error", err)
			}
		}()
	}

	if err := machine.Connect(peripheral); err != nil {
		slog.Error("[SESSION] connect rejected", "error", err)
	}

	slog.Info("Ready! Ctrl+C to quit.")
	<-ctx.Done()
	slog.Info("Shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("[HTTP] shutdown", "error", err)
		}
		cancel()
	}
	<-runDone
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or writes and uses the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	if written, err := config.WriteDefault(); err != nil {
		fmt.Fprintf(os.Stderr, "could not write default config: %v\n", err)
	} else if written != "" {
		fmt.Fprintf(os.Stderr, "Wrote default config to %s\n", written)
	}
	return config.Default(), nil
}

// selectPeripheral returns the configured bottle, or scans and picks the
// strongest one advertising the sensor service.
func selectPeripheral(adapter ble.Adapter, dc config.DeviceConfig) (telemetry.Peripheral, error) {
	if dc.Address != "" {
		return telemetry.Peripheral{Address: dc.Address, Name: dc.Name}, nil
	}

	slog.Info("[BLE] scanning for bottles", "timeout", dc.ScanTimeout)
	devices, err := ble.ScanForDevices(adapter, dc.ScanTimeout)
	if err != nil {
		return telemetry.Peripheral{}, err
	}
	for _, d := range devices {
		if dc.Name != "" && !strings.EqualFold(d.Name, dc.Name) {
			continue
		}
		slog.Info("[BLE] selected bottle", "address", d.Address, "name", d.Name, "rssi", d.RSSI)
		return telemetry.Peripheral{Address: d.Address, Name: d.Name, RSSI: d.RSSI}, nil
	}
	return telemetry.Peripheral{}, fmt.Errorf("no bottle found within %s", dc.ScanTimeout)
}

// syncProfile pushes the configured profile fields to the store.
func syncProfile(ctx context.Context, gw gateway.Gateway, cfg *config.Config) {
	if cfg.Profile.HydrationGoalML > 0 {
		if err := gw.SaveField(ctx, cfg.UserID, gateway.FieldHydrationGoal, cfg.Profile.HydrationGoalML); err != nil {
			slog.Warn("[SYNC] saving hydration goal", "error", err)
		}
	}

	fields := map[string]any{}
	if cfg.Profile.DisplayName != "" {
		fields[gateway.FieldDisplayName] = cfg.Profile.DisplayName
	}
	if cfg.Device.Address != "" {
		fields[gateway.FieldDeviceAddress] = cfg.Device.Address
	}
	if len(fields) == 0 {
		return
	}
	if err := gw.UpsertMerge(ctx, cfg.UserID, fields); err != nil {
		slog.Warn("[SYNC] saving profile", "error", err)
	}
}

// logHistory logs the most recent stored readings.
func logHistory(ctx context.Context, gw gateway.Gateway, userID string, n int) {
	if n <= 0 {
		return
	}
	recs, err := gw.FetchRecent(ctx, userID, n)
	if err != nil {
		slog.Warn("[SYNC] fetching history", "error", err)
		return
	}
	if len(recs) == 0 {
		slog.Info("[SYNC] no stored readings yet")
		return
	}
	latest := recs[0]
	slog.Info("[SYNC] last reading",
		"temperature", latest.Temperature,
		"level", latest.LiquidFraction,
		"at", latest.Timestamp.Local().Format(time.DateTime),
		"fetched", len(recs))
}

// newNotifier returns the desktop notifier, falling back to the log when
// the session bus is unreachable.
func newNotifier(desktop bool) (alert.Notifier, func()) {
	noop := func() {}
	if !desktop {
		return alert.LogNotifier{}, noop
	}
	n, err := alert.NewDBusNotifier(appName)
	if err != nil {
		slog.Warn("[ALERT] desktop notifications unavailable, logging alerts instead", "error", err)
		return alert.LogNotifier{}, noop
	}
	return n, func() { n.Close() }
}

// countingNotifier counts alerts before passing them on.
type countingNotifier struct {
	next    alert.Notifier
	metrics *metrics.Metrics
}

func (n countingNotifier) Notify(a alert.Alert) {
	n.metrics.Alert()
	n.next.Notify(a)
}

// logFailures reports entry into Failed once per failure.
func logFailures() func(session.Snapshot) {
	var last session.State
	return func(s session.Snapshot) {
		if s.State == session.Failed && last != session.Failed {
			slog.Error("[SESSION] link failed; restart to retry", "status", s.Status, "error", s.LastError)
		}
		last = s.State
	}
}

func mirrorBroker(cfg *config.Config) string {
	if !cfg.MQTT.Enabled {
		return ""
	}
	return cfg.MQTT.Broker
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	device := cfg.Device.Address
	if device == "" {
		device = "scan"
	}
	fmt.Println("=== sipsmart ===")
	fmt.Printf("  User:    %s\n", cfg.UserID)
	fmt.Printf("  Device:  %s\n", device)
	fmt.Printf("  Store:   %s\n", cfg.Store.Path)
	fmt.Printf("  Mirror:  %s\n", orNone(mirrorBroker(cfg)))
	fmt.Printf("  Alert:   raw level %d\n", cfg.Alert.Threshold)
	fmt.Printf("  HTTP:    %s\n", orNone(cfg.HTTP.Addr))
	fmt.Printf("  Log:     %s (%s)\n", cfg.LogLevel, cfg.LogFormat)
	fmt.Println("================")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
