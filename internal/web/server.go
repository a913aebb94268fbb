// Package web serves the daemon's status, recent history and Prometheus
// metrics over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaz8081/sipsmart/internal/gateway"
	"github.com/chaz8081/sipsmart/internal/session"
	"github.com/chaz8081/sipsmart/internal/status"
)

const (
	defaultHistory = 10
	maxHistory     = 500
)

// NotificationSwitch turns sensor notifications on or off.
type NotificationSwitch interface {
	SetNotifications(enabled bool) error
}

// Server serves the status endpoints.
type Server struct {
	httpServer    *http.Server
	tracker       *status.Tracker
	history       gateway.Gateway
	userID        string
	notifications NotificationSwitch
}

// New creates a Server reading state from tracker and history from gw.
// gatherer backs /metrics.
func New(addr string, tracker *status.Tracker, gw gateway.Gateway, userID string, gatherer prometheus.Gatherer) *Server {
	s := &Server{tracker: tracker, history: gw, userID: userID}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/history", s.handleHistory)
	r.Post("/notifications/{mode}", s.handleNotifications)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetNotificationSwitch enables POST /notifications/{on,off}.
func (s *Server) SetNotificationSwitch(sw NotificationSwitch) {
	s.notifications = sw
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

type historyRecord struct {
	TemperatureC float64 `json:"temperature_c"`
	LiquidLevel  float64 `json:"liquid_level"`
	Timestamp    string  `json:"timestamp"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	n := defaultHistory
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = min(v, maxHistory)
	}

	recs, err := s.history.FetchRecent(r.Context(), s.userID, n)
	if err != nil {
		slog.Warn("[HTTP] fetch history failed", "error", err)
		http.Error(w, "history unavailable", http.StatusServiceUnavailable)
		return
	}

	out := make([]historyRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, historyRecord{
			TemperatureC: rec.Temperature,
			LiquidLevel:  rec.LiquidFraction,
			Timestamp:    rec.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		slog.Debug("[HTTP] writing history response", "error", err)
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		http.Error(w, "notification control unavailable", http.StatusNotImplemented)
		return
	}
	var enabled bool
	switch chi.URLParam(r, "mode") {
	case "on":
		enabled = true
	case "off":
	default:
		http.Error(w, "mode must be on or off", http.StatusBadRequest)
		return
	}

	err := s.notifications.SetNotifications(enabled)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrNotConnected):
		http.Error(w, "bottle not connected", http.StatusConflict)
	default:
		slog.Warn("[HTTP] switching notifications failed", "enabled", enabled, "error", err)
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
	}
}
