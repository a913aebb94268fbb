package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/sipsmart/internal/metrics"
	"github.com/chaz8081/sipsmart/internal/session"
	"github.com/chaz8081/sipsmart/internal/status"
	"github.com/chaz8081/sipsmart/internal/telemetry"
)

type historyGateway struct {
	records []telemetry.Record
	err     error
	gotUser string
	gotN    int
}

func (g *historyGateway) SaveField(context.Context, string, string, any) error { return nil }
func (g *historyGateway) SaveRecord(context.Context, string, telemetry.Record) error {
	return nil
}
func (g *historyGateway) UpsertMerge(context.Context, string, map[string]any) error { return nil }

func (g *historyGateway) FetchRecent(_ context.Context, user string, n int) ([]telemetry.Record, error) {
	g.gotUser, g.gotN = user, n
	if g.err != nil {
		return nil, g.err
	}
	if n < len(g.records) {
		return g.records[:n], nil
	}
	return g.records, nil
}

func newTestServer(t *testing.T, gw *historyGateway) (*Server, *status.Tracker, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tracker := status.NewTracker(time.Now(), status.Config{UserID: "u1", HTTPAddr: ":0"})
	return New(":0", tracker, gw, "u1", reg), tracker, m
}

func get(t *testing.T, srv *Server, target string) (*http.Response, string) {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	resp := rr.Result()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestStatusEndpoint(t *testing.T) {
	ts, tracker, _ := newTestServer(t, &historyGateway{})
	tracker.Update(session.Snapshot{State: session.Active, Status: session.StatusActive})

	resp, body := get(t, ts, "/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got status.StatusJSON
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "active", got.Status.State)
	assert.Equal(t, "u1", got.Status.Config.UserID)
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t, &historyGateway{})
	resp, _ := get(t, ts, "/healthz")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHistoryEndpoint(t *testing.T) {
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	gw := &historyGateway{records: []telemetry.Record{
		{Temperature: 22, LiquidFraction: 0.5, Timestamp: at.Add(time.Minute)},
		{Temperature: 21, LiquidFraction: 1, Timestamp: at},
	}}
	ts, _, _ := newTestServer(t, gw)

	resp, body := get(t, ts, "/history?n=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1", gw.gotUser)
	assert.Equal(t, 1, gw.gotN)

	var got []historyRecord
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 22.0, got[0].TemperatureC)
	assert.Equal(t, "2026-10-16T08:01:00Z", got[0].Timestamp)
}

func TestHistoryDefaultsAndLimits(t *testing.T) {
	gw := &historyGateway{}
	ts, _, _ := newTestServer(t, gw)

	resp, body := get(t, ts, "/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, defaultHistory, gw.gotN)
	assert.Equal(t, "[]", strings.TrimSpace(body))

	get(t, ts, "/history?n=100000")
	assert.Equal(t, maxHistory, gw.gotN)

	resp, _ = get(t, ts, "/history?n=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryGatewayError(t *testing.T) {
	ts, _, _ := newTestServer(t, &historyGateway{err: errors.New("locked")})
	resp, _ := get(t, ts, "/history")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, m := newTestServer(t, &historyGateway{})
	m.Notification("temperature")
	m.State(int(session.Active))

	resp, body := get(t, ts, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `sipsmart_notifications_total{channel="temperature"} 1`)
	assert.Contains(t, body, "sipsmart_session_state 4")
}

func TestUnknownRoute(t *testing.T) {
	ts, _, _ := newTestServer(t, &historyGateway{})
	resp, _ := get(t, ts, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type switchRecorder struct {
	calls []bool
	err   error
}

func (s *switchRecorder) SetNotifications(enabled bool) error {
	s.calls = append(s.calls, enabled)
	return s.err
}

func post(t *testing.T, srv *Server, target string) int {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, target, nil))
	return rr.Code
}

func TestNotificationsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t, &historyGateway{})
	assert.Equal(t, http.StatusNotImplemented, post(t, ts, "/notifications/off"))

	sw := &switchRecorder{}
	ts.SetNotificationSwitch(sw)
	assert.Equal(t, http.StatusNoContent, post(t, ts, "/notifications/off"))
	assert.Equal(t, http.StatusNoContent, post(t, ts, "/notifications/on"))
	assert.Equal(t, http.StatusBadRequest, post(t, ts, "/notifications/maybe"))
	assert.Equal(t, []bool{false, true}, sw.calls)

	sw.err = session.ErrNotConnected
	assert.Equal(t, http.StatusConflict, post(t, ts, "/notifications/on"))
	sw.err = session.ErrStopped
	assert.Equal(t, http.StatusServiceUnavailable, post(t, ts, "/notifications/on"))
}
