package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gridpulse/gridpulse-ui/internal/alerts"
	"github.com/gridpulse/gridpulse-ui/internal/cache"
	"github.com/gridpulse/gridpulse-ui/internal/config"
	"github.com/gridpulse/gridpulse-ui/internal/feed"
	"github.com/gridpulse/gridpulse-ui/internal/grid"
	"github.com/gridpulse/gridpulse-ui/internal/layout"
	"github.com/gridpulse/gridpulse-ui/internal/prefs"
	"github.com/gridpulse/gridpulse-ui/internal/reconcile"
)

func fp(v float64) *float64 { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testLimits = grid.LimitConfig{
	Nominal:      230,
	LowerLimit:   218,
	UpperLimit:   242,
	WarningLower: 222,
	WarningUpper: 238,
}

func testTopology() *grid.Topology {
	now := time.Now()
	return &grid.Topology{
		Transformer: grid.Transformer{ID: "tx-1", Name: "TX Main"},
		Limits:      testLimits,
		FetchedAt:   now,
		Phases: []*grid.PhaseGroup{
			{Phase: grid.PhaseA, Prosumers: []*grid.ProsumerNode{
				{ID: "p1", Name: "House 1", Phase: grid.PhaseA, ChainPosition: 1, Voltage: fp(230), LastUpdatedAt: now},
				{ID: "p2", Name: "House 2", Phase: grid.PhaseA, ChainPosition: 2, Voltage: fp(245), LastUpdatedAt: now},
			}},
			{Phase: grid.PhaseB, Prosumers: []*grid.ProsumerNode{
				{ID: "p3", Name: "House 3", Phase: grid.PhaseB, ChainPosition: 1, Voltage: fp(239), LastUpdatedAt: now},
			}},
		},
	}
}

// fakeFeed records upstream acknowledge/resolve forwards and serves canned
// stats/timeline responses when set.
type fakeFeed struct {
	feed.Client
	acked    []string
	resolved []string
	stats    *feed.AlertStats
	timeline []feed.TimelineEntry
}

func (f *fakeFeed) Acknowledge(_ context.Context, id string) error {
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeFeed) Resolve(_ context.Context, id string) error {
	f.resolved = append(f.resolved, id)
	return nil
}

func (f *fakeFeed) FetchAlertStats(_ context.Context, _ int) (*feed.AlertStats, error) {
	if f.stats == nil {
		return nil, errors.New("stats unavailable")
	}
	return f.stats, nil
}

func (f *fakeFeed) FetchAlertTimeline(_ context.Context, _, _ int) ([]feed.TimelineEntry, error) {
	if f.timeline == nil {
		return nil, errors.New("timeline unavailable")
	}
	return f.timeline, nil
}

type testServer struct {
	*Server
	store   *grid.Store
	manager *alerts.Manager
	feed    *fakeFeed
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Listen: ":0"},
		Poll:   config.PollConfig{Interval: 30 * time.Second},
		Cache:  config.CacheConfig{TTL: 5 * time.Second},
		Push:   config.PushConfig{Enabled: true},
	}

	store := grid.NewStore(0, nil)
	manager := alerts.NewManager(func() (grid.LimitConfig, bool) {
		return store.Snapshot().Limits, store.Generation() > 0
	}, nil)
	store.SetListener(manager)
	rec := reconcile.New(store, manager, nil)

	svc := prefs.NewService(prefs.NewFileStore(filepath.Join(t.TempDir(), "prefs.json")), nil)
	ff := &fakeFeed{}

	srv := New(cfg, discardLogger(), store, manager, rec, svc,
		cache.New(cfg.Cache.TTL), ff, func() bool { return true })

	return &testServer{Server: srv, store: store, manager: manager, feed: ff}
}

func (ts *testServer) request(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status before first snapshot = %d, want 503", rec.Code)
	}

	ts.store.ReplaceSnapshot(testTopology())

	rec = ts.request(t, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status after snapshot = %d, want 200", rec.Code)
	}
}

func TestTopologyEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.ReplaceSnapshot(testTopology())

	rec := ts.request(t, http.MethodGet, "/api/v1/topology", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	snap := decode[grid.Snapshot](t, rec)
	if snap.Generation != 1 || len(snap.Phases) != 2 {
		t.Errorf("snapshot = gen %d, %d phases", snap.Generation, len(snap.Phases))
	}
	n, ok := snap.Node("p2")
	if !ok || n.Status != grid.StatusCritical {
		t.Errorf("p2 = %+v, want critical at 245 V", n)
	}
}

func TestGraphEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.ReplaceSnapshot(testTopology())

	rec := ts.request(t, http.MethodGet, "/api/v1/graph?direction=horizontal", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	g := decode[layout.Graph](t, rec)
	if g.Direction != layout.Horizontal {
		t.Errorf("direction = %q, want horizontal", g.Direction)
	}
	// transformer + 2 phases + 3 prosumers
	if len(g.Nodes) != 6 {
		t.Errorf("nodes = %d, want 6", len(g.Nodes))
	}

	// Default direction comes from saved preferences (vertical).
	rec = ts.request(t, http.MethodGet, "/api/v1/graph", nil)
	g = decode[layout.Graph](t, rec)
	if g.Direction != layout.Vertical {
		t.Errorf("default direction = %q, want vertical", g.Direction)
	}
}

func TestAlertsFlow(t *testing.T) {
	ts := newTestServer(t)
	// The transition listener raises a critical alert for p2 at 245 V and a
	// warning alert for p3 at 239 V.
	ts.store.ReplaceSnapshot(testTopology())

	rec := ts.request(t, http.MethodGet, "/api/v1/alerts", nil)
	var resp struct {
		Alerts []alerts.Alert `json:"alerts"`
		Meta   struct {
			Active int `json:"active"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Meta.Active != 2 || len(resp.Alerts) != 2 {
		t.Fatalf("alerts = %+v, want critical p2 and warning p3", resp)
	}
	var id string
	for _, a := range resp.Alerts {
		if a.Severity == alerts.SeverityCritical {
			if a.TargetID != "p2" {
				t.Errorf("critical alert target = %q, want p2", a.TargetID)
			}
			id = a.ID
		}
	}
	if id == "" {
		t.Fatalf("no critical alert in %+v", resp.Alerts)
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/alerts/"+id+"/acknowledge", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("acknowledge status = %d", rec.Code)
	}
	if len(ts.feed.acked) != 1 || ts.feed.acked[0] != id {
		t.Errorf("upstream acknowledge not forwarded: %v", ts.feed.acked)
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/alerts/"+id+"/resolve", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("resolve status = %d", rec.Code)
	}
	// The p3 warning alert stays active after resolving the p2 one.
	if ts.manager.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d after resolve, want 1", ts.manager.ActiveCount())
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/alerts/does-not-exist/acknowledge", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown alert status = %d, want 404", rec.Code)
	}
}

func TestAlertStatsAndTimeline(t *testing.T) {
	ts := newTestServer(t)
	ts.store.ReplaceSnapshot(testTopology())

	rec := ts.request(t, http.MethodGet, "/api/v1/alerts/stats", nil)
	var stats struct {
		Active   int                     `json:"active"`
		Counts   map[alerts.Severity]int `json:"counts"`
		Upstream *feed.AlertStats        `json:"upstream"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Active != 2 || stats.Counts[alerts.SeverityCritical] != 1 ||
		stats.Counts[alerts.SeverityWarning] != 1 {
		t.Errorf("stats = %+v, want 1 critical and 1 warning", stats)
	}
	// Upstream stats are best-effort: absent while the service errors.
	if stats.Upstream != nil {
		t.Errorf("upstream = %+v, want omitted on fetch error", stats.Upstream)
	}

	ts.feed.stats = &feed.AlertStats{
		Total:      5,
		BySeverity: map[alerts.Severity]int{alerts.SeverityCritical: 2},
	}
	rec = ts.request(t, http.MethodGet, "/api/v1/alerts/stats?hours=24", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Upstream == nil || stats.Upstream.Total != 5 {
		t.Errorf("upstream = %+v, want total 5", stats.Upstream)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/alerts/stats?hours=0", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid stats hours status = %d, want 400", rec.Code)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/alerts/timeline?hours=1&interval=5", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("timeline status = %d", rec.Code)
	}

	// An upstream bucket outside the local window is folded into the
	// response; overlapping counts take the maximum, not the sum.
	upStart := time.Now().Add(-30 * time.Minute).Truncate(5 * time.Minute)
	ts.feed.timeline = []feed.TimelineEntry{{
		Start:   upStart,
		Counts:  map[alerts.Severity]int{alerts.SeverityWarning: 3},
		Targets: []string{"p9"},
	}}
	rec = ts.request(t, http.MethodGet, "/api/v1/alerts/timeline?hours=1&interval=5", nil)
	var tl struct {
		Buckets []alerts.TimelineBucket `json:"buckets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tl); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, b := range tl.Buckets {
		if b.Start.Equal(upStart) && b.Counts[alerts.SeverityWarning] == 3 {
			found = true
			if len(b.Targets) == 0 || b.Targets[len(b.Targets)-1] != "p9" {
				t.Errorf("merged bucket targets = %v, want p9 included", b.Targets)
			}
		}
	}
	if !found {
		t.Errorf("upstream bucket at %v missing from %d merged buckets", upStart, len(tl.Buckets))
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/alerts/timeline?hours=0", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid hours status = %d, want 400", rec.Code)
	}
}

func TestPrefsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/v1/prefs", nil)
	p := decode[prefs.Preferences](t, rec)
	if p.Direction != layout.Vertical || !p.ShowLegend {
		t.Errorf("default prefs = %+v", p)
	}

	body := []byte(`{"direction":"horizontal","showLegend":false,"showMinimap":true,"showStats":true,"snapToGrid":false}`)
	rec = ts.request(t, http.MethodPost, "/api/v1/prefs", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("set prefs status = %d", rec.Code)
	}
	p = decode[prefs.Preferences](t, rec)
	if p.Direction != layout.Horizontal || p.ShowLegend {
		t.Errorf("updated prefs = %+v", p)
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/prefs", []byte(`not json`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d, want 400", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.ReplaceSnapshot(testTopology())

	rec := ts.request(t, http.MethodGet, "/api/v1/status", nil)
	var status struct {
		Live         bool   `json:"live"`
		Generation   uint64 `json:"generation"`
		ActiveAlerts int    `json:"activeAlerts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Live || status.Generation != 1 || status.ActiveAlerts != 2 {
		t.Errorf("status = %+v", status)
	}
}

func TestConfigEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.ReplaceSnapshot(testTopology())

	rec := ts.request(t, http.MethodGet, "/api/v1/config", nil)
	var cfg struct {
		Limits       *grid.LimitConfig `json:"limits"`
		PollInterval int               `json:"pollInterval"`
		PushEnabled  bool              `json:"pushEnabled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.PollInterval != 30 || !cfg.PushEnabled {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Limits == nil || cfg.Limits.Nominal != 230 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
}

func TestFeederImpactEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.ReplaceSnapshot(testTopology())

	rec := ts.request(t, http.MethodGet, "/api/v1/feeder/impact", nil)
	var res struct {
		Origins []struct {
			ID string `json:"id"`
		} `json:"origins"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Origins) != 1 || res.Origins[0].ID != "p2" {
		t.Errorf("origins = %+v, want p2", res.Origins)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/feeder/impact?phase=D", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid phase status = %d, want 400", rec.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.ReplaceSnapshot(testTopology())

	rec := ts.request(t, http.MethodGet, "/api/v1/export/json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("json export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "gridpulse-grid-") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/export/dot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dot export status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "digraph gridpulse") {
		t.Error("dot export body missing digraph header")
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/export/csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/export/yaml", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported format status = %d, want 400", rec.Code)
	}
}
