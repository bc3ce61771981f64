// Package feed talks to the forecasting/data service: periodic topology
// snapshots and alert records over HTTP, plus the push channel carrying
// incremental readings.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/gridpulse/gridpulse-ui/internal/alerts"
	"github.com/gridpulse/gridpulse-ui/internal/grid"
)

// Client is the data-service API consumed by the supervisor and server.
type Client interface {
	// FetchTopology returns a full, self-consistent topology snapshot.
	FetchTopology(ctx context.Context) (*grid.Topology, error)

	// FetchAlerts returns the most recent alert records.
	FetchAlerts(ctx context.Context, limit int) ([]alerts.Alert, error)

	// FetchAlertStats returns aggregate alert counts over the trailing window.
	FetchAlertStats(ctx context.Context, hours int) (*AlertStats, error)

	// FetchAlertTimeline returns the bucketed alert timeline.
	FetchAlertTimeline(ctx context.Context, hours, intervalMinutes int) ([]TimelineEntry, error)

	// Acknowledge and Resolve forward manual lifecycle transitions.
	// Both are idempotent server-side and treated as such here.
	Acknowledge(ctx context.Context, alertID string) error
	Resolve(ctx context.Context, alertID string) error

	// Ping reports whether the service is reachable.
	Ping(ctx context.Context) bool
}

// AlertStats mirrors the service's aggregate counts response.
type AlertStats struct {
	Total      int                     `json:"total"`
	BySeverity map[alerts.Severity]int `json:"by_severity"`
}

// TimelineEntry mirrors one bucket of the service's timeline response.
type TimelineEntry struct {
	Start   time.Time               `json:"start"`
	Counts  map[alerts.Severity]int `json:"counts"`
	Targets []string                `json:"targets"`
}

// Config holds data-service connection settings.
type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

type client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a new data-service client.
func NewClient(cfg Config) Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// Wire format of the topology endpoint. Prosumers arrive flat; the client
// groups them into per-phase chains ordered by chain position.
type wireTopology struct {
	Transformer wireTransformer `json:"transformer"`
	Prosumers   []wireProsumer  `json:"prosumers"`
	Limits      wireLimits      `json:"limits"`
	Timestamp   time.Time       `json:"timestamp"`
}

type wireTransformer struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	CapacityKva      float64 `json:"capacity_kva"`
	PrimaryVoltage   float64 `json:"primary_voltage"`
	SecondaryVoltage float64 `json:"secondary_voltage"`
}

type wireProsumer struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Phase             string     `json:"phase"`
	ChainPosition     int        `json:"chain_position"`
	HasSolar          bool       `json:"has_solar"`
	HasEV             bool       `json:"has_ev"`
	HasBattery        bool       `json:"has_battery"`
	ActivePowerKw     float64    `json:"active_power_kw"`
	ReactivePowerKvar float64    `json:"reactive_power_kvar"`
	Voltage           *float64   `json:"voltage"`
	UpdatedAt         *time.Time `json:"updated_at"`
}

type wireLimits struct {
	Nominal      float64 `json:"nominal"`
	UpperLimit   float64 `json:"upper_limit"`
	LowerLimit   float64 `json:"lower_limit"`
	WarningUpper float64 `json:"warning_upper"`
	WarningLower float64 `json:"warning_lower"`
}

func (c *client) FetchTopology(ctx context.Context) (*grid.Topology, error) {
	var wire wireTopology
	if err := c.getJSON(ctx, "/api/topology", nil, &wire); err != nil {
		return nil, fmt.Errorf("fetching topology: %w", err)
	}
	return buildTopology(wire), nil
}

// buildTopology groups the flat prosumer list into the phase tree.
func buildTopology(wire wireTopology) *grid.Topology {
	fetchedAt := wire.Timestamp
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	topo := &grid.Topology{
		Transformer: grid.Transformer{
			ID:               wire.Transformer.ID,
			Name:             wire.Transformer.Name,
			CapacityKva:      wire.Transformer.CapacityKva,
			PrimaryVoltage:   wire.Transformer.PrimaryVoltage,
			SecondaryVoltage: wire.Transformer.SecondaryVoltage,
		},
		Limits: grid.LimitConfig{
			Nominal:      wire.Limits.Nominal,
			UpperLimit:   wire.Limits.UpperLimit,
			LowerLimit:   wire.Limits.LowerLimit,
			WarningUpper: wire.Limits.WarningUpper,
			WarningLower: wire.Limits.WarningLower,
		},
		FetchedAt: fetchedAt,
	}

	byPhase := make(map[grid.Phase][]*grid.ProsumerNode, 3)
	for _, wp := range wire.Prosumers {
		node := &grid.ProsumerNode{
			ID:                wp.ID,
			Name:              wp.Name,
			Phase:             grid.Phase(wp.Phase),
			ChainPosition:     wp.ChainPosition,
			HasSolar:          wp.HasSolar,
			HasEV:             wp.HasEV,
			HasBattery:        wp.HasBattery,
			ActivePowerKw:     wp.ActivePowerKw,
			ReactivePowerKvar: wp.ReactivePowerKvar,
			Voltage:           wp.Voltage,
		}
		if wp.UpdatedAt != nil {
			node.LastUpdatedAt = *wp.UpdatedAt
		} else {
			node.LastUpdatedAt = fetchedAt
		}
		byPhase[node.Phase] = append(byPhase[node.Phase], node)
	}

	for _, p := range grid.Phases {
		chain := byPhase[p]
		sort.SliceStable(chain, func(i, j int) bool {
			if chain[i].ChainPosition != chain[j].ChainPosition {
				return chain[i].ChainPosition < chain[j].ChainPosition
			}
			return chain[i].ID < chain[j].ID
		})
		topo.Phases = append(topo.Phases, &grid.PhaseGroup{Phase: p, Prosumers: chain})
	}
	return topo
}

// wireAlert mirrors the service's alert record format.
type wireAlert struct {
	ID             string     `json:"id"`
	RaisedAt       time.Time  `json:"raised_at"`
	Type           string     `json:"type"`
	Severity       string     `json:"severity"`
	TargetID       string     `json:"target_id"`
	Message        string     `json:"message"`
	CurrentValue   float64    `json:"current_value"`
	ThresholdValue float64    `json:"threshold_value"`
	Acknowledged   bool       `json:"acknowledged"`
	ResolvedAt     *time.Time `json:"resolved_at"`
}

func (c *client) FetchAlerts(ctx context.Context, limit int) ([]alerts.Alert, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}

	var wire struct {
		Alerts []wireAlert `json:"alerts"`
	}
	if err := c.getJSON(ctx, "/api/alerts", q, &wire); err != nil {
		return nil, fmt.Errorf("fetching alerts: %w", err)
	}

	out := make([]alerts.Alert, 0, len(wire.Alerts))
	for _, w := range wire.Alerts {
		if w.TargetID == "" {
			continue
		}
		out = append(out, alerts.Alert{
			ID:             w.ID,
			RaisedAt:       w.RaisedAt,
			Type:           w.Type,
			Severity:       alerts.ParseSeverity(w.Severity),
			TargetID:       w.TargetID,
			Message:        w.Message,
			CurrentValue:   w.CurrentValue,
			ThresholdValue: w.ThresholdValue,
			Acknowledged:   w.Acknowledged,
			ResolvedAt:     w.ResolvedAt,
			Source:         alerts.SourceExternal,
		})
	}
	return out, nil
}

func (c *client) FetchAlertStats(ctx context.Context, hours int) (*AlertStats, error) {
	q := url.Values{}
	q.Set("hours", fmt.Sprint(hours))

	var stats AlertStats
	if err := c.getJSON(ctx, "/api/alerts/stats", q, &stats); err != nil {
		return nil, fmt.Errorf("fetching alert stats: %w", err)
	}
	return &stats, nil
}

func (c *client) FetchAlertTimeline(ctx context.Context, hours, intervalMinutes int) ([]TimelineEntry, error) {
	q := url.Values{}
	q.Set("hours", fmt.Sprint(hours))
	q.Set("interval", fmt.Sprint(intervalMinutes))

	var wire struct {
		Buckets []TimelineEntry `json:"buckets"`
	}
	if err := c.getJSON(ctx, "/api/alerts/timeline", q, &wire); err != nil {
		return nil, fmt.Errorf("fetching alert timeline: %w", err)
	}
	return wire.Buckets, nil
}

func (c *client) Acknowledge(ctx context.Context, alertID string) error {
	return c.post(ctx, fmt.Sprintf("/api/alerts/%s/acknowledge", url.PathEscape(alertID)))
}

func (c *client) Resolve(ctx context.Context, alertID string) error {
	return c.post(ctx, fmt.Sprintf("/api/alerts/%s/resolve", url.PathEscape(alertID)))
}

// Ping checks service reachability via the health endpoint.
func (c *client) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/healthz", nil)
	if err != nil {
		return false
	}
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.cfg.URL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("data service returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("data service returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *client) applyAuth(req *http.Request) {
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
}
