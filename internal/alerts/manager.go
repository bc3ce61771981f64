package alerts

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridpulse/gridpulse-ui/internal/grid"
)

// TypeVoltage is the alert type used for limit-violation alerts, both
// synthesized locally and delivered by the alert service.
const TypeVoltage = "voltage"

// maxHistory bounds the retained resolved-alert history.
const maxHistory = 1000

// LimitProvider returns the currently authoritative limit configuration.
// Used to fill ThresholdValue on synthesized alerts.
type LimitProvider func() (grid.LimitConfig, bool)

// Manager owns the alert lifecycle state machine:
// NONE → RAISED → ACKNOWLEDGED → RESOLVED, with a direct RAISED → RESOLVED
// path. Acknowledge and Resolve are idempotent.
type Manager struct {
	mu      sync.Mutex
	active  map[identity]*Alert
	history []*Alert // resolved alerts, oldest first

	limits LimitProvider
	logger *slog.Logger
	now    func() time.Time
}

var _ grid.TransitionListener = (*Manager)(nil)

// NewManager creates an empty alert manager.
func NewManager(limits LimitProvider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		active: make(map[identity]*Alert),
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the manager's clock. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// StatusTransition implements grid.TransitionListener. Entering a violating
// state from a non-violating one synthesizes an alert (deduplicated against
// any already-raised alert for the same identity), so the dashboard never
// silently reaches a violating state before the alert service reports it.
// Returning to normal auto-resolves the voltage alert for that target.
func (m *Manager) StatusTransition(node grid.NodeView, from, to grid.VoltageStatus, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := identity{TargetID: node.ID, Type: TypeVoltage}

	if grid.Violating(to) {
		severity := SeverityWarning
		if to == grid.StatusCritical {
			severity = SeverityCritical
		}

		if existing, ok := m.active[id]; ok {
			// Escalation or de-escalation within a violation: keep identity
			// and RaisedAt, refresh severity and value.
			existing.Severity = severity
			if node.Voltage != nil {
				existing.CurrentValue = *node.Voltage
			}
			return
		}

		if !grid.Violating(from) {
			m.raiseSynthesizedLocked(node, severity, at)
		}
		return
	}

	if to == grid.StatusNormal {
		if existing, ok := m.active[id]; ok {
			m.resolveLocked(existing, ResolutionAuto, at)
		}
	}
}

// raiseSynthesizedLocked creates a local placeholder alert for a violation.
func (m *Manager) raiseSynthesizedLocked(node grid.NodeView, severity Severity, at time.Time) {
	var value float64
	if node.Voltage != nil {
		value = *node.Voltage
	}

	a := &Alert{
		ID:           uuid.NewString(),
		RaisedAt:     at,
		Type:         TypeVoltage,
		Severity:     severity,
		TargetID:     node.ID,
		Message:      fmt.Sprintf("voltage %.1fV outside limits at %s", value, node.Name),
		CurrentValue: value,
		Source:       SourceSynthesized,
	}
	if m.limits != nil {
		if limits, ok := m.limits(); ok {
			a.ThresholdValue = thresholdFor(value, limits)
		}
	}

	m.active[identity{TargetID: node.ID, Type: TypeVoltage}] = a
	m.logger.Info("alert raised",
		"target", node.ID, "type", TypeVoltage, "severity", severity, "source", a.Source)
}

// thresholdFor picks the limit the value violated (or approached).
func thresholdFor(value float64, limits grid.LimitConfig) float64 {
	switch {
	case value > limits.UpperLimit:
		return limits.UpperLimit
	case value < limits.LowerLimit:
		return limits.LowerLimit
	case value > limits.WarningUpper:
		return limits.WarningUpper
	case value < limits.WarningLower:
		return limits.WarningLower
	default:
		return limits.Nominal
	}
}

// IngestExternal implements reconcile.AlertSink: an alert record carried by
// a push event. Matching an already-active identity merges: the earliest
// RaisedAt wins, and the external message takes precedence over a
// synthesized placeholder.
func (m *Manager) IngestExternal(targetID, alertType, severity, message string, value float64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeExternalLocked("", targetID, alertType, ParseSeverity(severity), message, value, 0, at, false)
}

// IngestRecord reconciles one alert record fetched from the alert service.
// A resolved record resolves the matching local alert (ResolutionExternal).
func (m *Manager) IngestRecord(rec Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ResolvedAt != nil {
		if existing, ok := m.active[identity{TargetID: rec.TargetID, Type: rec.Type}]; ok {
			m.resolveLocked(existing, ResolutionExternal, *rec.ResolvedAt)
		}
		return
	}
	m.mergeExternalLocked(rec.ID, rec.TargetID, rec.Type, rec.Severity, rec.Message,
		rec.CurrentValue, rec.ThresholdValue, rec.RaisedAt, rec.Acknowledged)
}

func (m *Manager) mergeExternalLocked(serverID, targetID, alertType string, severity Severity,
	message string, value, threshold float64, raisedAt time.Time, acknowledged bool) {

	id := identity{TargetID: targetID, Type: alertType}
	if existing, ok := m.active[id]; ok {
		if !raisedAt.IsZero() && raisedAt.Before(existing.RaisedAt) {
			existing.RaisedAt = raisedAt
		}
		if message != "" {
			existing.Message = message
		}
		if serverID != "" {
			existing.ID = serverID
		}
		// Severity escalates but never de-escalates while the alert is active.
		if severity.rank() > existing.Severity.rank() {
			existing.Severity = severity
		}
		if value != 0 {
			existing.CurrentValue = value
		}
		if threshold != 0 {
			existing.ThresholdValue = threshold
		}
		if acknowledged {
			existing.Acknowledged = true
		}
		existing.Source = SourceExternal
		return
	}

	if raisedAt.IsZero() {
		raisedAt = m.now()
	}
	a := &Alert{
		ID:             serverID,
		RaisedAt:       raisedAt,
		Type:           alertType,
		Severity:       severity,
		TargetID:       targetID,
		Message:        message,
		CurrentValue:   value,
		ThresholdValue: threshold,
		Acknowledged:   acknowledged,
		Source:         SourceExternal,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.active[id] = a
	m.logger.Info("alert raised",
		"target", targetID, "type", alertType, "severity", severity, "source", a.Source)
}

// Acknowledge marks an alert acknowledged by alert ID. Acknowledging an
// already-acknowledged or resolved alert is a no-op. Returns false when no
// alert with that ID exists.
func (m *Manager) Acknowledge(alertID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.findLocked(alertID)
	if a == nil {
		return false
	}
	if !a.Acknowledged && a.Active() {
		a.Acknowledged = true
		m.logger.Info("alert acknowledged", "id", alertID, "target", a.TargetID)
	}
	return true
}

// Resolve resolves an alert by alert ID with ResolutionManual. Resolving an
// already-resolved alert is a no-op. Returns false when no alert with that
// ID exists.
func (m *Manager) Resolve(alertID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.findLocked(alertID)
	if a == nil {
		return false
	}
	if a.Active() {
		m.resolveLocked(a, ResolutionManual, m.now())
	}
	return true
}

// resolveLocked moves an alert to its terminal state and into history.
func (m *Manager) resolveLocked(a *Alert, res Resolution, at time.Time) {
	resolvedAt := at
	a.ResolvedAt = &resolvedAt
	a.Resolution = res
	delete(m.active, identity{TargetID: a.TargetID, Type: a.Type})

	m.history = append(m.history, a)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.logger.Info("alert resolved",
		"id", a.ID, "target", a.TargetID, "resolution", res)
}

func (m *Manager) findLocked(alertID string) *Alert {
	for _, a := range m.active {
		if a.ID == alertID {
			return a
		}
	}
	for _, a := range m.history {
		if a.ID == alertID {
			return a
		}
	}
	return nil
}

// ActiveCount returns the number of unresolved alerts.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// CountsBySeverity returns active alert counts per severity.
func (m *Manager) CountsBySeverity() map[Severity]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[Severity]int, 3)
	for _, a := range m.active {
		counts[a.Severity]++
	}
	return counts
}

// List returns alerts newest-first (active first, then resolved history),
// limited to limit entries when limit > 0. Returned values are copies.
func (m *Manager) List(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, 0, len(m.active)+len(m.history))
	for _, a := range m.active {
		out = append(out, *a)
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		out = append(out, *m.history[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RaisedAt.After(out[j].RaisedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Timeline returns ordered buckets over the trailing window. Bucket
// boundaries are aligned to wall-clock multiples of bucketWidth, not to the
// first event. Each bucket carries per-severity counts and the sorted set
// of affected target ids for alerts raised within it.
func (m *Manager) Timeline(bucketWidth, window time.Duration) []TimelineBucket {
	if bucketWidth <= 0 || window <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.now()
	start := end.Add(-window).Truncate(bucketWidth)
	n := int(end.Sub(start)/bucketWidth) + 1

	buckets := make([]TimelineBucket, n)
	targets := make([]map[string]bool, n)
	for i := range buckets {
		buckets[i] = TimelineBucket{
			Start:  start.Add(time.Duration(i) * bucketWidth),
			Counts: make(map[Severity]int),
		}
		targets[i] = make(map[string]bool)
	}

	add := func(a *Alert) {
		if a.RaisedAt.Before(start) || a.RaisedAt.After(end) {
			return
		}
		i := int(a.RaisedAt.Sub(start) / bucketWidth)
		if i < 0 || i >= n {
			return
		}
		buckets[i].Counts[a.Severity]++
		buckets[i].Total++
		targets[i][a.TargetID] = true
	}

	for _, a := range m.active {
		add(a)
	}
	for _, a := range m.history {
		add(a)
	}

	for i := range buckets {
		ids := make([]string, 0, len(targets[i]))
		for id := range targets[i] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		buckets[i].Targets = ids
	}
	return buckets
}
