// Package reconcile merges the two asynchronous update sources, periodic
// full-snapshot fetches and incremental push events, into the grid store.
// It is the single writer of the store and is free of any I/O scheduling:
// timers and sockets live in the connection supervisor.
package reconcile

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridpulse/gridpulse-ui/internal/grid"
)

// PushEvent is one incremental message from the push channel.
// Either Voltage or Prediction may carry the measured/derived value;
// whichever is present is used. Events may additionally (or solely)
// carry an externally raised alert record.
type PushEvent struct {
	ProsumerID string    `json:"prosumer_id"`
	Voltage    *float64  `json:"voltage,omitempty"`
	Prediction *float64  `json:"prediction,omitempty"`
	PowerKw    *float64  `json:"power_kw,omitempty"`
	AlertType  string    `json:"alert_type,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Message    string    `json:"message,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`

	// Set by the receiver, not part of the wire format.
	Generation uint64    `json:"-"`
	ReceivedAt time.Time `json:"-"`
}

// AlertSink receives externally raised alert records extracted from push
// events. Implemented by the alerts manager.
type AlertSink interface {
	IngestExternal(targetID, alertType, severity, message string, value float64, at time.Time)
}

// Stats holds diagnostic drop counters for the status endpoint.
type Stats struct {
	DroppedMalformed  uint64 `json:"droppedMalformed"`
	DroppedStale      uint64 `json:"droppedStale"`
	DroppedSuperseded uint64 `json:"droppedSuperseded"`
	DroppedOutOfOrder uint64 `json:"droppedOutOfOrder"`
	AppliedReadings   uint64 `json:"appliedReadings"`
	AppliedSnapshots  uint64 `json:"appliedSnapshots"`
}

// Reconciler applies snapshots and incremental events to the store under
// the ordering rules: snapshots always establish a new authoritative
// generation; incremental events are ordered by their embedded timestamp
// and rejected when a fresher snapshot has superseded them.
type Reconciler struct {
	store  *grid.Store
	alerts AlertSink
	logger *slog.Logger

	mu            sync.Mutex
	snapshotTime  time.Time
	limitOverride *grid.LimitConfig

	droppedMalformed  atomic.Uint64
	droppedStale      atomic.Uint64
	droppedSuperseded atomic.Uint64
	droppedOutOfOrder atomic.Uint64
	appliedReadings   atomic.Uint64
	appliedSnapshots  atomic.Uint64
}

// New creates a Reconciler writing to store. alerts may be nil when no
// alert manager is attached (events' alert payloads are then ignored).
func New(store *grid.Store, alerts AlertSink, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:  store,
		alerts: alerts,
		logger: logger,
	}
}

// SetLimitOverride replaces the thresholds delivered with every following
// snapshot. The override must already be validated; a nil value restores
// snapshot-delivered limits.
func (r *Reconciler) SetLimitOverride(l *grid.LimitConfig) {
	r.mu.Lock()
	r.limitOverride = l
	r.mu.Unlock()
}

// ApplySnapshot installs a full topology snapshot. A snapshot with an
// invalid limit configuration is dropped so that classification never runs
// against undefined thresholds; the last-known-good topology stays in place.
func (r *Reconciler) ApplySnapshot(t *grid.Topology) {
	r.mu.Lock()
	if r.limitOverride != nil {
		t.Limits = *r.limitOverride
	}
	r.mu.Unlock()

	if err := t.Limits.Validate(); err != nil {
		r.droppedMalformed.Add(1)
		r.logger.Error("snapshot with invalid limit config dropped", "error", err)
		return
	}

	r.mu.Lock()
	r.snapshotTime = t.FetchedAt
	r.mu.Unlock()

	r.store.ReplaceSnapshot(t)
	r.appliedSnapshots.Add(1)
}

// ApplyEvent applies one incremental push event. Malformed payloads and
// events superseded by a fresher snapshot are dropped and counted; nothing
// is ever propagated to the caller as an error.
func (r *Reconciler) ApplyEvent(ev PushEvent) {
	if ev.AlertType != "" {
		r.forwardAlert(ev)
	}

	value := ev.Voltage
	if value == nil {
		value = ev.Prediction
	}

	if value == nil || ev.ProsumerID == "" {
		if ev.AlertType != "" {
			return // pure alert event, nothing more to apply
		}
		r.droppedMalformed.Add(1)
		r.logger.Warn("malformed push event dropped",
			"prosumer_id", ev.ProsumerID, "has_value", value != nil)
		return
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = ev.ReceivedAt
	}

	r.mu.Lock()
	snapTime := r.snapshotTime
	r.mu.Unlock()

	// Snapshot authority: an event that predates the authoritative
	// snapshot's server timestamp must not resurrect a superseded value.
	if !snapTime.IsZero() && ts.Before(snapTime) {
		r.droppedStale.Add(1)
		return
	}

	// Generation check: an event received under an older generation is only
	// accepted when its own timestamp is newer than the snapshot cutover.
	if ev.Generation < r.store.Generation() && !ts.After(snapTime) {
		r.droppedSuperseded.Add(1)
		return
	}

	if r.store.ApplyReading(ev.ProsumerID, *value, ev.PowerKw, ts) {
		r.appliedReadings.Add(1)
	} else {
		r.droppedOutOfOrder.Add(1)
	}
}

// forwardAlert hands an event's alert payload to the alert manager.
func (r *Reconciler) forwardAlert(ev PushEvent) {
	if r.alerts == nil {
		return
	}
	target := ev.TargetID
	if target == "" {
		target = ev.ProsumerID
	}
	if target == "" {
		r.droppedMalformed.Add(1)
		r.logger.Warn("alert event without target dropped", "alert_type", ev.AlertType)
		return
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = ev.ReceivedAt
	}
	var value float64
	if ev.Value != nil {
		value = *ev.Value
	}
	r.alerts.IngestExternal(target, ev.AlertType, ev.Severity, ev.Message, value, at)
}

// Stats returns a copy of the diagnostic counters.
func (r *Reconciler) Stats() Stats {
	return Stats{
		DroppedMalformed:  r.droppedMalformed.Load(),
		DroppedStale:      r.droppedStale.Load(),
		DroppedSuperseded: r.droppedSuperseded.Load(),
		DroppedOutOfOrder: r.droppedOutOfOrder.Load(),
		AppliedReadings:   r.appliedReadings.Load(),
		AppliedSnapshots:  r.appliedSnapshots.Load(),
	}
}
