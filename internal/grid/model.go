// Package grid holds the authoritative in-memory model of the low-voltage
// distribution network: the transformer, its three phases, and the metered
// connection points (prosumers) attached to each phase.
package grid

import (
	"fmt"
	"time"
)

// Phase identifies one of the three electrical phases.
type Phase string

const (
	PhaseA Phase = "A"
	PhaseB Phase = "B"
	PhaseC Phase = "C"
)

// Phases lists all phases in their fixed display order.
var Phases = []Phase{PhaseA, PhaseB, PhaseC}

// VoltageStatus classifies a prosumer's voltage against regulatory limits.
type VoltageStatus string

const (
	StatusNormal   VoltageStatus = "normal"
	StatusWarning  VoltageStatus = "warning"
	StatusCritical VoltageStatus = "critical"
	StatusUnknown  VoltageStatus = "unknown"
)

// LimitConfig holds the tiered voltage thresholds for classification.
// All values are in volts.
type LimitConfig struct {
	Nominal      float64 `json:"nominal" yaml:"nominal"`
	UpperLimit   float64 `json:"upperLimit" yaml:"upperLimit"`
	LowerLimit   float64 `json:"lowerLimit" yaml:"lowerLimit"`
	WarningUpper float64 `json:"warningUpper" yaml:"warningUpper"`
	WarningLower float64 `json:"warningLower" yaml:"warningLower"`
}

// Validate checks the threshold ordering invariant:
// lowerLimit < warningLower < nominal < warningUpper < upperLimit.
// A violated ordering would make classification undefined, so this is
// treated as a fatal misconfiguration by callers.
func (l LimitConfig) Validate() error {
	if !(l.LowerLimit < l.WarningLower &&
		l.WarningLower < l.Nominal &&
		l.Nominal < l.WarningUpper &&
		l.WarningUpper < l.UpperLimit) {
		return fmt.Errorf("limit ordering must satisfy lowerLimit < warningLower < nominal < warningUpper < upperLimit (got %.1f/%.1f/%.1f/%.1f/%.1f)",
			l.LowerLimit, l.WarningLower, l.Nominal, l.WarningUpper, l.UpperLimit)
	}
	return nil
}

// ProsumerNode is a metered connection point on a phase feeder.
// Status is never stored from an update event: it is always derived from
// (voltage, limits, staleness) via Classify.
type ProsumerNode struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Phase             Phase     `json:"phase"`
	ChainPosition     int       `json:"chainPosition"` // 1 = nearest the transformer
	HasSolar          bool      `json:"hasSolar"`
	HasEV             bool      `json:"hasEV"`
	HasBattery        bool      `json:"hasBattery"`
	ActivePowerKw     float64   `json:"activePowerKw"`
	ReactivePowerKvar float64   `json:"reactivePowerKvar"`
	Voltage           *float64  `json:"voltage"` // nil until a reading arrives
	LastUpdatedAt     time.Time `json:"lastUpdatedAt"`
}

// Transformer describes the distribution transformer feeding the network.
type Transformer struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	CapacityKva      float64 `json:"capacityKva"`
	PrimaryVoltage   float64 `json:"primaryVoltage"`
	SecondaryVoltage float64 `json:"secondaryVoltage"`
}

// PhaseGroup owns the ordered membership list of one phase.
// Prosumers are ordered by ascending ChainPosition.
type PhaseGroup struct {
	Phase     Phase           `json:"phase"`
	Prosumers []*ProsumerNode `json:"prosumers"`
}

// Topology is one complete, self-consistent network snapshot.
// It is created per full-snapshot fetch and replaced wholesale; structural
// changes (prosumers added or removed) are only picked up on refresh.
type Topology struct {
	Transformer Transformer   `json:"transformer"`
	Phases      []*PhaseGroup `json:"phases"`
	Limits      LimitConfig   `json:"limits"`
	FetchedAt   time.Time     `json:"fetchedAt"` // server timestamp embedded in the snapshot
}

// NodeView is a read-only prosumer projection with derived status attached.
type NodeView struct {
	ProsumerNode
	Status VoltageStatus `json:"status"`
}

// PhaseView is a read-only phase projection.
type PhaseView struct {
	Phase     Phase      `json:"phase"`
	Prosumers []NodeView `json:"prosumers"`
}

// Snapshot is a deep-copied read-only view of the store, safe to hold
// across asynchronous boundaries.
type Snapshot struct {
	Transformer Transformer `json:"transformer"`
	Phases      []PhaseView `json:"phases"`
	Limits      LimitConfig `json:"limits"`
	Generation  uint64      `json:"generation"`
	FetchedAt   time.Time   `json:"fetchedAt"`
	TakenAt     time.Time   `json:"takenAt"`
}

// Node returns the node view with the given id, or false if absent.
func (s *Snapshot) Node(id string) (NodeView, bool) {
	for _, pg := range s.Phases {
		for _, n := range pg.Prosumers {
			if n.ID == id {
				return n, true
			}
		}
	}
	return NodeView{}, false
}
