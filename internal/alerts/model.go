// Package alerts implements the alert lifecycle: raise, acknowledge,
// resolve, with deduplication by (target, type) identity and merging of
// locally synthesized and externally delivered records.
package alerts

import (
	"strings"
	"time"
)

// Severity ranks an alert. Unrecognized severity strings from external
// sources default to SeverityWarning rather than rejecting the record.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ParseSeverity maps a wire severity string to a Severity.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical
	case "warning":
		return SeverityWarning
	case "info":
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// rank orders severities for escalation comparisons.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Resolution records how an alert reached its terminal state,
// distinguishable for audit purposes.
type Resolution string

const (
	ResolutionAuto     Resolution = "auto"     // underlying condition cleared
	ResolutionManual   Resolution = "manual"   // explicit operator action
	ResolutionExternal Resolution = "external" // resolved upstream by the alert service
)

// Source records where an alert originated.
type Source string

const (
	SourceSynthesized Source = "synthesized" // raised locally from a status transition
	SourceExternal    Source = "external"    // delivered by the alert service
)

// Alert is a single alert record. Identity for deduplication is
// (TargetID, Type): a new record matching an unresolved alert with the
// same identity merges into it instead of raising a duplicate.
type Alert struct {
	ID             string     `json:"id"`
	RaisedAt       time.Time  `json:"raisedAt"`
	Type           string     `json:"type"`
	Severity       Severity   `json:"severity"`
	TargetID       string     `json:"targetId"`
	Message        string     `json:"message"`
	CurrentValue   float64    `json:"currentValue"`
	ThresholdValue float64    `json:"thresholdValue"`
	Acknowledged   bool       `json:"acknowledged"`
	ResolvedAt     *time.Time `json:"resolvedAt"`
	Resolution     Resolution `json:"resolution,omitempty"`
	Source         Source     `json:"source"`
}

// Active reports whether the alert has not reached its terminal state.
func (a *Alert) Active() bool {
	return a.ResolvedAt == nil
}

// identity is the deduplication key.
type identity struct {
	TargetID string
	Type     string
}

// TimelineBucket is one wall-clock-aligned bucket of the alert timeline.
type TimelineBucket struct {
	Start   time.Time        `json:"start"`
	Counts  map[Severity]int `json:"counts"`
	Targets []string         `json:"targets"`
	Total   int              `json:"total"`
}
