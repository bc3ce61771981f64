package grid

import "time"

// Classify maps a voltage reading to a status tier.
//
// Rules:
//   - nil voltage or a reading older than maxAge → StatusUnknown
//   - strictly outside the closed interval [LowerLimit, UpperLimit] → StatusCritical
//   - strictly outside the closed interval [WarningLower, WarningUpper] → StatusWarning
//   - otherwise → StatusNormal
//
// Limit comparisons are inclusive on the safe side: a voltage exactly equal
// to UpperLimit is not critical. Pure function, no side effects.
func Classify(voltage *float64, limits LimitConfig, age, maxAge time.Duration) VoltageStatus {
	if voltage == nil {
		return StatusUnknown
	}
	if maxAge > 0 && age > maxAge {
		return StatusUnknown
	}

	v := *voltage
	switch {
	case v < limits.LowerLimit || v > limits.UpperLimit:
		return StatusCritical
	case v < limits.WarningLower || v > limits.WarningUpper:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// Violating reports whether a status represents a limit violation.
func Violating(s VoltageStatus) bool {
	return s == StatusWarning || s == StatusCritical
}
