package domain

import "fmt"

// Banding maps a numeric risk score to an overall severity. Thresholds
// are configuration, not hidden behavior: a score at or above High is
// High, at or above Medium is Medium, anything below is Low.
type Banding struct {
	High   int
	Medium int
}

// DefaultBanding is the product default: High >= 70, Medium >= 40.
var DefaultBanding = Banding{High: 70, Medium: 40}

// Validate checks that the thresholds are monotonic and inside the
// score range, so the banding is total over [0,100].
func (b Banding) Validate() error {
	if b.Medium <= 0 || b.High > 100 {
		return fmt.Errorf("banding thresholds must lie in (0,100], got medium=%d high=%d", b.Medium, b.High)
	}
	if b.Medium >= b.High {
		return fmt.Errorf("banding thresholds must be monotonic: medium=%d must be below high=%d", b.Medium, b.High)
	}
	return nil
}

// Severity bands a risk score.
func (b Banding) Severity(score int) Severity {
	switch {
	case score >= b.High:
		return SeverityHigh
	case score >= b.Medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
