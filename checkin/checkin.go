// Package checkin implements the pure health-status state machine for
// dead-man-switch vaults (spec.md §4.K). It holds no clock or storage
// dependency of its own; callers pass "now" explicitly so the transition
// logic stays trivially testable, the same way timelock's BIP-68
// encoder takes its inputs as plain values rather than reading a clock.
package checkin

import "time"

// Status is the health state of a dead-man-switch vault relative to its
// refresh interval.
type Status int

const (
	StatusHealthy Status = iota
	StatusWarning
	StatusCritical
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// DefaultWarningDays and DefaultCriticalDays are spec.md §4.K's defaults.
const (
	DefaultWarningDays  = 7
	DefaultCriticalDays = 2
)

const day = 24 * time.Hour

// Thresholds configures the day-count boundaries between states.
type Thresholds struct {
	WarningDays  int
	CriticalDays int
}

// DefaultThresholds returns spec.md §4.K's default boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{WarningDays: DefaultWarningDays, CriticalDays: DefaultCriticalDays}
}

// Result is the evaluated status plus the day-count it was derived from,
// for display purposes.
type Result struct {
	Status        Status
	DaysRemaining int
}

// Evaluate computes the health status of a dead-man-switch vault.
// lastCheckIn is the zero time when no check-in has ever been recorded,
// in which case the vault is always healthy regardless of interval
// (spec.md §4.K: "No check-in recorded yet ⇒ healthy").
func Evaluate(lastCheckIn time.Time, interval time.Duration, now time.Time, th Thresholds) Result {
	if lastCheckIn.IsZero() {
		return Result{Status: StatusHealthy, DaysRemaining: daysFromDuration(interval)}
	}

	deadline := lastCheckIn.Add(interval)
	remaining := deadline.Sub(now)
	daysRemaining := ceilDays(remaining)

	switch {
	case daysRemaining <= 0:
		return Result{Status: StatusExpired, DaysRemaining: daysRemaining}
	case daysRemaining <= th.CriticalDays:
		return Result{Status: StatusCritical, DaysRemaining: daysRemaining}
	case daysRemaining <= th.WarningDays:
		return Result{Status: StatusWarning, DaysRemaining: daysRemaining}
	default:
		return Result{Status: StatusHealthy, DaysRemaining: daysRemaining}
	}
}

func ceilDays(d time.Duration) int {
	if d <= 0 {
		return int(d / day)
	}
	whole := int(d / day)
	if d%day != 0 {
		whole++
	}
	return whole
}

func daysFromDuration(d time.Duration) int {
	return int(d / day)
}
