package checkin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateNoCheckInYetIsHealthy(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	res := Evaluate(time.Time{}, 30*day, now, DefaultThresholds())
	require.Equal(t, StatusHealthy, res.Status)
}

func TestEvaluateFarFromDeadlineIsHealthy(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	last := now.Add(-1 * day)
	res := Evaluate(last, 30*day, now, DefaultThresholds())
	require.Equal(t, StatusHealthy, res.Status)
	require.Equal(t, 29, res.DaysRemaining)
}

func TestEvaluateWithinWarningWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	last := now.Add(-24 * day)
	res := Evaluate(last, 30*day, now, DefaultThresholds())
	require.Equal(t, StatusWarning, res.Status)
	require.Equal(t, 6, res.DaysRemaining)
}

func TestEvaluateWithinCriticalWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	last := now.Add(-29 * day)
	res := Evaluate(last, 30*day, now, DefaultThresholds())
	require.Equal(t, StatusCritical, res.Status)
	require.Equal(t, 1, res.DaysRemaining)
}

func TestEvaluatePastDeadlineIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	last := now.Add(-31 * day)
	res := Evaluate(last, 30*day, now, DefaultThresholds())
	require.Equal(t, StatusExpired, res.Status)
	require.LessOrEqual(t, res.DaysRemaining, 0)
}

func TestEvaluateBoundaryAtExactWarningThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// deadline is exactly 7 days out -> warning, not healthy.
	last := now.Add(-23 * day)
	res := Evaluate(last, 30*day, now, DefaultThresholds())
	require.Equal(t, StatusWarning, res.Status)
	require.Equal(t, 7, res.DaysRemaining)
}

func TestEvaluateCustomThresholds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	last := now.Add(-5 * day)
	th := Thresholds{WarningDays: 3, CriticalDays: 1}
	res := Evaluate(last, 10*day, now, th)
	require.Equal(t, StatusHealthy, res.Status)
}

func TestStatusStringCoversAllStates(t *testing.T) {
	require.Equal(t, "healthy", StatusHealthy.String())
	require.Equal(t, "warning", StatusWarning.String())
	require.Equal(t, "critical", StatusCritical.String())
	require.Equal(t, "expired", StatusExpired.String())
}
