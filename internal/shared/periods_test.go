package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodLabelCalendarYear(t *testing.T) {
	d := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "2025", PeriodLabel(d, time.January))
}

func TestPeriodLabelFiscalSpan(t *testing.T) {
	april := time.April

	before := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "24/25", PeriodLabel(before, april))

	after := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "25/26", PeriodLabel(after, april))
}

func TestPeriodBounds(t *testing.T) {
	d := time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC)
	from, to := PeriodBounds(d, time.April)
	require.Equal(t, 2024, from.Year())
	require.Equal(t, time.April, from.Month())
	require.True(t, to.After(d))
	require.Equal(t, time.March, to.Month())
}
