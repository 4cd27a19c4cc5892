package shared

import (
	"fmt"
	"time"
)

// PeriodLabel derives the numbering period for a document date.
//
// Companies with fiscalStart == time.January reset sequences per calendar
// year and the label is the plain four-digit year. Any later pivot month
// produces a spanning fiscal label such as "25/26", where dates before the
// pivot belong to the previous fiscal year.
func PeriodLabel(date time.Time, fiscalStart time.Month) string {
	if fiscalStart <= time.January || fiscalStart > time.December {
		return fmt.Sprintf("%04d", date.Year())
	}
	startYear := date.Year()
	if date.Month() < fiscalStart {
		startYear--
	}
	return fmt.Sprintf("%02d/%02d", startYear%100, (startYear+1)%100)
}

// PeriodBounds returns the first and last instant of the fiscal year that
// contains the given date. Used by integrity scans to window queries.
func PeriodBounds(date time.Time, fiscalStart time.Month) (time.Time, time.Time) {
	if fiscalStart <= time.January || fiscalStart > time.December {
		from := time.Date(date.Year(), time.January, 1, 0, 0, 0, 0, date.Location())
		return from, from.AddDate(1, 0, 0).Add(-time.Nanosecond)
	}
	startYear := date.Year()
	if date.Month() < fiscalStart {
		startYear--
	}
	from := time.Date(startYear, fiscalStart, 1, 0, 0, 0, 0, date.Location())
	return from, from.AddDate(1, 0, 0).Add(-time.Nanosecond)
}
