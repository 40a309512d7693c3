package flights

import "time"

const (
	dateLayout = "2006-01-02"

	isoLayout        = "2006-01-02T15:04:05.000Z"
	keyDateLayout    = "01/02/2006 3:04:05 PM"
	chargeDateLayout = "2Jan2006 Mon"
	clockLayout      = "15:04"
)

// isoTime renders t in UTC with millisecond precision.
func isoTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// at returns the given wall clock time, days after the calendar day of t.
func at(t time.Time, days, hour, min, sec int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+days, hour, min, sec, 0, t.Location())
}
