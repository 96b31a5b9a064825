package common

import "time"

// AddMonths offsets a date by whole calendar months, with Go's
// normalization (Jan 31 + 1 month = Mar 2/3). Matches how billing
// anniversaries drift instead of erroring on short months.
func AddMonths(t time.Time, months int) time.Time {
	return t.AddDate(0, months, 0)
}

// MonthsBetween is a pure calendar-month subtraction: days of month
// are ignored, so Jan 31 -> Feb 1 is one month.
func MonthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

func GetDate() string {
	return GetDateFromTime(time.Now().UTC())
}

func GetDateFromTime(t time.Time) string {
	return t.Format("2006-01-02")
}
