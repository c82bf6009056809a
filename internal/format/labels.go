package format

import (
	"fmt"
	"time"
)

var monthsShort = [12]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}

// Weekdays are the chart labels indexed by time.Weekday.
var Weekdays = [7]string{"dom.", "seg.", "ter.", "qua.", "qui.", "sex.", "sáb."}

// MonthYear labels a calendar month, e.g. "mar 2024".
func MonthYear(t time.Time) string {
	return fmt.Sprintf("%s %d", monthsShort[t.Month()-1], t.Year())
}

// DayMonth labels a day, e.g. "05 mar".
func DayMonth(t time.Time) string {
	return fmt.Sprintf("%02d %s", t.Day(), monthsShort[t.Month()-1])
}

// Week labels an ISO week number.
func Week(n int) string {
	return fmt.Sprintf("Sem. %d", n)
}

// Hour labels the start of an hour range, e.g. "9h".
func Hour(h int) string {
	return fmt.Sprintf("%dh", h)
}
