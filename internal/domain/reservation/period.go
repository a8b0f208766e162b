package reservation

import (
	"fmt"
	"time"
)

// PeriodKey returns the report numbering period ("YYYY/MM") for the given
// time, applying the month grace period: during the first graceDays days of
// a month, numbering continues in the previous month. This keeps reports
// arriving just after month rollover in the period they belong to
// operationally.
//
// Example with graceDays=3: Dec 1st-3rd still number under "2025/11";
// Dec 4th onwards under "2025/12".
func PeriodKey(now time.Time, graceDays int) string {
	year, month := now.Year(), int(now.Month())

	if graceDays > 0 && now.Day() <= graceDays {
		if month == 1 {
			year--
			month = 12
		} else {
			month--
		}
	}

	return fmt.Sprintf("%d/%02d", year, month)
}

// PeriodPrefix returns the period key with the trailing separator, suitable
// for report-number prefix matching ("YYYY/MM/").
func PeriodPrefix(now time.Time, graceDays int) string {
	return PeriodKey(now, graceDays) + "/"
}

// FormatNumber builds a report number from a period prefix and a
// sequence-within-month value, zero-padded to three digits.
func FormatNumber(periodPrefix string, seq int) string {
	return fmt.Sprintf("%s%03d", periodPrefix, seq)
}
