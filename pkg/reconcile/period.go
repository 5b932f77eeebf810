package reconcile

import "time"

const fallbackPeriodDays = 30

// ComputePeriod computes the billing period [start, end) from an anchor
// timestamp (unix seconds) and a recurring interval. Pure and deterministic
// given identical inputs, which keeps replayed events converging on the same
// row.
//
// When the anchor is absent or invalid (<= 0), the period falls back to
// [fallbackAnchor, fallbackAnchor+30d). Callers anchor the fallback on the
// event's own timestamp so delayed delivery does not stretch the period; the
// next webhook with a real anchor corrects it regardless.
//
// Month and year arithmetic preserves day-of-month with month-overflow
// clamping: Jan 31 + 1 month is the last day of February, not March 2.
func ComputePeriod(anchorUnix int64, interval Interval, count int64, fallbackAnchor time.Time) (start, end time.Time) {
	if anchorUnix <= 0 {
		start = fallbackAnchor.UTC()
		return start, start.AddDate(0, 0, fallbackPeriodDays)
	}
	if count <= 0 {
		count = 1
	}

	start = time.Unix(anchorUnix, 0).UTC()
	switch interval {
	case IntervalDay:
		end = start.AddDate(0, 0, int(count))
	case IntervalWeek:
		end = start.AddDate(0, 0, int(count)*7)
	case IntervalYear:
		end = addMonthsClamped(start, int(count)*12)
	default:
		// Month is the provider's default recurrence.
		end = addMonthsClamped(start, int(count))
	}
	return start, end
}

// addMonthsClamped adds calendar months, clipping the day-of-month to the
// last day of the target month. time.AddDate would normalize Jan 31 + 1
// month to Mar 2/3 instead.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())

	// day=0 of month+1 is the last day of month.
	lastDay := time.Date(target.Year(), target.Month()+1, 0, 0, 0, 0, 0, target.Location()).Day()
	if day > lastDay {
		day = lastDay
	}

	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
