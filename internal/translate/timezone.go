package translate

import "time"

// localMidnightPlusSeconds returns the UTC instant for "date, tagged as loc,
// shifted forward by seconds seconds". date's time-of-day component is
// ignored.
func localMidnightPlusSeconds(date time.Time, seconds int, loc *time.Location) time.Time {
	local := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	return local.Add(time.Duration(seconds) * time.Second).UTC()
}

// secondsFromLocalMidnight converts a UTC instant to the local timezone and
// returns the number of seconds elapsed since local midnight on that date.
func secondsFromLocalMidnight(instant time.Time, loc *time.Location) int {
	local := instant.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return int(local.Sub(midnight).Seconds())
}

// dateOnly returns the Y-M-D of t with all other fields zeroed, in UTC.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

const informDateLayout = "2006-01-02"

// parseInformDate parses an upstream "seriesStartDate"/"seriesEndDate"
// calendar-date string (YYYY-MM-DD, no time component).
func parseInformDate(s string) (time.Time, error) {
	return time.Parse(informDateLayout, s)
}

// formatInformDateTime formats a UTC instant the way the upstream requires:
// no fractional seconds, "Z" suffix, never "+00:00". The upstream rejects
// offset notation and microseconds.
func formatInformDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// parseInformDateTime parses an upstream startDateTime/endDateTime value.
func parseInformDateTime(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05Z", s)
}
