package insights

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Yesterday returns yesterday's date at the given offset, the default day
// for a scheduled run.
func Yesterday(loc *time.Location) string {
	return time.Now().In(loc).AddDate(0, 0, -1).Format(dateLayout)
}

// DateRange expands an inclusive start..end range into one date per day.
func DateRange(start, end string, loc *time.Location) ([]string, error) {
	from, err := time.ParseInLocation(dateLayout, start, loc)
	if err != nil {
		return nil, fmt.Errorf("DateRange: invalid start date %q: %w", start, err)
	}
	to, err := time.ParseInLocation(dateLayout, end, loc)
	if err != nil {
		return nil, fmt.Errorf("DateRange: invalid end date %q: %w", end, err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("DateRange: end date %s before start date %s", end, start)
	}

	var out []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(dateLayout))
	}
	return out, nil
}
