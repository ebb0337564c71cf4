package attendance

import (
	"fmt"
	"time"
)

// dayFormat is the calendar day key format used across storage and reports.
const dayFormat = "2006-01-02"

// DayClock computes the calendar day of a timestamp under a single fixed
// zone. The zone is configured once per deployment, so two racing scans
// always agree on the day key, including across DST transitions.
type DayClock struct {
	loc *time.Location
}

// NewDayClock creates a day clock for the given IANA timezone name.
// An empty name or "Local" uses the serving machine's zone.
func NewDayClock(timezone string) (*DayClock, error) {
	if timezone == "" || timezone == "Local" {
		return &DayClock{loc: time.Local}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	return &DayClock{loc: loc}, nil
}

// Day returns the calendar day key (YYYY-MM-DD) for a timestamp.
func (c *DayClock) Day(t time.Time) string {
	return t.In(c.loc).Format(dayFormat)
}

// Today returns the current calendar day key.
func (c *DayClock) Today() string {
	return c.Day(time.Now())
}

// Location returns the configured zone.
func (c *DayClock) Location() *time.Location {
	return c.loc
}
