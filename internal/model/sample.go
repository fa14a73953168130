// Package model holds the domain types shared across the matchup pipeline:
// field samples, normalized satellite acquisitions, and the persisted catalog.
package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for field sample dates.
const DateLayout = "2006-01-02"

// FieldSample is one ground-truth water-quality measurement site/date.
// Immutable once parsed from the input table.
type FieldSample struct {
	Date      time.Time `json:"date"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// Key returns the sample identity: date plus coordinates rounded to four
// decimal places (~11 m), matching the input-table precision.
func (s FieldSample) Key() string {
	return fmt.Sprintf("%s|%.4f|%.4f", s.Date.Format(DateLayout), s.Latitude, s.Longitude)
}

// Window returns the inclusive temporal search window [date-delta, date+delta]
// in whole days around the sample date. The end bound extends to the last
// instant of the final day so that acquisitions on the boundary date match.
func (s FieldSample) Window(deltaDays int) (time.Time, time.Time) {
	day := s.Date.Truncate(24 * time.Hour)
	start := day.AddDate(0, 0, -deltaDays)
	end := day.AddDate(0, 0, deltaDays+1).Add(-time.Nanosecond)
	return start, end
}
