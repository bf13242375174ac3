// Package timeframe handles date range validation and SQLite time bucketing
// for the funnel timeline queries.
package timeframe

import (
	"fmt"
	"time"
)

// Granularity is the bucket size for time series queries.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity validates a granularity string from a query parameter.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return Granularity(s), nil
	case "":
		return GranularityDay, nil
	default:
		return "", fmt.Errorf("unknown granularity: %s", s)
	}
}

// Range represents an inclusive period between two points in time.
type Range struct {
	From        time.Time
	To          time.Time
	Granularity Granularity
}

// NewRange builds a validated range. Both endpoints are inclusive.
func NewRange(from, to time.Time, g Granularity) (*Range, error) {
	if from.After(to) {
		return nil, fmt.Errorf("fromDate must be before toDate")
	}
	return &Range{From: from, To: to, Granularity: g}, nil
}

// ParseRange parses from/to query parameters (YYYY-MM-DD) into a Range.
// The to date is extended to the end of its day so the range is inclusive.
func ParseRange(fromStr, toStr, granularityStr string) (*Range, error) {
	g, err := ParseGranularity(granularityStr)
	if err != nil {
		return nil, err
	}

	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return nil, fmt.Errorf("invalid fromDate: %s", fromStr)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return nil, fmt.Errorf("invalid toDate: %s", toStr)
	}

	to = to.Add(24*time.Hour - time.Second)
	return NewRange(from.UTC(), to.UTC(), g)
}

// GroupByExpression returns the SQLite expression that maps occurred_at
// to a bucket label for this range's granularity.
func (r *Range) GroupByExpression() (string, error) {
	switch r.Granularity {
	case GranularityDay:
		// YYYY-MM-DD
		return "strftime('%Y-%m-%d', occurred_at)", nil
	case GranularityWeek:
		// Monday of the ISO week, YYYY-MM-DD
		return "date(occurred_at, 'start of day', '-' || ((strftime('%w', occurred_at) + 6) % 7) || ' days')", nil
	case GranularityMonth:
		// YYYY-MM
		return "strftime('%Y-%m', occurred_at)", nil
	default:
		return "", fmt.Errorf("unsupported granularity: %v", r.Granularity)
	}
}

// BucketLabel formats a time the same way GroupByExpression does, so Go-side
// code can compare against bucket labels returned from SQL.
func (r *Range) BucketLabel(t time.Time) string {
	utc := t.UTC()
	switch r.Granularity {
	case GranularityWeek:
		weekday := int(utc.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		monday := utc.AddDate(0, 0, -(weekday - 1))
		return monday.Format("2006-01-02")
	case GranularityMonth:
		return utc.Format("2006-01")
	default:
		return utc.Format("2006-01-02")
	}
}

// Duration returns the span of the range.
func (r *Range) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// Validate re-checks the range invariant.
func (r *Range) Validate() error {
	if r.From.After(r.To) {
		return fmt.Errorf("fromDate must be before toDate")
	}
	return nil
}
