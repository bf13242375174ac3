package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devrelay/internal/timeframe"
)

func TestParseGranularity(t *testing.T) {
	t.Run("accepts day, week, month", func(t *testing.T) {
		for _, s := range []string{"day", "week", "month"} {
			g, err := timeframe.ParseGranularity(s)
			require.NoError(t, err)
			assert.Equal(t, timeframe.Granularity(s), g)
		}
	})

	t.Run("defaults to day when empty", func(t *testing.T) {
		g, err := timeframe.ParseGranularity("")
		require.NoError(t, err)
		assert.Equal(t, timeframe.GranularityDay, g)
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		_, err := timeframe.ParseGranularity("hour")
		assert.Error(t, err)
	})
}

func TestParseRange(t *testing.T) {
	t.Run("valid range is inclusive of the to date", func(t *testing.T) {
		r, err := timeframe.ParseRange("2026-01-01", "2026-01-31", "day")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), r.From)
		assert.Equal(t, time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC), r.To)
	})

	t.Run("rejects from after to", func(t *testing.T) {
		_, err := timeframe.ParseRange("2026-02-01", "2026-01-01", "day")
		assert.Error(t, err)
	})

	t.Run("same day is valid", func(t *testing.T) {
		r, err := timeframe.ParseRange("2026-01-15", "2026-01-15", "day")
		require.NoError(t, err)
		assert.NoError(t, r.Validate())
	})

	t.Run("rejects malformed dates", func(t *testing.T) {
		_, err := timeframe.ParseRange("not-a-date", "2026-01-01", "day")
		assert.Error(t, err)
		_, err = timeframe.ParseRange("2026-01-01", "31/01/2026", "day")
		assert.Error(t, err)
	})
}

func TestBucketLabel(t *testing.T) {
	ts := time.Date(2026, 3, 12, 14, 30, 0, 0, time.UTC) // a Thursday

	t.Run("day", func(t *testing.T) {
		r, _ := timeframe.NewRange(ts.AddDate(0, 0, -7), ts, timeframe.GranularityDay)
		assert.Equal(t, "2026-03-12", r.BucketLabel(ts))
	})

	t.Run("week snaps to Monday", func(t *testing.T) {
		r, _ := timeframe.NewRange(ts.AddDate(0, 0, -30), ts, timeframe.GranularityWeek)
		assert.Equal(t, "2026-03-09", r.BucketLabel(ts))
	})

	t.Run("week on Sunday snaps back six days", func(t *testing.T) {
		sunday := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
		r, _ := timeframe.NewRange(sunday.AddDate(0, 0, -30), sunday, timeframe.GranularityWeek)
		assert.Equal(t, "2026-03-09", r.BucketLabel(sunday))
	})

	t.Run("month", func(t *testing.T) {
		r, _ := timeframe.NewRange(ts.AddDate(0, -2, 0), ts, timeframe.GranularityMonth)
		assert.Equal(t, "2026-03", r.BucketLabel(ts))
	})
}

func TestGroupByExpression(t *testing.T) {
	for _, g := range []timeframe.Granularity{
		timeframe.GranularityDay,
		timeframe.GranularityWeek,
		timeframe.GranularityMonth,
	} {
		r, err := timeframe.NewRange(time.Now().Add(-24*time.Hour), time.Now(), g)
		require.NoError(t, err)
		expr, err := r.GroupByExpression()
		require.NoError(t, err)
		assert.NotEmpty(t, expr)
	}
}
