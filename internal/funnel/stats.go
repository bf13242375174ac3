package funnel

import (
	"math"

	"gorm.io/gorm"
)

// StageStat is the point-in-time statistics row for one funnel stage.
// DropRate and PreviousCount are nil for the first stage, and DropRate is
// also nil whenever the previous stage had no developers.
type StageStat struct {
	Stage            string   `json:"stage"`
	Title            string   `json:"title"`
	UniqueDevelopers int64    `json:"unique_developers"`
	TotalActivities  int64    `json:"total_activities"`
	PreviousCount    *int64   `json:"previous_count"`
	DropRate         *float64 `json:"drop_rate"`
}

// Report bundles the stage stats with the overall conversion rate.
type Report struct {
	Stages                []StageStat `json:"stages"`
	OverallConversionRate float64     `json:"overall_conversion_rate"`
}

type stageCountRow struct {
	Stage       string
	UniqueCount int64
	TotalCount  int64
}

// stageCountsSQL counts per-stage distinct identities and activity rows.
// Identity is the first non-null of developer, account and anon id; the
// prefixes keep the three id spaces from colliding.
const stageCountsSQL = `
	SELECT m.stage AS stage,
	       COUNT(DISTINCT COALESCE('d:' || a.developer_id, 'a:' || a.account_id, 'n:' || a.anon_id)) AS unique_count,
	       COUNT(*) AS total_count
	FROM activities a
	JOIN action_mappings m ON m.tenant_id = a.tenant_id AND m.action = a.action
	WHERE a.tenant_id = ?
	GROUP BY m.stage
`

// GetStageStats computes the funnel report for a tenant over all time.
// The result always contains exactly four stages in funnel order;
// stages with no mapped activity report zero counts.
func GetStageStats(db *gorm.DB, tenantID uint) (*Report, error) {
	var rows []stageCountRow
	if err := db.Raw(stageCountsSQL, tenantID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return buildReport(rows), nil
}

// buildReport turns raw per-stage counts into the ordered report with drop
// rates and the overall conversion rate.
func buildReport(rows []stageCountRow) *Report {
	counts := make(map[string]stageCountRow, len(rows))
	for _, r := range rows {
		counts[r.Stage] = r
	}

	stages := Stages()
	stats := make([]StageStat, len(stages))
	for i, stage := range stages {
		row := counts[stage.Key]
		stat := StageStat{
			Stage:            stage.Key,
			Title:            stage.Title,
			UniqueDevelopers: row.UniqueCount,
			TotalActivities:  row.TotalCount,
		}

		if i > 0 {
			prev := stats[i-1].UniqueDevelopers
			stat.PreviousCount = &prev
			if prev > 0 {
				rate := roundRate(float64(prev-row.UniqueCount) / float64(prev) * 100)
				// A stage can outgrow its predecessor (inverted funnel);
				// the drop rate stays within 0..100.
				if rate < 0 {
					rate = 0
				}
				stat.DropRate = &rate
			}
		}

		stats[i] = stat
	}

	return &Report{
		Stages:                stats,
		OverallConversionRate: overallConversion(stats),
	}
}

// overallConversion is last-stage over first-stage developers, as a
// percentage, clamped to be non-negative. Zero when the first stage is empty.
func overallConversion(stats []StageStat) float64 {
	if len(stats) == 0 {
		return 0
	}
	first := stats[0].UniqueDevelopers
	last := stats[len(stats)-1].UniqueDevelopers
	if first == 0 {
		return 0
	}
	rate := roundRate(float64(last) / float64(first) * 100)
	if rate < 0 {
		return 0
	}
	return rate
}

func roundRate(v float64) float64 {
	return math.Round(v*100) / 100
}
