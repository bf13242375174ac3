package funnel

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	"devrelay/internal/timeframe"
)

// TimelineBucket is the funnel report for one time bucket. Drop rates are
// computed within the bucket, independent of neighboring buckets.
type TimelineBucket struct {
	Bucket string      `json:"bucket"`
	Stages []StageStat `json:"stages"`
}

// Timeline is the bucketed funnel series over a date range. Buckets with no
// activity are absent rather than zero-filled.
type Timeline struct {
	Granularity timeframe.Granularity `json:"granularity"`
	Buckets     []TimelineBucket      `json:"buckets"`
}

type bucketedStageCountRow struct {
	Bucket      string
	Stage       string
	UniqueCount int64
	TotalCount  int64
}

// GetTimeline computes per-bucket funnel stats for the tenant over the range.
// The group-by expression is generated from a fixed set of granularities, so
// the interpolation is safe.
func GetTimeline(db *gorm.DB, tenantID uint, r *timeframe.Range) (*Timeline, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	groupExpr, err := r.GroupByExpression()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s AS bucket,
		       m.stage AS stage,
		       COUNT(DISTINCT COALESCE('d:' || a.developer_id, 'a:' || a.account_id, 'n:' || a.anon_id)) AS unique_count,
		       COUNT(*) AS total_count
		FROM activities a
		JOIN action_mappings m ON m.tenant_id = a.tenant_id AND m.action = a.action
		WHERE a.tenant_id = ? AND a.occurred_at >= ? AND a.occurred_at <= ?
		GROUP BY bucket, m.stage
		ORDER BY bucket ASC
	`, groupExpr)

	var rows []bucketedStageCountRow
	if err := db.Raw(query, tenantID, r.From, r.To).Scan(&rows).Error; err != nil {
		return nil, err
	}

	grouped := make(map[string][]stageCountRow)
	for _, row := range rows {
		grouped[row.Bucket] = append(grouped[row.Bucket], stageCountRow{
			Stage:       row.Stage,
			UniqueCount: row.UniqueCount,
			TotalCount:  row.TotalCount,
		})
	}

	labels := make([]string, 0, len(grouped))
	for label := range grouped {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	buckets := make([]TimelineBucket, len(labels))
	for i, label := range labels {
		report := buildReport(grouped[label])
		buckets[i] = TimelineBucket{
			Bucket: label,
			Stages: report.Stages,
		}
	}

	return &Timeline{
		Granularity: r.Granularity,
		Buckets:     buckets,
	}, nil
}
