package activities

import (
	"time"

	"gorm.io/gorm"

	"devrelay/internal/developers"
	"devrelay/internal/tenants"
)

// Filters narrow down the activity listing. Zero values are ignored.
type Filters struct {
	Action        string
	Source        string
	DeveloperUUID string
	From          time.Time
	To            time.Time
	Page          int
	PerPage       int
}

// GetFilteredActivities returns a page of activities matching the filters,
// newest first, plus the total match count for pagination.
func GetFilteredActivities(db *gorm.DB, tenantID uint, filters Filters) ([]Activity, int64, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PerPage < 1 || filters.PerPage > 100 {
		filters.PerPage = 50
	}

	query := tenants.Scoped(db, tenantID).Model(&Activity{})

	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Source != "" {
		query = query.Where("source = ?", filters.Source)
	}
	if filters.DeveloperUUID != "" {
		dev, err := developers.GetByUUID(db, tenantID, filters.DeveloperUUID)
		if err != nil {
			return nil, 0, err
		}
		query = query.Where("developer_id = ?", dev.ID)
	}
	if !filters.From.IsZero() {
		query = query.Where("occurred_at >= ?", filters.From)
	}
	if !filters.To.IsZero() {
		query = query.Where("occurred_at <= ?", filters.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var result []Activity
	err := query.
		Order("occurred_at DESC").
		Limit(filters.PerPage).
		Offset((filters.Page - 1) * filters.PerPage).
		Find(&result).Error
	if err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

// TopAction is one row of the most-frequent-actions breakdown.
type TopAction struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// GetTopActions returns the most frequent actions for the tenant.
func GetTopActions(db *gorm.DB, tenantID uint, limit int) ([]TopAction, error) {
	if limit < 1 || limit > 50 {
		limit = 10
	}

	var rows []TopAction
	err := db.Raw(`
		SELECT action, COUNT(*) AS count
		FROM activities
		WHERE tenant_id = ?
		GROUP BY action
		ORDER BY count DESC
		LIMIT ?
	`, tenantID, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByTenant returns the total number of activities for the tenant.
func CountByTenant(db *gorm.DB, tenantID uint) (int64, error) {
	var count int64
	err := tenants.Scoped(db, tenantID).Model(&Activity{}).Count(&count).Error
	return count, err
}
