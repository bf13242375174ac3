package campaigns

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ROIReport summarizes campaign spend against attributed activity value.
// Monetary totals are decimal strings; ROI is a percentage rounded to two
// decimals, nil when the campaign has no recorded cost.
type ROIReport struct {
	CampaignID     string   `json:"campaign_id"`
	CampaignName   string   `json:"campaign_name"`
	TotalCost      string   `json:"total_cost"`
	TotalValue     string   `json:"total_value"`
	ActivityCount  int64    `json:"activity_count"`
	DeveloperCount int64    `json:"developer_count"`
	ROI            *float64 `json:"roi"`
}

// ComputeROI builds the ROI report for one campaign.
func ComputeROI(db *gorm.DB, tenantID uint, campaignUUID string) (*ROIReport, error) {
	campaign, err := GetByUUID(db, tenantID, campaignUUID)
	if err != nil {
		return nil, err
	}

	totalCost, err := TotalBudget(db, tenantID, campaign.ID)
	if err != nil {
		return nil, err
	}

	// Attributed activity values are summed in Go so decimal strings never
	// pass through float SQL aggregation.
	var values []string
	err = db.Raw(`
		SELECT a.value
		FROM activities a
		JOIN attributions att ON att.activity_id = a.id
		WHERE att.tenant_id = ? AND att.campaign_id = ? AND a.value != ''
	`, tenantID, campaign.ID).Scan(&values).Error
	if err != nil {
		return nil, err
	}

	totalValue := decimal.Zero
	for _, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("corrupt activity value %q: %w", v, err)
		}
		totalValue = totalValue.Add(d)
	}

	var activityCount int64
	err = db.Model(&Attribution{}).
		Where("tenant_id = ? AND campaign_id = ?", tenantID, campaign.ID).
		Count(&activityCount).Error
	if err != nil {
		return nil, err
	}

	var developerCount int64
	err = db.Raw(`
		SELECT COUNT(DISTINCT a.developer_id)
		FROM activities a
		JOIN attributions att ON att.activity_id = a.id
		WHERE att.tenant_id = ? AND att.campaign_id = ? AND a.developer_id IS NOT NULL
	`, tenantID, campaign.ID).Scan(&developerCount).Error
	if err != nil {
		return nil, err
	}

	report := &ROIReport{
		CampaignID:     campaign.UUID,
		CampaignName:   campaign.Name,
		TotalCost:      totalCost.String(),
		TotalValue:     totalValue.String(),
		ActivityCount:  activityCount,
		DeveloperCount: developerCount,
	}

	// ROI is undefined with zero cost; the report carries null instead of
	// a division blowup or a fake 0.
	if !totalCost.IsZero() {
		roi, _ := totalValue.Sub(totalCost).
			Div(totalCost).
			Mul(decimal.NewFromInt(100)).
			Round(2).
			Float64()
		report.ROI = &roi
	}

	return report, nil
}
