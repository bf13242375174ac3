package campaigns

import (
	"errors"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"devrelay/internal/activities"
)

// Attribution credits an activity to a campaign. An activity can be credited
// to a campaign at most once; the weight is reserved for fractional
// multi-touch attribution.
type Attribution struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	TenantID   uint      `gorm:"index;not null" json:"-"`
	CampaignID uint      `gorm:"uniqueIndex:idx_attributions_campaign_activity;not null" json:"-"`
	ActivityID uint      `gorm:"uniqueIndex:idx_attributions_campaign_activity;not null" json:"-"`
	Weight     float64   `gorm:"default:1" json:"weight"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ErrAlreadyAttributed is returned when the activity is already credited to
// the campaign.
var ErrAlreadyAttributed = errors.New("activity already attributed to campaign")

// Attribute credits an activity to a campaign.
func Attribute(db *gorm.DB, logger *slog.Logger, tenantID uint, campaignUUID, activityUUID string, weight float64) (*Attribution, error) {
	campaign, err := GetByUUID(db, tenantID, campaignUUID)
	if err != nil {
		return nil, err
	}
	activity, err := activities.GetByUUID(db, tenantID, activityUUID)
	if err != nil {
		return nil, err
	}
	if weight <= 0 || weight > 1 {
		weight = 1
	}

	var count int64
	err = db.Model(&Attribution{}).
		Where("campaign_id = ? AND activity_id = ?", campaign.ID, activity.ID).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAlreadyAttributed
	}

	attribution := Attribution{
		TenantID:   tenantID,
		CampaignID: campaign.ID,
		ActivityID: activity.ID,
		Weight:     weight,
	}
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&attribution).Error
	})
	if err != nil {
		return nil, err
	}
	return &attribution, nil
}
