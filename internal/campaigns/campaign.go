// Package campaigns manages marketing campaigns, their budgets, activity
// attribution and ROI reporting.
package campaigns

import (
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"devrelay/internal/tenants"
)

// CampaignNotFoundError represents an error when a campaign is not found
type CampaignNotFoundError struct {
	UUID string
}

func (e *CampaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign not found: %s", e.UUID)
}

// NewCampaignNotFoundError creates a new CampaignNotFoundError
func NewCampaignNotFoundError(id string) *CampaignNotFoundError {
	return &CampaignNotFoundError{UUID: id}
}

// ErrCampaignNameTaken is returned when the tenant already has a campaign
// with the requested name.
var ErrCampaignNameTaken = errors.New("campaign name already in use")

// Campaign represents one marketing campaign.
type Campaign struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	UUID      string     `gorm:"uniqueIndex;not null" json:"id"`
	TenantID  uint       `gorm:"uniqueIndex:idx_campaigns_tenant_name;not null" json:"-"`
	Name      string     `gorm:"uniqueIndex:idx_campaigns_tenant_name;not null" json:"name"`
	Channel   string     `json:"channel"`
	StartsOn  *time.Time `json:"starts_on,omitempty"`
	EndsOn    *time.Time `json:"ends_on,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateCampaignParams carries the fields accepted when creating a campaign.
type CreateCampaignParams struct {
	Name     string
	Channel  string
	StartsOn *time.Time
	EndsOn   *time.Time
}

// Create inserts a new campaign for the tenant. Names are unique per tenant.
func Create(db *gorm.DB, logger *slog.Logger, tenantID uint, params CreateCampaignParams) (*Campaign, error) {
	if params.Name == "" {
		return nil, errors.New("campaign name is required")
	}
	if params.StartsOn != nil && params.EndsOn != nil && params.StartsOn.After(*params.EndsOn) {
		return nil, errors.New("campaign cannot end before it starts")
	}

	var existing Campaign
	err := db.Where("tenant_id = ? AND name = ?", tenantID, params.Name).First(&existing).Error
	if err == nil {
		return nil, ErrCampaignNameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	campaign := Campaign{
		UUID:     uuid.NewString(),
		TenantID: tenantID,
		Name:     params.Name,
		Channel:  params.Channel,
		StartsOn: params.StartsOn,
		EndsOn:   params.EndsOn,
	}
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&campaign).Error
	})
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// GetByUUID retrieves a campaign by public ID within the tenant.
func GetByUUID(db *gorm.DB, tenantID uint, id string) (*Campaign, error) {
	var campaign Campaign
	err := db.Where("tenant_id = ? AND uuid = ?", tenantID, id).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewCampaignNotFoundError(id)
		}
		return nil, err
	}
	return &campaign, nil
}

// List returns campaigns for the tenant, newest first.
func List(db *gorm.DB, tenantID uint, page, perPage int) ([]Campaign, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}

	var total int64
	if err := tenants.Scoped(db, tenantID).Model(&Campaign{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var result []Campaign
	err := tenants.Scoped(db, tenantID).
		Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&result).Error
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// UpdateCampaignParams carries the mutable campaign fields.
type UpdateCampaignParams struct {
	Name     *string
	Channel  *string
	StartsOn *time.Time
	EndsOn   *time.Time
}

// Update applies the given changes to a campaign.
func Update(db *gorm.DB, logger *slog.Logger, tenantID uint, id string, params UpdateCampaignParams) (*Campaign, error) {
	campaign, err := GetByUUID(db, tenantID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if params.Name != nil {
		if *params.Name == "" {
			return nil, errors.New("campaign name cannot be empty")
		}
		var conflicting Campaign
		err := db.Where("tenant_id = ? AND name = ? AND id != ?", tenantID, *params.Name, campaign.ID).
			First(&conflicting).Error
		if err == nil {
			return nil, ErrCampaignNameTaken
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		updates["name"] = *params.Name
	}
	if params.Channel != nil {
		updates["channel"] = *params.Channel
	}
	if params.StartsOn != nil {
		updates["starts_on"] = *params.StartsOn
	}
	if params.EndsOn != nil {
		updates["ends_on"] = *params.EndsOn
	}
	if len(updates) == 0 {
		return campaign, nil
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(campaign).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return campaign, nil
}

// Delete removes a campaign with its budgets and attributions.
func Delete(db *gorm.DB, logger *slog.Logger, tenantID uint, id string) error {
	campaign, err := GetByUUID(db, tenantID, id)
	if err != nil {
		return err
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND campaign_id = ?", tenantID, campaign.ID).
			Delete(&Budget{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND campaign_id = ?", tenantID, campaign.ID).
			Delete(&Attribution{}).Error; err != nil {
			return err
		}
		return tx.Delete(campaign).Error
	})
}

// TotalBudget sums the campaign's budget line amounts as a decimal string.
func TotalBudget(db *gorm.DB, tenantID uint, campaignID uint) (decimal.Decimal, error) {
	var amounts []string
	err := db.Model(&Budget{}).
		Where("tenant_id = ? AND campaign_id = ?", tenantID, campaignID).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, amount := range amounts {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt budget amount %q: %w", amount, err)
		}
		total = total.Add(d)
	}
	return total, nil
}
