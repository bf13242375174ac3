package campaigns

import (
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Budget is one spend line within a campaign. Amounts are stored as decimal
// strings; all arithmetic goes through decimal.Decimal.
type Budget struct {
	ID         uint       `gorm:"primaryKey" json:"-"`
	TenantID   uint       `gorm:"index;not null" json:"-"`
	CampaignID uint       `gorm:"index;not null" json:"-"`
	Category   string     `json:"category"`
	Amount     string     `gorm:"not null" json:"amount"`
	Currency   string     `gorm:"default:'USD'" json:"currency"`
	SpentOn    *time.Time `json:"spent_on,omitempty"`
	Memo       string     `json:"memo"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// CreateBudgetParams carries the fields of a new budget line.
type CreateBudgetParams struct {
	Category string
	Amount   string
	Currency string
	SpentOn  *time.Time
	Memo     string
}

// AddBudget records a spend line on a campaign. The amount must parse as a
// non-negative decimal.
func AddBudget(db *gorm.DB, logger *slog.Logger, tenantID uint, campaignUUID string, params CreateBudgetParams) (*Budget, error) {
	campaign, err := GetByUUID(db, tenantID, campaignUUID)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(params.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid budget amount: %s", params.Amount)
	}
	if amount.IsNegative() {
		return nil, errors.New("budget amount cannot be negative")
	}

	budget := Budget{
		TenantID:   tenantID,
		CampaignID: campaign.ID,
		Category:   params.Category,
		Amount:     amount.String(),
		Currency:   params.Currency,
		SpentOn:    params.SpentOn,
		Memo:       params.Memo,
	}
	if budget.Currency == "" {
		budget.Currency = "USD"
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&budget).Error
	})
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

// ListBudgets returns all budget lines of a campaign.
func ListBudgets(db *gorm.DB, tenantID uint, campaignUUID string) ([]Budget, error) {
	campaign, err := GetByUUID(db, tenantID, campaignUUID)
	if err != nil {
		return nil, err
	}

	var budgets []Budget
	err = db.Where("tenant_id = ? AND campaign_id = ?", tenantID, campaign.ID).
		Order("created_at ASC").
		Find(&budgets).Error
	if err != nil {
		return nil, err
	}
	return budgets, nil
}
