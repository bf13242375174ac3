// Package activities handles ingestion and querying of developer activities,
// the raw events everything else (funnel, ROI, attribution) is computed from.
package activities

import (
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"devrelay/internal/developers"
)

// Activity is one recorded developer action. At least one of the identity
// fields (developer, account, anon) must be present.
type Activity struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UUID        string    `gorm:"uniqueIndex;not null" json:"id"`
	TenantID    uint      `gorm:"index:idx_activities_tenant_occurred;uniqueIndex:idx_activities_tenant_dedup;not null" json:"-"`
	DeveloperID *uint     `gorm:"index" json:"-"`
	AccountID   *string   `json:"account_id,omitempty"`
	AnonID      *string   `json:"anon_id,omitempty"`
	Action      string    `gorm:"index;not null" json:"action"`
	OccurredAt  time.Time `gorm:"index:idx_activities_tenant_occurred;not null" json:"occurred_at"`
	Source      string    `json:"source"`
	Value       string    `gorm:"default:''" json:"value,omitempty"` // decimal string
	Metadata    string    `gorm:"default:'{}'" json:"metadata"`      // JSON object
	Confidence  float64   `json:"confidence"`
	DedupKey    *string   `gorm:"uniqueIndex:idx_activities_tenant_dedup" json:"dedup_key,omitempty"`
	Country     string    `json:"country,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// DuplicateActivityError is returned when an activity with the same dedup
// key was already recorded for the tenant.
type DuplicateActivityError struct {
	DedupKey string
}

func (e *DuplicateActivityError) Error() string {
	return fmt.Sprintf("activity with dedup key already recorded: %s", e.DedupKey)
}

// ErrMissingIdentity is returned when none of the identity fields is set.
var ErrMissingIdentity = errors.New("at least one of developerId, accountId or anonId is required")

// ActivityNotFoundError is returned when an activity lookup misses within
// the tenant.
type ActivityNotFoundError struct {
	ID string
}

func (e *ActivityNotFoundError) Error() string {
	return fmt.Sprintf("activity not found: %s", e.ID)
}

// CollectActivityInput carries the fields of an incoming activity.
// Confidence is nil when the caller did not report one; an explicit zero is
// a valid value and recorded as-is.
type CollectActivityInput struct {
	DeveloperUUID string
	AccountID     string
	AnonID        string
	Action        string
	OccurredAt    time.Time
	Source        string
	Value         string
	Metadata      string
	Confidence    *float64
	DedupKey      string
	Country       string
}

// Collect validates and records a single activity.
//
// Validation failures return plain errors; dedup collisions return
// DuplicateActivityError, unknown developer references return
// developers.DeveloperNotFoundError.
func Collect(db *gorm.DB, logger *slog.Logger, tenantID uint, input *CollectActivityInput) (*Activity, error) {
	if input.Action == "" {
		return nil, errors.New("action is required")
	}
	if input.DeveloperUUID == "" && input.AccountID == "" && input.AnonID == "" {
		return nil, ErrMissingIdentity
	}
	confidence := 1.0
	if input.Confidence != nil {
		if *input.Confidence < 0 || *input.Confidence > 1 {
			return nil, errors.New("confidence must be between 0 and 1")
		}
		confidence = *input.Confidence
	}
	if input.Value != "" {
		if _, err := decimal.NewFromString(input.Value); err != nil {
			return nil, fmt.Errorf("invalid value: %s", input.Value)
		}
	}

	activity := Activity{
		UUID:       uuid.NewString(),
		TenantID:   tenantID,
		Action:     input.Action,
		OccurredAt: input.OccurredAt,
		Source:     input.Source,
		Value:      input.Value,
		Metadata:   input.Metadata,
		Confidence: confidence,
		Country:    input.Country,
	}
	if activity.OccurredAt.IsZero() {
		activity.OccurredAt = time.Now().UTC()
	}
	if activity.Metadata == "" {
		activity.Metadata = "{}"
	}
	if input.AccountID != "" {
		activity.AccountID = &input.AccountID
	}
	if input.AnonID != "" {
		activity.AnonID = &input.AnonID
	}

	if input.DeveloperUUID != "" {
		dev, err := developers.GetByUUID(db, tenantID, input.DeveloperUUID)
		if err != nil {
			return nil, err
		}
		activity.DeveloperID = &dev.ID
	}

	if input.DedupKey != "" {
		var count int64
		err := db.Model(&Activity{}).
			Where("tenant_id = ? AND dedup_key = ?", tenantID, input.DedupKey).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, &DuplicateActivityError{DedupKey: input.DedupKey}
		}
		activity.DedupKey = &input.DedupKey
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&activity).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Collected activity",
		slog.String("action", activity.Action),
		slog.String("uuid", activity.UUID))
	return &activity, nil
}

// GetByUUID retrieves an activity by public ID within the tenant.
func GetByUUID(db *gorm.DB, tenantID uint, id string) (*Activity, error) {
	var activity Activity
	err := db.Where("tenant_id = ? AND uuid = ?", tenantID, id).First(&activity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ActivityNotFoundError{ID: id}
		}
		return nil, err
	}
	return &activity, nil
}
