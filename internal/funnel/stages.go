// Package funnel implements the four-stage developer funnel: stage
// definitions, per-tenant action mappings, stage statistics and the
// time-bucketed timeline.
package funnel

import (
	"fmt"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"devrelay/internal/tenants"
)

// The four funnel stages, in order. The set is fixed: stage statistics
// always report exactly these four, even when a stage has no mapped actions.
const (
	StageAwareness  = "awareness"
	StageEngagement = "engagement"
	StageAdoption   = "adoption"
	StageAdvocacy   = "advocacy"
)

// Stage describes one funnel stage.
type Stage struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

// Stages returns the fixed stage list in funnel order.
func Stages() []Stage {
	return []Stage{
		{Key: StageAwareness, Title: "Awareness", Order: 1},
		{Key: StageEngagement, Title: "Engagement", Order: 2},
		{Key: StageAdoption, Title: "Adoption", Order: 3},
		{Key: StageAdvocacy, Title: "Advocacy", Order: 4},
	}
}

// ValidStage reports whether key names one of the four stages.
func ValidStage(key string) bool {
	switch key {
	case StageAwareness, StageEngagement, StageAdoption, StageAdvocacy:
		return true
	}
	return false
}

// ActionMapping assigns an activity action to a funnel stage, per tenant.
type ActionMapping struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	TenantID  uint      `gorm:"uniqueIndex:idx_action_mappings_tenant_action;not null" json:"-"`
	Action    string    `gorm:"uniqueIndex:idx_action_mappings_tenant_action;not null" json:"action"`
	Stage     string    `gorm:"not null" json:"stage"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

var mappingCache *cache.Cache[uint, map[string]string]

// InitMappingCache wires the tenant mapping cache against the database.
// Called once at startup; safe to call again in tests to rebind.
func InitMappingCache(db *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(tenantID uint) (map[string]string, error) {
		mappings, err := GetMappings(db, tenantID)
		if err != nil {
			return nil, err
		}
		result := make(map[string]string, len(mappings))
		for _, m := range mappings {
			result[m.Action] = m.Stage
		}
		return result, nil
	}
	mappingCache = cache.NewCache[uint, map[string]string](logger, 5*time.Minute, fetchFunc)
}

// GetMappings returns all action mappings for the tenant.
func GetMappings(db *gorm.DB, tenantID uint) ([]ActionMapping, error) {
	var mappings []ActionMapping
	err := tenants.Scoped(db, tenantID).Order("action ASC").Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

// StageForAction resolves an action to its stage through the cache.
// Returns "" when the action is unmapped.
func StageForAction(db *gorm.DB, tenantID uint, action string) (string, error) {
	if mappingCache == nil {
		InitMappingCache(db, slog.Default())
	}
	mapped, err := mappingCache.Get(tenantID)
	if err != nil {
		return "", err
	}
	return mapped[action], nil
}

// ReplaceMappings swaps out the tenant's full action -> stage map.
// Unknown stage keys are rejected before any write happens.
func ReplaceMappings(db *gorm.DB, logger *slog.Logger, tenantID uint, mappings map[string]string) error {
	for action, stage := range mappings {
		if action == "" {
			return fmt.Errorf("action cannot be empty")
		}
		if !ValidStage(stage) {
			return fmt.Errorf("unknown funnel stage: %s", stage)
		}
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&ActionMapping{}).Error; err != nil {
			return err
		}
		for action, stage := range mappings {
			if err := tx.Create(&ActionMapping{
				TenantID: tenantID,
				Action:   action,
				Stage:    stage,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if mappingCache != nil {
		mappingCache.Clear()
	}
	return nil
}
