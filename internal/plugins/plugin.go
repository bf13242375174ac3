// Package plugins manages installed integrations: manifests, API keys,
// encrypted configuration and run history.
package plugins

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"devrelay/internal/tenants"
)

// Run statuses
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// PluginNotFoundError represents an error when a plugin is not found
type PluginNotFoundError struct {
	UUID string
}

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("plugin not found: %s", e.UUID)
}

// Plugin is one installed integration for a tenant.
type Plugin struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	UUID            string    `gorm:"uniqueIndex;not null" json:"id"`
	TenantID        uint      `gorm:"index;not null" json:"-"`
	Name            string    `gorm:"not null" json:"name"`
	Version         string    `gorm:"not null" json:"version"`
	Description     string    `json:"description"`
	Enabled         bool      `gorm:"default:true" json:"enabled"`
	APIKey          string    `gorm:"uniqueIndex;not null" json:"-"`
	ScheduleSeconds int       `gorm:"default:0" json:"schedule_seconds"` // 0 = manual only
	EncryptedConfig string    `json:"-"`
	ManifestYAML    string    `json:"-"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PluginRun records one execution of a plugin.
type PluginRun struct {
	ID         uint       `gorm:"primaryKey" json:"-"`
	TenantID   uint       `gorm:"index;not null" json:"-"`
	PluginID   uint       `gorm:"index;not null" json:"-"`
	Status     string     `gorm:"not null" json:"status"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     string     `gorm:"default:'{}'" json:"result"` // JSON
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Install registers a plugin from its manifest and issues an API key.
func Install(db *gorm.DB, logger *slog.Logger, tenantID uint, manifestYAML []byte) (*Plugin, error) {
	manifest, err := ParseManifest(manifestYAML)
	if err != nil {
		return nil, err
	}

	plugin := Plugin{
		UUID:            uuid.NewString(),
		TenantID:        tenantID,
		Name:            manifest.Name,
		Version:         manifest.Version,
		Description:     manifest.Description,
		Enabled:         true,
		APIKey:          generateAPIKey(40),
		ScheduleSeconds: manifest.ScheduleSeconds,
		ManifestYAML:    string(manifestYAML),
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&plugin).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Installed plugin",
		slog.String("name", plugin.Name),
		slog.String("version", plugin.Version))
	return &plugin, nil
}

// GetByUUID retrieves a plugin by public ID within the tenant.
func GetByUUID(db *gorm.DB, tenantID uint, id string) (*Plugin, error) {
	var plugin Plugin
	err := db.Where("tenant_id = ? AND uuid = ?", tenantID, id).First(&plugin).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &PluginNotFoundError{UUID: id}
		}
		return nil, err
	}
	return &plugin, nil
}

// GetByAPIKey resolves a plugin from its API key, for the public ingestion
// endpoint. Disabled plugins do not authenticate.
func GetByAPIKey(db *gorm.DB, apiKey string) (*Plugin, error) {
	var plugin Plugin
	err := db.Where("api_key = ? AND enabled = ?", apiKey, true).First(&plugin).Error
	if err != nil {
		return nil, err
	}
	return &plugin, nil
}

// List returns all plugins of the tenant.
func List(db *gorm.DB, tenantID uint) ([]Plugin, error) {
	var result []Plugin
	err := tenants.Scoped(db, tenantID).Order("name ASC").Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Manifest parses the stored manifest of the plugin.
func (p *Plugin) Manifest() (*Manifest, error) {
	return ParseManifest([]byte(p.ManifestYAML))
}

// SetEnabled flips the enabled flag.
func SetEnabled(db *gorm.DB, logger *slog.Logger, tenantID uint, id string, enabled bool) (*Plugin, error) {
	plugin, err := GetByUUID(db, tenantID, id)
	if err != nil {
		return nil, err
	}
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(plugin).Update("enabled", enabled).Error
	})
	if err != nil {
		return nil, err
	}
	return plugin, nil
}

// UpdateConfig validates the config against the manifest schema and stores
// it encrypted.
func UpdateConfig(db *gorm.DB, logger *slog.Logger, privateKey string, tenantID uint, id string, config map[string]string) (*Plugin, error) {
	plugin, err := GetByUUID(db, tenantID, id)
	if err != nil {
		return nil, err
	}

	manifest, err := plugin.Manifest()
	if err != nil {
		return nil, err
	}
	if err := manifest.ValidateConfig(config); err != nil {
		return nil, err
	}

	sealed, err := SealConfig(privateKey, config)
	if err != nil {
		return nil, err
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(plugin).Update("encrypted_config", sealed).Error
	})
	if err != nil {
		return nil, err
	}
	return plugin, nil
}

// ReadConfig decrypts the plugin config, masking secret fields for display.
func ReadConfig(privateKey string, plugin *Plugin) (map[string]string, error) {
	config, err := OpenConfig(privateKey, plugin.EncryptedConfig)
	if err != nil {
		return nil, err
	}

	manifest, err := plugin.Manifest()
	if err != nil {
		return nil, err
	}
	for _, field := range manifest.Config {
		if field.Secret && config[field.Key] != "" {
			config[field.Key] = "********"
		}
	}
	return config, nil
}

// RotateKey replaces the plugin's API key. The old key stops working
// immediately.
func RotateKey(db *gorm.DB, logger *slog.Logger, tenantID uint, id string) (*Plugin, error) {
	plugin, err := GetByUUID(db, tenantID, id)
	if err != nil {
		return nil, err
	}

	newKey := generateAPIKey(40)
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(plugin).Update("api_key", newKey).Error
	})
	if err != nil {
		return nil, err
	}
	plugin.APIKey = newKey
	return plugin, nil
}

// Uninstall removes a plugin and its run history.
func Uninstall(db *gorm.DB, logger *slog.Logger, tenantID uint, id string) error {
	plugin, err := GetByUUID(db, tenantID, id)
	if err != nil {
		return err
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND plugin_id = ?", tenantID, plugin.ID).
			Delete(&PluginRun{}).Error; err != nil {
			return err
		}
		return tx.Delete(plugin).Error
	})
}

// StartRun records the beginning of a plugin execution.
func StartRun(db *gorm.DB, logger *slog.Logger, plugin *Plugin) (*PluginRun, error) {
	run := PluginRun{
		TenantID:  plugin.TenantID,
		PluginID:  plugin.ID,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		return tx.Model(plugin).Update("last_run_at", run.StartedAt).Error
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// FinishRun marks a run as succeeded or failed.
func FinishRun(db *gorm.DB, logger *slog.Logger, run *PluginRun, resultJSON string, runErr error) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"finished_at": now,
		"result":      resultJSON,
	}
	if resultJSON == "" {
		updates["result"] = "{}"
	}
	if runErr != nil {
		updates["status"] = RunStatusFailed
		updates["error"] = runErr.Error()
	} else {
		updates["status"] = RunStatusSuccess
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(run).Updates(updates).Error
	})
}

// ListRuns returns the run history of a plugin, newest first.
func ListRuns(db *gorm.DB, tenantID uint, id string, limit int) ([]PluginRun, error) {
	plugin, err := GetByUUID(db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var runs []PluginRun
	err = db.Where("tenant_id = ? AND plugin_id = ?", tenantID, plugin.ID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// DuePlugins returns enabled scheduled plugins whose interval has elapsed.
func DuePlugins(db *gorm.DB, now time.Time) ([]Plugin, error) {
	var result []Plugin
	err := db.Where("enabled = ? AND schedule_seconds > 0", true).Find(&result).Error
	if err != nil {
		return nil, err
	}

	due := result[:0]
	for _, p := range result {
		if p.LastRunAt == nil || now.Sub(*p.LastRunAt) >= time.Duration(p.ScheduleSeconds)*time.Second {
			due = append(due, p)
		}
	}
	return due, nil
}

// generateAPIKey creates a cryptographically secure random key
func generateAPIKey(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[randInt(len(charset))]
	}
	return "drk_" + string(b)
}

// randInt returns a cryptographically secure random int in [0, max)
func randInt(max int) int {
	var buf [1]byte
	_, _ = rand.Read(buf[:])
	return int(buf[0]) % max
}
