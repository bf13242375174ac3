package jobs

import (
	"log/slog"
	"time"

	"devrelay/internal/activities"
	"devrelay/internal/config"
	"devrelay/internal/database"
	"devrelay/internal/plugins"
)

// CleanupJob prunes old plugin run history and, when a retention window is
// configured, old activities (data minimization).
type CleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run removes expired rows in batches to avoid long write locks.
func (j *CleanupJob) Run() error {
	if err := j.pruneRuns(); err != nil {
		return err
	}
	return j.pruneActivities()
}

func (j *CleanupJob) pruneRuns() error {
	retentionDays := j.cfg.PluginRunRetentionDays
	if retentionDays <= 0 {
		return nil
	}

	db := j.dbManager.GetConnection()
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old plugin runs",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	batchSize := 1000
	totalDeleted := int64(0)

	for {
		result := db.Where("finished_at IS NOT NULL AND finished_at < ?", cutoffDate).
			Limit(batchSize).
			Delete(&plugins.PluginRun{})

		if result.Error != nil {
			j.logger.Error("Failed to delete old plugin runs",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return result.Error
		}

		totalDeleted += result.RowsAffected

		if result.RowsAffected < int64(batchSize) {
			break
		}

		// Small delay between batches to prevent database lock contention
		time.Sleep(100 * time.Millisecond)
	}

	if totalDeleted > 0 {
		j.logger.Info("Cleaned up old plugin runs",
			slog.Int64("deleted_count", totalDeleted))
	}
	return nil
}

func (j *CleanupJob) pruneActivities() error {
	retentionDays := j.cfg.ActivityRetentionDays
	if retentionDays <= 0 {
		return nil
	}

	db := j.dbManager.GetConnection()
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	batchSize := 1000
	totalDeleted := int64(0)

	for {
		result := db.Where("occurred_at < ?", cutoffDate).
			Limit(batchSize).
			Delete(&activities.Activity{})

		if result.Error != nil {
			j.logger.Error("Failed to delete old activities",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return result.Error
		}

		totalDeleted += result.RowsAffected

		if result.RowsAffected < int64(batchSize) {
			break
		}

		time.Sleep(100 * time.Millisecond)
	}

	if totalDeleted > 0 {
		j.logger.Info("Cleaned up old activities",
			slog.Int64("deleted_count", totalDeleted),
			slog.Int("retention_days", retentionDays))
	}
	return nil
}
