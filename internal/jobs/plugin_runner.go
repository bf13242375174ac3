package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"devrelay/internal/database"
	"devrelay/internal/plugins"
)

// PluginRunnerJob triggers scheduled plugin runs. A run here is a bookkeeping
// record: the integration itself executes out-of-process and reports data
// back through the public event API, authenticated with its plugin key.
type PluginRunnerJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
}

func NewPluginRunnerJob(dbManager *database.DBManager, logger *slog.Logger) *PluginRunnerJob {
	return &PluginRunnerJob{
		dbManager: dbManager,
		logger:    logger,
	}
}

// Run starts a run record for every scheduled plugin whose interval elapsed.
func (j *PluginRunnerJob) Run() error {
	db := j.dbManager.GetConnection()

	due, err := plugins.DuePlugins(db, time.Now().UTC())
	if err != nil {
		j.logger.Error("Failed to query due plugins", slog.Any("error", err))
		return err
	}
	if len(due) == 0 {
		j.logger.Debug("No plugins due")
		return nil
	}

	var firstErr error
	for i := range due {
		plugin := &due[i]
		run, err := plugins.StartRun(db, j.logger, plugin)
		if err != nil {
			j.logger.Error("Failed to start plugin run",
				slog.String("plugin", plugin.Name),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		// The trigger itself cannot fail beyond bookkeeping; mark the run
		// dispatched and let the integration report through the event API.
		result := fmt.Sprintf(`{"dispatched_at":%q}`, run.StartedAt.Format(time.RFC3339))
		if err := plugins.FinishRun(db, j.logger, run, result, nil); err != nil {
			j.logger.Error("Failed to finish plugin run",
				slog.String("plugin", plugin.Name),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		j.logger.Info("Dispatched scheduled plugin run",
			slog.String("plugin", plugin.Name),
			slog.Int("interval_seconds", plugin.ScheduleSeconds))
	}

	return firstErr
}
