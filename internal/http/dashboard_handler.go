package http

import (
	"context"
	"fmt"

	"github.com/karloscodes/cartridge"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"devrelay/internal/activities"
	"devrelay/internal/developers"
	"devrelay/internal/funnel"
	"devrelay/internal/pkg/async"
)

// DashboardResponse bundles the overview metrics fetched in parallel.
type DashboardResponse struct {
	Funnel          *funnel.Report           `json:"funnel"`
	TotalDevelopers int64                    `json:"total_developers"`
	TotalActivities int64                    `json:"total_activities"`
	TopActions      []TopActionEntry         `json:"top_actions"`
	TopCountries    []developers.CountryStat `json:"top_countries"`
}

// TopActionEntry is one row of the most-frequent-actions breakdown,
// annotated with the funnel stage the action is mapped to. Stage is empty
// for unmapped actions.
type TopActionEntry struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
	Stage  string `json:"stage,omitempty"`
}

func annotateTopActions(db *gorm.DB, tenantID uint, rows []activities.TopAction) ([]TopActionEntry, error) {
	entries := make([]TopActionEntry, len(rows))
	for i, row := range rows {
		stage, err := funnel.StageForAction(db, tenantID, row.Action)
		if err != nil {
			return nil, err
		}
		entries[i] = TopActionEntry{Action: row.Action, Count: row.Count, Stage: stage}
	}
	return entries, nil
}

func fetchDashboard(ctx *cartridge.Context, tenantID uint) (*DashboardResponse, error) {
	db := ctx.DB()
	logger := ctx.Logger

	tasks := []async.Task{
		{
			Name: "funnel",
			Execute: func(context.Context) (any, error) {
				return funnel.GetStageStats(db, tenantID)
			},
		},
		{
			Name: "totalDevelopers",
			Execute: func(context.Context) (any, error) {
				return developers.CountByTenant(db, tenantID)
			},
		},
		{
			Name: "totalActivities",
			Execute: func(context.Context) (any, error) {
				return activities.CountByTenant(db, tenantID)
			},
		},
		{
			Name: "topActions",
			Execute: func(context.Context) (any, error) {
				rows, err := activities.GetTopActions(db, tenantID, 10)
				if err != nil {
					return nil, err
				}
				return annotateTopActions(db, tenantID, rows)
			},
		},
		{
			Name: "topCountries",
			Execute: func(context.Context) (any, error) {
				return developers.CountryBreakdown(db, tenantID)
			},
		},
	}

	pool := async.NewPool(4)
	results := pool.Execute(context.Background(), tasks)

	for name, result := range results {
		if result.Err != nil {
			logger.Error("Dashboard metric failed",
				slog.String("metric", name),
				slog.Any("error", result.Err))
			return nil, fmt.Errorf("error fetching %s: %w", name, result.Err)
		}
	}

	resp := &DashboardResponse{
		Funnel:          results["funnel"].Data.(*funnel.Report),
		TotalDevelopers: results["totalDevelopers"].Data.(int64),
		TotalActivities: results["totalActivities"].Data.(int64),
		TopActions:      results["topActions"].Data.([]TopActionEntry),
		TopCountries:    results["topCountries"].Data.([]developers.CountryStat),
	}
	if resp.TopCountries == nil {
		resp.TopCountries = []developers.CountryStat{}
	}

	return resp, nil
}

// DashboardAction returns the tenant overview used by the home screen.
func DashboardAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	resp, err := fetchDashboard(ctx, tenantID)
	if err != nil {
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(resp)
}
