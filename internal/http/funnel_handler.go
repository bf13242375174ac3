package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"devrelay/internal/funnel"
	"devrelay/internal/timeframe"
)

// FunnelIndexAction returns the current funnel report. All four stages are
// always present, in order, even when the tenant has no activity yet.
func FunnelIndexAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	report, err := funnel.GetStageStats(ctx.DB(), tenantID)
	if err != nil {
		ctx.Logger.Error("Failed to compute funnel stats", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(report)
}

// FunnelTimelineAction returns funnel reports bucketed over a date range.
func FunnelTimelineAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	r, err := timeframe.ParseRange(ctx.Query("from"), ctx.Query("to"), ctx.Query("granularity"))
	if err != nil {
		return respondError(ctx, fiber.StatusBadRequest, err.Error())
	}

	timeline, err := funnel.GetTimeline(ctx.DB(), tenantID, r)
	if err != nil {
		ctx.Logger.Error("Failed to compute funnel timeline", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(timeline)
}

// FunnelMappingsIndexAction lists the tenant's action to stage mappings.
func FunnelMappingsIndexAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	mappings, err := funnel.GetMappings(ctx.DB(), tenantID)
	if err != nil {
		ctx.Logger.Error("Failed to list action mappings", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	result := make(map[string]string, len(mappings))
	for _, m := range mappings {
		result[m.Action] = m.Stage
	}

	return ctx.JSON(fiber.Map{"mappings": result})
}

// FunnelMappingsUpdateAction replaces the tenant's action to stage mappings.
func FunnelMappingsUpdateAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	var body struct {
		Mappings map[string]string `json:"mappings"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Mappings == nil {
		return respondError(ctx, fiber.StatusBadRequest, "mappings is required")
	}

	for action, stage := range body.Mappings {
		if action == "" {
			return respondError(ctx, fiber.StatusBadRequest, "Action cannot be empty")
		}
		if !funnel.ValidStage(stage) {
			return respondError(ctx, fiber.StatusBadRequest, "Unknown funnel stage: "+stage)
		}
	}

	if err := funnel.ReplaceMappings(ctx.DB(), ctx.Logger, tenantID, body.Mappings); err != nil {
		ctx.Logger.Error("Failed to replace action mappings", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(fiber.Map{"mappings": body.Mappings})
}
