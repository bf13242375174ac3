package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"

	"devrelay/internal/activities"
	"devrelay/internal/campaigns"
	"devrelay/internal/developers"
	"devrelay/internal/http/middleware"
	"devrelay/internal/plugins"
)

// PaginationData mirrors the pagination envelope used by list endpoints.
type PaginationData struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	PerPage     int   `json:"per_page"`
}

func buildPagination(page, perPage int, total int64) PaginationData {
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	if totalPages < 1 {
		totalPages = 1
	}
	return PaginationData{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalItems:  total,
		PerPage:     perPage,
	}
}

// currentTenantID reads the tenant resolved by the auth middleware.
func currentTenantID(ctx *cartridge.Context) uint {
	if id, ok := ctx.Locals(middleware.LocalTenantID).(uint); ok {
		return id
	}
	return 0
}

func respondError(ctx *cartridge.Context, status int, message string) error {
	return ctx.Status(status).JSON(fiber.Map{"error": message})
}

// parseResourceID validates the :id path parameter as a UUID before it ever
// reaches a query. Malformed IDs are a client error, not a missing record.
func parseResourceID(ctx *cartridge.Context, param string) (string, error) {
	raw := ctx.Ctx.Params(param)
	if _, err := uuid.Parse(raw); err != nil {
		return "", respondError(ctx, fiber.StatusBadRequest, "Invalid identifier")
	}
	return raw, nil
}

func parsePagination(ctx *cartridge.Context) (page, perPage int) {
	page = ctx.Ctx.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage = ctx.Ctx.QueryInt("per_page", 25)
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}
	return page, perPage
}

// respondDomainError maps domain errors onto the API error taxonomy.
// Unrecognized errors become a 500 without leaking internals.
func respondDomainError(ctx *cartridge.Context, err error) error {
	var devNotFound *developers.DeveloperNotFoundError
	var campaignNotFound *campaigns.CampaignNotFoundError
	var pluginNotFound *plugins.PluginNotFoundError
	var activityNotFound *activities.ActivityNotFoundError
	var identifierConflict *developers.IdentifierConflictError
	var duplicateActivity *activities.DuplicateActivityError

	switch {
	case errors.As(err, &devNotFound),
		errors.As(err, &campaignNotFound),
		errors.As(err, &pluginNotFound),
		errors.As(err, &activityNotFound):
		return respondError(ctx, fiber.StatusNotFound, err.Error())
	case errors.As(err, &identifierConflict),
		errors.As(err, &duplicateActivity),
		errors.Is(err, campaigns.ErrCampaignNameTaken),
		errors.Is(err, campaigns.ErrAlreadyAttributed):
		return respondError(ctx, fiber.StatusConflict, err.Error())
	default:
		ctx.Logger.Error("Unhandled domain error", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}
}
