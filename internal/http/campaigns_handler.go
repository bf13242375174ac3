package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"devrelay/internal/campaigns"
)

func parseDateField(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// CampaignsIndexAction lists campaigns for the tenant, paginated.
func CampaignsIndexAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	page, perPage := parsePagination(ctx)

	items, total, err := campaigns.List(ctx.DB(), tenantID, page, perPage)
	if err != nil {
		ctx.Logger.Error("Failed to list campaigns", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(fiber.Map{
		"campaigns":  items,
		"pagination": buildPagination(page, perPage, total),
	})
}

// CampaignCreateAction creates a campaign. Names are unique per tenant.
func CampaignCreateAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	var body struct {
		Name     string `json:"name"`
		Channel  string `json:"channel"`
		StartsOn string `json:"starts_on"`
		EndsOn   string `json:"ends_on"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Name == "" {
		return respondError(ctx, fiber.StatusBadRequest, "name is required")
	}

	startsOn, err := parseDateField(body.StartsOn)
	if err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid starts_on date")
	}
	endsOn, err := parseDateField(body.EndsOn)
	if err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid ends_on date")
	}

	campaign, err := campaigns.Create(ctx.DB(), ctx.Logger, tenantID, campaigns.CreateCampaignParams{
		Name:     body.Name,
		Channel:  body.Channel,
		StartsOn: startsOn,
		EndsOn:   endsOn,
	})
	if err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(campaign)
}

// CampaignShowAction returns a single campaign.
func CampaignShowAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	campaign, err := campaigns.GetByUUID(ctx.DB(), tenantID, id)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.JSON(campaign)
}

// CampaignUpdateAction applies partial updates to a campaign.
func CampaignUpdateAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	var body struct {
		Name     *string `json:"name"`
		Channel  *string `json:"channel"`
		StartsOn *string `json:"starts_on"`
		EndsOn   *string `json:"ends_on"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}

	params := campaigns.UpdateCampaignParams{
		Name:    body.Name,
		Channel: body.Channel,
	}
	if body.StartsOn != nil {
		startsOn, err := parseDateField(*body.StartsOn)
		if err != nil {
			return respondError(ctx, fiber.StatusBadRequest, "Invalid starts_on date")
		}
		params.StartsOn = startsOn
	}
	if body.EndsOn != nil {
		endsOn, err := parseDateField(*body.EndsOn)
		if err != nil {
			return respondError(ctx, fiber.StatusBadRequest, "Invalid ends_on date")
		}
		params.EndsOn = endsOn
	}

	campaign, err := campaigns.Update(ctx.DB(), ctx.Logger, tenantID, id, params)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.JSON(campaign)
}

// CampaignDeleteAction removes a campaign with its budgets and attributions.
func CampaignDeleteAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	if err := campaigns.Delete(ctx.DB(), ctx.Logger, tenantID, id); err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"status": "deleted"})
}

// CampaignBudgetsIndexAction lists the spend lines of a campaign.
func CampaignBudgetsIndexAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	if _, err := campaigns.GetByUUID(ctx.DB(), tenantID, id); err != nil {
		return respondDomainError(ctx, err)
	}

	budgets, err := campaigns.ListBudgets(ctx.DB(), tenantID, id)
	if err != nil {
		ctx.Logger.Error("Failed to list budgets", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(fiber.Map{"budgets": budgets})
}

// CampaignBudgetCreateAction records a spend line on a campaign.
func CampaignBudgetCreateAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	var body struct {
		Category string `json:"category"`
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		SpentOn  string `json:"spent_on"`
		Memo     string `json:"memo"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}

	spentOn, err := parseDateField(body.SpentOn)
	if err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid spent_on date")
	}

	budget, err := campaigns.AddBudget(ctx.DB(), ctx.Logger, tenantID, id, campaigns.CreateBudgetParams{
		Category: body.Category,
		Amount:   body.Amount,
		Currency: body.Currency,
		SpentOn:  spentOn,
		Memo:     body.Memo,
	})
	if err != nil {
		var notFound *campaigns.CampaignNotFoundError
		if errors.As(err, &notFound) {
			return respondDomainError(ctx, err)
		}
		return respondError(ctx, fiber.StatusBadRequest, err.Error())
	}

	return ctx.Status(fiber.StatusCreated).JSON(budget)
}

// CampaignAttributeAction links an activity to a campaign.
func CampaignAttributeAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	var body struct {
		ActivityID string  `json:"activity_id"`
		Weight     float64 `json:"weight"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.ActivityID == "" {
		return respondError(ctx, fiber.StatusBadRequest, "activity_id is required")
	}

	attribution, err := campaigns.Attribute(ctx.DB(), ctx.Logger, tenantID, id, body.ActivityID, body.Weight)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(attribution)
}

// CampaignROIAction computes the return on investment of a campaign from
// its budget lines and attributed activity values.
func CampaignROIAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	report, err := campaigns.ComputeROI(ctx.DB(), tenantID, id)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.JSON(report)
}
