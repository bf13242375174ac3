package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"devrelay/internal/developers"
)

// DevelopersIndexAction lists developers for the tenant, paginated.
func DevelopersIndexAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	page, perPage := parsePagination(ctx)

	devs, total, err := developers.List(ctx.DB(), tenantID, page, perPage)
	if err != nil {
		ctx.Logger.Error("Failed to list developers", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(fiber.Map{
		"developers": devs,
		"pagination": buildPagination(page, perPage, total),
	})
}

// DeveloperCreateAction registers a new developer profile.
func DeveloperCreateAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	var body struct {
		DisplayName    string `json:"display_name"`
		Email          string `json:"email"`
		OrganizationID string `json:"organization_id"`
		Consented      bool   `json:"consented"`
		Tags           string `json:"tags"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.DisplayName == "" {
		return respondError(ctx, fiber.StatusBadRequest, "display_name is required")
	}

	dev, err := developers.Create(ctx.DB(), ctx.Logger, tenantID, developers.CreateDeveloperParams{
		DisplayName:      body.DisplayName,
		Email:            body.Email,
		OrganizationUUID: body.OrganizationID,
		Consented:        body.Consented,
		Tags:             body.Tags,
	})
	if err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(dev)
}

// DeveloperShowAction returns a single developer with its identifiers.
func DeveloperShowAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	db := ctx.DB()
	dev, err := developers.GetByUUID(db, tenantID, id)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	identifiers, err := developers.ListIdentifiers(db, tenantID, id)
	if err != nil {
		ctx.Logger.Error("Failed to list identifiers", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(fiber.Map{
		"developer":   dev,
		"identifiers": identifiers,
	})
}

// DeveloperUpdateAction applies partial updates to a developer.
func DeveloperUpdateAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	var body struct {
		DisplayName *string `json:"display_name"`
		Email       *string `json:"email"`
		Consented   *bool   `json:"consented"`
		Tags        *string `json:"tags"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}

	dev, err := developers.Update(ctx.DB(), ctx.Logger, tenantID, id, developers.UpdateDeveloperParams{
		DisplayName: body.DisplayName,
		Email:       body.Email,
		Consented:   body.Consented,
		Tags:        body.Tags,
	})
	if err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.JSON(dev)
}

// DeveloperDeleteAction removes a developer and detaches its activities.
func DeveloperDeleteAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	if err := developers.Delete(ctx.DB(), ctx.Logger, tenantID, id); err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"status": "deleted"})
}

// DeveloperIdentifiersIndexAction lists a developer's identifiers.
func DeveloperIdentifiersIndexAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	if _, err := developers.GetByUUID(ctx.DB(), tenantID, id); err != nil {
		return respondDomainError(ctx, err)
	}

	identifiers, err := developers.ListIdentifiers(ctx.DB(), tenantID, id)
	if err != nil {
		ctx.Logger.Error("Failed to list identifiers", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(fiber.Map{"identifiers": identifiers})
}

// DeveloperIdentifierClaimAction attaches an identifier to a developer.
// Claiming an identifier held by a different developer is a conflict.
func DeveloperIdentifierClaimAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	var body struct {
		Kind       string   `json:"kind"`
		Value      string   `json:"value"`
		Confidence *float64 `json:"confidence"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}

	kind := developers.IdentifierKind(body.Kind)
	if !developers.ValidIdentifierKind(kind) {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid identifier kind")
	}

	identifier, err := developers.ClaimIdentifier(ctx.DB(), ctx.Logger, tenantID, id, developers.ClaimIdentifierParams{
		Kind:       kind,
		Value:      body.Value,
		Confidence: body.Confidence,
	})
	if err != nil {
		var conflict *developers.IdentifierConflictError
		var notFound *developers.DeveloperNotFoundError
		if errors.As(err, &conflict) || errors.As(err, &notFound) {
			return respondDomainError(ctx, err)
		}
		return respondError(ctx, fiber.StatusBadRequest, err.Error())
	}

	return ctx.Status(fiber.StatusCreated).JSON(identifier)
}

// DeveloperLookupAction resolves a developer from an identifier value.
func DeveloperLookupAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	kind := developers.IdentifierKind(ctx.Query("kind"))
	value := ctx.Query("value")
	if !developers.ValidIdentifierKind(kind) || value == "" {
		return respondError(ctx, fiber.StatusBadRequest, "kind and value are required")
	}

	dev, err := developers.FindDeveloperByIdentifier(ctx.DB(), tenantID, kind, value)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.JSON(dev)
}

// DeveloperCountriesAction returns the activity country breakdown.
func DeveloperCountriesAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	stats, err := developers.CountryBreakdown(ctx.DB(), tenantID)
	if err != nil {
		ctx.Logger.Error("Failed to compute country breakdown", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(fiber.Map{"countries": stats})
}
