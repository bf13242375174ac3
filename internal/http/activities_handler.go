package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"devrelay/internal/activities"
	"devrelay/internal/developers"
)

// activityPayload is the JSON body accepted by the activity endpoints, both
// the authenticated API and the public plugin ingestion. Confidence stays a
// pointer so an explicit 0 is distinguishable from an omitted field.
type activityPayload struct {
	DeveloperID string   `json:"developer_id"`
	AccountID   string   `json:"account_id"`
	AnonID      string   `json:"anon_id"`
	Action      string   `json:"action"`
	OccurredAt  string   `json:"occurred_at"`
	Source      string   `json:"source"`
	Value       string   `json:"value"`
	Metadata    string   `json:"metadata"`
	Confidence  *float64 `json:"confidence"`
	DedupKey    string   `json:"dedup_key"`
}

func (p *activityPayload) toInput() (*activities.CollectActivityInput, error) {
	occurredAt := time.Now().UTC()
	if p.OccurredAt != "" {
		parsed, err := time.Parse(time.RFC3339, p.OccurredAt)
		if err != nil {
			return nil, errors.New("occurred_at must be RFC 3339")
		}
		occurredAt = parsed.UTC()
	}

	return &activities.CollectActivityInput{
		DeveloperUUID: p.DeveloperID,
		AccountID:     p.AccountID,
		AnonID:        p.AnonID,
		Action:        p.Action,
		OccurredAt:    occurredAt,
		Source:        p.Source,
		Value:         p.Value,
		Metadata:      p.Metadata,
		Confidence:    p.Confidence,
		DedupKey:      p.DedupKey,
	}, nil
}

// ActivitiesIndexAction lists activities with optional filters, newest first.
func ActivitiesIndexAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	page, perPage := parsePagination(ctx)

	filters := activities.Filters{
		Action:        ctx.Query("action"),
		Source:        ctx.Query("source"),
		DeveloperUUID: ctx.Query("developer_id"),
		Page:          page,
		PerPage:       perPage,
	}
	if from := ctx.Query("from"); from != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			return respondError(ctx, fiber.StatusBadRequest, "Invalid from date")
		}
		filters.From = parsed
	}
	if to := ctx.Query("to"); to != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			return respondError(ctx, fiber.StatusBadRequest, "Invalid to date")
		}
		filters.To = parsed.Add(24*time.Hour - time.Second)
	}

	items, total, err := activities.GetFilteredActivities(ctx.DB(), tenantID, filters)
	if err != nil {
		ctx.Logger.Error("Failed to list activities", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(fiber.Map{
		"activities": items,
		"pagination": buildPagination(page, perPage, total),
	})
}

// ActivityCreateAction records a single activity.
func ActivityCreateAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	var payload activityPayload
	if err := ctx.BodyParser(&payload); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}

	input, err := payload.toInput()
	if err != nil {
		return respondError(ctx, fiber.StatusBadRequest, err.Error())
	}

	activity, err := activities.Collect(ctx.DB(), ctx.Logger, tenantID, input)
	if err != nil {
		var duplicate *activities.DuplicateActivityError
		var devNotFound *developers.DeveloperNotFoundError
		switch {
		case errors.As(err, &duplicate):
			return respondError(ctx, fiber.StatusConflict, err.Error())
		case errors.As(err, &devNotFound):
			return respondError(ctx, fiber.StatusNotFound, err.Error())
		case errors.Is(err, activities.ErrMissingIdentity):
			return respondError(ctx, fiber.StatusBadRequest, err.Error())
		default:
			return respondError(ctx, fiber.StatusBadRequest, err.Error())
		}
	}

	return ctx.Status(fiber.StatusCreated).JSON(activity)
}

// ActivityShowAction returns a single activity.
func ActivityShowAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	activity, err := activities.GetByUUID(ctx.DB(), tenantID, id)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.JSON(activity)
}
