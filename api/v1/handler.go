package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"devrelay/internal/activities"
	"devrelay/internal/developers"
	"devrelay/internal/http/middleware"
	"devrelay/internal/pkg/geoip"
)

const maxBatchSize = 500

// EventParams is one activity as reported by a plugin integration.
// Confidence is a pointer: integrations that score their matches may report
// an explicit 0, which is not the same as not reporting at all.
type EventParams struct {
	DeveloperID string   `json:"developerId"`
	AccountID   string   `json:"accountId"`
	AnonID      string   `json:"anonId"`
	Action      string   `json:"action"`
	OccurredAt  string   `json:"occurredAt"`
	Source      string   `json:"source"`
	Value       string   `json:"value"`
	Metadata    string   `json:"metadata"`
	Confidence  *float64 `json:"confidence"`
	DedupKey    string   `json:"dedupKey"`
}

type ingestRequest struct {
	Events []EventParams `json:"events"`
}

type eventError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IngestEventsPublicAPIHandler accepts a batch of activities from a plugin.
// The plugin key middleware has already resolved the tenant. Duplicates are
// reported but do not fail the batch; ingestion is meant to be retried.
func IngestEventsPublicAPIHandler(ctx *cartridge.Context) error {
	tenantID, ok := ctx.Locals(middleware.LocalTenantID).(uint)
	if !ok {
		return ctx.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req ingestRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	if len(req.Events) == 0 {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "events is required"})
	}
	if len(req.Events) > maxBatchSize {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Batch too large"})
	}

	country := geoip.CountryCode(reportingAddr(ctx.Ctx))

	db := ctx.DB()
	accepted := 0
	duplicates := 0
	var errs []eventError

	for i, event := range req.Events {
		input, err := eventToInput(&event, country)
		if err != nil {
			errs = append(errs, eventError{Index: i, Error: err.Error()})
			continue
		}

		if _, err := activities.Collect(db, ctx.Logger, tenantID, input); err != nil {
			var duplicate *activities.DuplicateActivityError
			var devNotFound *developers.DeveloperNotFoundError
			switch {
			case errors.As(err, &duplicate):
				duplicates++
			case errors.As(err, &devNotFound),
				errors.Is(err, activities.ErrMissingIdentity):
				errs = append(errs, eventError{Index: i, Error: err.Error()})
			default:
				ctx.Logger.Error("Failed to collect plugin event", slog.Any("error", err))
				errs = append(errs, eventError{Index: i, Error: "collection failed"})
			}
			continue
		}
		accepted++
	}

	ctx.Logger.Info("Ingested plugin event batch",
		slog.Int("accepted", accepted),
		slog.Int("duplicates", duplicates),
		slog.Int("failed", len(errs)))

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"accepted":   accepted,
		"duplicates": duplicates,
		"errors":     errs,
	})
}

func eventToInput(event *EventParams, country string) (*activities.CollectActivityInput, error) {
	occurredAt := time.Now().UTC()
	if event.OccurredAt != "" {
		parsed, err := time.Parse(time.RFC3339, event.OccurredAt)
		if err != nil {
			return nil, errors.New("occurredAt must be RFC 3339")
		}
		occurredAt = parsed.UTC()
	}

	return &activities.CollectActivityInput{
		DeveloperUUID: event.DeveloperID,
		AccountID:     event.AccountID,
		AnonID:        event.AnonID,
		Action:        event.Action,
		OccurredAt:    occurredAt,
		Source:        event.Source,
		Value:         event.Value,
		Metadata:      event.Metadata,
		Confidence:    event.Confidence,
		DedupKey:      event.DedupKey,
		Country:       country,
	}, nil
}
