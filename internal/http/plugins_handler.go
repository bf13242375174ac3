package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"devrelay/internal/config"
	"devrelay/internal/plugins"
)

// pluginResponse shapes a plugin for API output. The raw key is only
// included right after install or rotation.
type pluginResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	Description     string `json:"description,omitempty"`
	Enabled         bool   `json:"enabled"`
	ScheduleSeconds int    `json:"schedule_seconds"`
	LastRunAt       any    `json:"last_run_at"`
	APIKey          string `json:"api_key,omitempty"`
}

func newPluginResponse(p *plugins.Plugin, includeKey bool) pluginResponse {
	resp := pluginResponse{
		ID:              p.UUID,
		Name:            p.Name,
		Version:         p.Version,
		Description:     p.Description,
		Enabled:         p.Enabled,
		ScheduleSeconds: p.ScheduleSeconds,
		LastRunAt:       p.LastRunAt,
	}
	if includeKey {
		resp.APIKey = p.APIKey
	}
	return resp
}

// PluginsIndexAction lists installed plugins.
func PluginsIndexAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	installed, err := plugins.List(ctx.DB(), tenantID)
	if err != nil {
		ctx.Logger.Error("Failed to list plugins", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	result := make([]pluginResponse, len(installed))
	for i := range installed {
		result[i] = newPluginResponse(&installed[i], false)
	}

	return ctx.JSON(fiber.Map{"plugins": result})
}

// PluginInstallAction installs a plugin from its manifest. The response is
// the only place the API key is returned in full.
func PluginInstallAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)

	var body struct {
		Manifest string `json:"manifest"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Manifest == "" {
		return respondError(ctx, fiber.StatusBadRequest, "manifest is required")
	}

	plugin, err := plugins.Install(ctx.DB(), ctx.Logger, tenantID, []byte(body.Manifest))
	if err != nil {
		return respondError(ctx, fiber.StatusBadRequest, err.Error())
	}

	ctx.Logger.Info("Plugin installed",
		slog.String("plugin", plugin.Name),
		slog.String("version", plugin.Version))

	return ctx.Status(fiber.StatusCreated).JSON(newPluginResponse(plugin, true))
}

// PluginShowAction returns a plugin with its manifest pages and config.
// Secret config values are masked.
func PluginShowAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	plugin, err := plugins.GetByUUID(ctx.DB(), tenantID, id)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	manifest, err := plugin.Manifest()
	if err != nil {
		ctx.Logger.Error("Failed to parse stored manifest", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	cfg, err := plugins.ReadConfig(config.GetConfig().PrivateKey, plugin)
	if err != nil {
		ctx.Logger.Error("Failed to read plugin config", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(fiber.Map{
		"plugin": newPluginResponse(plugin, false),
		"pages":  manifest.Pages,
		"config": cfg,
	})
}

// PluginUpdateAction toggles a plugin or updates its config.
func PluginUpdateAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	var body struct {
		Enabled *bool             `json:"enabled"`
		Config  map[string]string `json:"config"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}

	db := ctx.DB()
	plugin, err := plugins.GetByUUID(db, tenantID, id)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	if body.Config != nil {
		manifest, err := plugin.Manifest()
		if err != nil {
			ctx.Logger.Error("Failed to parse stored manifest", slog.Any("error", err))
			return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
		}
		if err := manifest.ValidateConfig(body.Config); err != nil {
			return respondError(ctx, fiber.StatusBadRequest, err.Error())
		}
		plugin, err = plugins.UpdateConfig(db, ctx.Logger, config.GetConfig().PrivateKey, tenantID, id, body.Config)
		if err != nil {
			return respondDomainError(ctx, err)
		}
	}

	if body.Enabled != nil {
		plugin, err = plugins.SetEnabled(db, ctx.Logger, tenantID, id, *body.Enabled)
		if err != nil {
			return respondDomainError(ctx, err)
		}
	}

	return ctx.JSON(newPluginResponse(plugin, false))
}

// PluginDeleteAction uninstalls a plugin and its run history.
func PluginDeleteAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	if err := plugins.Uninstall(ctx.DB(), ctx.Logger, tenantID, id); err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"status": "deleted"})
}

// PluginRunsIndexAction lists recent runs of a plugin, newest first.
func PluginRunsIndexAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	limit := ctx.Ctx.QueryInt("limit", 20)
	runs, err := plugins.ListRuns(ctx.DB(), tenantID, id, limit)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"runs": runs})
}

// PluginRotateKeyAction issues a fresh API key, invalidating the old one.
func PluginRotateKeyAction(ctx *cartridge.Context) error {
	tenantID := currentTenantID(ctx)
	id, err := parseResourceID(ctx, "id")
	if err != nil {
		return err
	}

	plugin, err := plugins.RotateKey(ctx.DB(), ctx.Logger, tenantID, id)
	if err != nil {
		return respondDomainError(ctx, err)
	}

	ctx.Logger.Info("Plugin API key rotated", slog.String("plugin", plugin.Name))

	return ctx.JSON(newPluginResponse(plugin, true))
}
