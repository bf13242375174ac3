package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"devrelay/internal/plugins"
)

// LocalPluginID is the request local holding the authenticated plugin's
// internal ID.
const LocalPluginID = "plugin_id"

// PluginKeyAuth middleware validates the plugin API key for the public
// ingestion endpoints.
// Expects: Authorization: Bearer <api_key>
func PluginKeyAuth(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Authorization header",
			})
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid Authorization header format. Expected: Bearer <api_key>",
			})
		}

		providedKey := strings.TrimPrefix(authHeader, "Bearer ")
		if providedKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key is empty",
			})
		}

		plugin, err := plugins.GetByAPIKey(db, providedKey)
		if err != nil {
			logger.Debug("Plugin key rejected", slog.Any("error", err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		// Constant-time re-check; the DB lookup above is index-driven and
		// not constant-time on its own.
		if !secureCompare(providedKey, plugin.APIKey) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		c.Locals(LocalPluginID, plugin.ID)
		c.Locals(LocalTenantID, plugin.TenantID)
		return c.Next()
	}
}

// secureCompare performs constant-time string comparison
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var result byte
	for i := 0; i < len(a); i++ {
		result |= a[i] ^ b[i]
	}
	return result == 0
}
