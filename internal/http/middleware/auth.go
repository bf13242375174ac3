package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"devrelay/internal/users"
)

// Context locals set by the auth middleware.
const (
	LocalUserID   = "user_id"
	LocalTenantID = "tenant_id"
)

// APIAuth authenticates JSON API requests from the session cookie and
// resolves the caller's tenant into request locals. Unauthenticated
// requests get a 401 JSON body instead of the login redirect used for
// HTML routes.
func APIAuth(sessionMgr *cartridge.SessionManager, db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := sessionMgr.GetUserID(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		user, err := users.FindByID(db, userID)
		if err != nil {
			// Stale session referencing a deleted user
			logger.Debug("Session user not found", slog.Uint64("userID", uint64(userID)))
			sessionMgr.ClearSession(c)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalTenantID, user.TenantID)
		return c.Next()
	}
}
