package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/crypto"
	"log/slog"

	"devrelay/internal/users"
)

// ProcessLoginAction authenticates a user and sets the session cookie.
func ProcessLoginAction(ctx *cartridge.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}

	if body.Email == "" || body.Password == "" {
		return respondError(ctx, fiber.StatusBadRequest, "Email and password are required")
	}

	db := ctx.DB()
	user, result := users.FindByEmail(db, body.Email)

	// Always verify password to prevent timing attacks
	// This ensures constant time regardless of whether user exists
	var passwordValid bool
	if result != nil {
		ctx.Logger.Debug("User not found during login",
			slog.String("email", body.Email))
		dummyHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy" // bcrypt hash of "dummy"
		crypto.VerifyPassword(dummyHash, body.Password)
		passwordValid = false
	} else {
		passwordValid = crypto.VerifyPassword(user.EncryptedPassword, body.Password)
		if !passwordValid {
			ctx.Logger.Debug("Invalid password attempt",
				slog.String("email", body.Email))
		}
	}

	if !passwordValid {
		// Generic message - don't reveal whether email exists
		return respondError(ctx, fiber.StatusUnauthorized, "Invalid email or password")
	}

	if err := ctx.Session.SetSession(ctx.Ctx, user.ID); err != nil {
		ctx.Logger.Error("Failed to set session", slog.Any("error", err))
		return respondError(ctx, fiber.StatusInternalServerError, "Login failed")
	}

	ctx.Logger.Debug("Login successful",
		slog.String("email", body.Email),
		slog.Int("userId", int(user.ID)))

	return ctx.JSON(fiber.Map{
		"id":    user.ID,
		"email": user.Email,
	})
}

// LogoutAction clears the session.
func LogoutAction(ctx *cartridge.Context) error {
	userID, isAuthenticated := ctx.Session.GetUserID(ctx.Ctx)
	ctx.Logger.Debug("Logout requested",
		slog.Uint64("userID", uint64(userID)),
		slog.Bool("isAuthenticated", isAuthenticated))

	ctx.Session.ClearSession(ctx.Ctx)

	return ctx.JSON(fiber.Map{"status": "ok"})
}
