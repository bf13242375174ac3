package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "devrelay/api/v1"
	"devrelay/internal/config"
	"devrelay/internal/http"
	"devrelay/internal/http/middleware"
)

// publicCORSConfig is the CORS setup shared by the public ingestion
// endpoints. Plugins report from arbitrary origins.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, User-Agent",
}

// SetupSession configures session management on the server.
func SetupSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := cartridge.NewSessionManager(cartridge.SessionConfig{
		CookieName: cfg.AppName + "_session",
		Secret:     cfg.GetSessionSecret(),
		TTL:        time.Duration(cfg.GetLoginSessionTimeout()) * time.Second,
		Secure:     cfg.IsProduction(),
		LoginPath:  "/login",
	})
	srv.SetSession(sessionMgr)
}

// MountAppRoutes mounts all application routes using cartridge's route API.
func MountAppRoutes(srv *cartridge.Server) {
	SetupSession(srv)
	MountAppRoutesWithoutSession(srv)
}

// MountAppRoutesWithoutSession mounts routes without setting up session.
func MountAppRoutesWithoutSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := srv.Session()

	// Rate limiting only applies in production; in development and test it
	// would interfere with local iteration and the test suite.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Public event ingestion (per-IP). Plugins batch events, so the
	// request rate stays low even for busy integrations.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Stricter limit on login to slow down brute force attempts.
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	// Public ingestion: CORS + rate limiting + plugin key auth. CORS runs
	// first so 401 responses still carry CORS headers.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		WriteConcurrency:   false,
		CustomMiddleware:   []fiber.Handler{publicRateLimiter, middleware.PluginKeyAuth(db, logger)},
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	// Authenticated JSON API: session cookie auth with JSON 401s.
	apiConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.APIAuth(sessionMgr, db, logger),
		},
	}

	// === ROOT ROUTES ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC API ROUTES ===
	srv.Post("/x/api/v1/plugins/events", v1.IngestEventsPublicAPIHandler, publicAPIConfig)
	srv.Options("/x/api/v1/plugins/events", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	})

	// === AUTHENTICATION ROUTES ===
	loginConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}
	srv.Post("/login", http.ProcessLoginAction, loginConfig)
	srv.Post("/logout", http.LogoutAction)

	// === AUTHENTICATED API ROUTES ===
	srv.Get("/api/dashboard", http.DashboardAction, apiConfig)

	srv.Get("/api/developers", http.DevelopersIndexAction, apiConfig)
	srv.Post("/api/developers", http.DeveloperCreateAction, apiConfig)
	srv.Get("/api/developers/lookup", http.DeveloperLookupAction, apiConfig)
	srv.Get("/api/developers/countries", http.DeveloperCountriesAction, apiConfig)
	srv.Get("/api/developers/:id", http.DeveloperShowAction, apiConfig)
	srv.Post("/api/developers/:id", http.DeveloperUpdateAction, apiConfig)
	srv.Delete("/api/developers/:id", http.DeveloperDeleteAction, apiConfig)
	srv.Get("/api/developers/:id/identifiers", http.DeveloperIdentifiersIndexAction, apiConfig)
	srv.Post("/api/developers/:id/identifiers", http.DeveloperIdentifierClaimAction, apiConfig)

	srv.Get("/api/activities", http.ActivitiesIndexAction, apiConfig)
	srv.Post("/api/activities", http.ActivityCreateAction, apiConfig)
	srv.Get("/api/activities/:id", http.ActivityShowAction, apiConfig)

	srv.Get("/api/funnel", http.FunnelIndexAction, apiConfig)
	srv.Get("/api/funnel/timeline", http.FunnelTimelineAction, apiConfig)
	srv.Get("/api/funnel/mappings", http.FunnelMappingsIndexAction, apiConfig)
	srv.Post("/api/funnel/mappings", http.FunnelMappingsUpdateAction, apiConfig)

	srv.Get("/api/campaigns", http.CampaignsIndexAction, apiConfig)
	srv.Post("/api/campaigns", http.CampaignCreateAction, apiConfig)
	srv.Get("/api/campaigns/:id", http.CampaignShowAction, apiConfig)
	srv.Post("/api/campaigns/:id", http.CampaignUpdateAction, apiConfig)
	srv.Delete("/api/campaigns/:id", http.CampaignDeleteAction, apiConfig)
	srv.Get("/api/campaigns/:id/budgets", http.CampaignBudgetsIndexAction, apiConfig)
	srv.Post("/api/campaigns/:id/budgets", http.CampaignBudgetCreateAction, apiConfig)
	srv.Post("/api/campaigns/:id/attributions", http.CampaignAttributeAction, apiConfig)
	srv.Get("/api/campaigns/:id/roi", http.CampaignROIAction, apiConfig)

	srv.Get("/api/plugins", http.PluginsIndexAction, apiConfig)
	srv.Post("/api/plugins", http.PluginInstallAction, apiConfig)
	srv.Get("/api/plugins/:id", http.PluginShowAction, apiConfig)
	srv.Post("/api/plugins/:id", http.PluginUpdateAction, apiConfig)
	srv.Delete("/api/plugins/:id", http.PluginDeleteAction, apiConfig)
	srv.Get("/api/plugins/:id/runs", http.PluginRunsIndexAction, apiConfig)
	srv.Post("/api/plugins/:id/rotate-key", http.PluginRotateKeyAction, apiConfig)
}
