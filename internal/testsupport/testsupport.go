package testsupport

import (
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"devrelay/internal"
	"devrelay/internal/activities"
	"devrelay/internal/campaigns"
	"devrelay/internal/config"
	"devrelay/internal/developers"
	"devrelay/internal/funnel"
	"devrelay/internal/plugins"
	"devrelay/internal/tenants"
	"devrelay/internal/users"
	"github.com/karloscodes/cartridge/cache"
)

// SessionCookieName is the expected cookie name for session cookies in tests.
// This should match the pattern used in routes.go: cfg.AppName + "_session"
const SessionCookieName = "devrelay_session"

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with devrelay's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all devrelay models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&tenants.Tenant{},
		&users.User{},
		&developers.Developer{},
		&developers.Organization{},
		&developers.Identifier{},
		&activities.Activity{},
		&funnel.ActionMapping{},
		&campaigns.Campaign{},
		&campaigns.Budget{},
		&campaigns.Attribution{},
		&plugins.Plugin{},
		&plugins.PluginRun{},
	}
}

// SetupTestDB creates a test database with all devrelay models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by root test name so subtests share it.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set DEVRELAY_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestTenant creates a tenant, reusing an existing one with the same slug.
func CreateTestTenant(t *testing.T, db *gorm.DB, name string) *tenants.Tenant {
	t.Helper()

	slug := tenants.Slugify(name)
	if existing, err := tenants.FindBySlug(db, slug); err == nil {
		return existing
	}

	tenant, err := tenants.Create(db, name, slug)
	require.NoError(t, err)
	return tenant
}

// CreateTestUserForAuth creates a user with a properly hashed password
func CreateTestUserForAuth(t *testing.T, db *gorm.DB, tenantID uint, email, password string) *users.User {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := &users.User{
		TenantID:          tenantID,
		Email:             email,
		EncryptedPassword: string(hashedPassword),
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateTestDeveloper creates a developer profile for the tenant.
func CreateTestDeveloper(t *testing.T, db *gorm.DB, tenantID uint, displayName string) *developers.Developer {
	t.Helper()

	dev, err := developers.Create(db, GetLogger(), tenantID, developers.CreateDeveloperParams{
		DisplayName: displayName,
	})
	require.NoError(t, err)
	return dev
}

// CreateTestActivity records an activity for the tenant at the given time.
func CreateTestActivity(t *testing.T, db *gorm.DB, tenantID uint, anonID, action string, occurredAt time.Time) *activities.Activity {
	t.Helper()

	activity, err := activities.Collect(db, GetLogger(), tenantID, &activities.CollectActivityInput{
		AnonID:     anonID,
		Action:     action,
		OccurredAt: occurredAt,
	})
	require.NoError(t, err)
	return activity
}

// MapDefaultFunnel installs a simple action mapping covering all four stages.
func MapDefaultFunnel(t *testing.T, db *gorm.DB, tenantID uint) {
	t.Helper()

	err := funnel.ReplaceMappings(db, GetLogger(), tenantID, map[string]string{
		"docs_visit":    funnel.StageAwareness,
		"signup":        funnel.StageEngagement,
		"api_call":      funnel.StageAdoption,
		"talk_given":    funnel.StageAdvocacy,
		"blog_authored": funnel.StageAdvocacy,
	})
	require.NoError(t, err)
}

// InstallTestPlugin installs a plugin from a minimal valid manifest.
func InstallTestPlugin(t *testing.T, db *gorm.DB, tenantID uint, name string) *plugins.Plugin {
	t.Helper()

	manifest := fmt.Sprintf("name: %s\nversion: 1.0.0\nschedule_seconds: 3600\n", name)
	plugin, err := plugins.Install(db, GetLogger(), tenantID, []byte(manifest))
	require.NoError(t, err)
	return plugin
}

// NewUUID returns a random identifier for tests that need unique values.
func NewUUID() string {
	return uuid.NewString()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	// Rebind the mapping cache so stage lookups hit this test's database.
	funnel.InitMappingCache(db, GetLogger())

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

// LoginTestUser logs in through the JSON endpoint and returns the session cookie value.
func LoginTestUser(t *testing.T, app *fiber.App, email, password string) string {
	t.Helper()

	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	req := httptest.NewRequest("POST", "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var sessionValue string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			sessionValue = cookie.Value
			break
		}
	}
	require.NotEmpty(t, sessionValue)

	return sessionValue
}
