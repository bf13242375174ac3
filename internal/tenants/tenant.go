// Package tenants holds the tenant model and tenant-scoping helpers.
// Every data row in the system belongs to exactly one tenant; queries in the
// domain packages must always filter on tenant_id.
package tenants

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Tenant represents an isolated workspace (one DevRel team or company).
type Tenant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      string    `gorm:"uniqueIndex;not null" json:"uuid"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ErrTenantExists is returned when creating a tenant with a taken slug.
var ErrTenantExists = errors.New("tenant already exists")

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Slugify converts a display name into a URL-safe slug.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = regexp.MustCompile(`[^a-z0-9]+`).ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Create registers a new tenant. The slug must be unique across the system.
func Create(db *gorm.DB, name, slug string) (*Tenant, error) {
	if name == "" {
		return nil, errors.New("tenant name cannot be empty")
	}
	if slug == "" {
		slug = Slugify(name)
	}
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("invalid tenant slug: %s", slug)
	}

	var existing Tenant
	if err := db.Where("slug = ?", slug).First(&existing).Error; err == nil {
		return nil, ErrTenantExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tenant := Tenant{
		UUID: uuid.NewString(),
		Name: name,
		Slug: slug,
	}
	err := sqlite.PerformWrite(slog.Default(), db, func(tx *gorm.DB) error {
		return tx.Create(&tenant).Error
	})
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindByID retrieves a tenant by internal ID.
func FindByID(db *gorm.DB, id uint) (*Tenant, error) {
	var tenant Tenant
	if err := db.First(&tenant, id).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindBySlug retrieves a tenant by slug.
func FindBySlug(db *gorm.DB, slug string) (*Tenant, error) {
	var tenant Tenant
	if err := db.Where("slug = ?", slug).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// Scoped returns a query builder restricted to the given tenant.
// The domain packages use it as the base of their list and count reads;
// single-row lookups add their own tenant_id filter inline.
func Scoped(db *gorm.DB, tenantID uint) *gorm.DB {
	return db.Where("tenant_id = ?", tenantID)
}
