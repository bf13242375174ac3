package developers

import (
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"devrelay/internal/tenants"
)

// DeveloperNotFoundError represents an error when a developer is not found
type DeveloperNotFoundError struct {
	UUID string
}

func (e *DeveloperNotFoundError) Error() string {
	return fmt.Sprintf("developer not found: %s", e.UUID)
}

// NewDeveloperNotFoundError creates a new DeveloperNotFoundError
func NewDeveloperNotFoundError(id string) *DeveloperNotFoundError {
	return &DeveloperNotFoundError{UUID: id}
}

// Developer represents a tracked member of the developer community.
type Developer struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	UUID           string    `gorm:"uniqueIndex;not null" json:"id"`
	TenantID       uint      `gorm:"index;not null" json:"-"`
	DisplayName    string    `gorm:"not null" json:"display_name"`
	Email          string    `json:"email"`
	OrganizationID *uint     `gorm:"index" json:"-"`
	Consented      bool      `gorm:"default:false" json:"consented"`
	Tags           string    `gorm:"default:'[]'" json:"tags"` // JSON array
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Organization groups developers under a company or community.
type Organization struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UUID      string    `gorm:"uniqueIndex;not null" json:"id"`
	TenantID  uint      `gorm:"index;not null" json:"-"`
	Name      string    `gorm:"not null" json:"name"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CreateDeveloperParams carries the fields accepted when creating a developer.
type CreateDeveloperParams struct {
	DisplayName      string
	Email            string
	OrganizationUUID string
	Consented        bool
	Tags             string
}

// Create inserts a new developer for the tenant.
func Create(db *gorm.DB, logger *slog.Logger, tenantID uint, params CreateDeveloperParams) (*Developer, error) {
	if params.DisplayName == "" {
		return nil, errors.New("display name is required")
	}

	dev := Developer{
		UUID:        uuid.NewString(),
		TenantID:    tenantID,
		DisplayName: params.DisplayName,
		Email:       params.Email,
		Consented:   params.Consented,
		Tags:        params.Tags,
	}
	if dev.Tags == "" {
		dev.Tags = "[]"
	}

	if params.OrganizationUUID != "" {
		org, err := GetOrganizationByUUID(db, tenantID, params.OrganizationUUID)
		if err != nil {
			return nil, err
		}
		dev.OrganizationID = &org.ID
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&dev).Error
	})
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// GetByUUID retrieves a developer by public ID within the tenant.
// Cross-tenant lookups report not-found rather than revealing existence.
func GetByUUID(db *gorm.DB, tenantID uint, id string) (*Developer, error) {
	var dev Developer
	err := db.Where("tenant_id = ? AND uuid = ?", tenantID, id).First(&dev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDeveloperNotFoundError(id)
		}
		return nil, err
	}
	return &dev, nil
}

// GetByID retrieves a developer by internal ID within the tenant.
func GetByID(db *gorm.DB, tenantID, id uint) (*Developer, error) {
	var dev Developer
	err := db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&dev).Error
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// List returns developers for the tenant, newest first.
func List(db *gorm.DB, tenantID uint, page, perPage int) ([]Developer, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}

	var total int64
	if err := tenants.Scoped(db, tenantID).Model(&Developer{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var devs []Developer
	err := tenants.Scoped(db, tenantID).
		Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&devs).Error
	if err != nil {
		return nil, 0, err
	}
	return devs, total, nil
}

// CountByTenant returns how many developers the tenant has.
func CountByTenant(db *gorm.DB, tenantID uint) (int64, error) {
	var total int64
	err := tenants.Scoped(db, tenantID).Model(&Developer{}).Count(&total).Error
	return total, err
}

// UpdateDeveloperParams carries the mutable developer fields.
type UpdateDeveloperParams struct {
	DisplayName *string
	Email       *string
	Consented   *bool
	Tags        *string
}

// Update applies the given changes to a developer.
func Update(db *gorm.DB, logger *slog.Logger, tenantID uint, id string, params UpdateDeveloperParams) (*Developer, error) {
	dev, err := GetByUUID(db, tenantID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if params.DisplayName != nil {
		if *params.DisplayName == "" {
			return nil, errors.New("display name cannot be empty")
		}
		updates["display_name"] = *params.DisplayName
	}
	if params.Email != nil {
		updates["email"] = *params.Email
	}
	if params.Consented != nil {
		updates["consented"] = *params.Consented
	}
	if params.Tags != nil {
		updates["tags"] = *params.Tags
	}
	if len(updates) == 0 {
		return dev, nil
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(dev).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Delete removes a developer and their identifiers. Activities keep their
// rows but lose the developer link (compliance deletion detaches identity).
func Delete(db *gorm.DB, logger *slog.Logger, tenantID uint, id string) error {
	dev, err := GetByUUID(db, tenantID, id)
	if err != nil {
		return err
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND developer_id = ?", tenantID, dev.ID).
			Delete(&Identifier{}).Error; err != nil {
			return err
		}
		if err := tx.Table("activities").
			Where("tenant_id = ? AND developer_id = ?", tenantID, dev.ID).
			Update("developer_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(dev).Error
	})
}

// CreateOrganization inserts a new organization for the tenant.
func CreateOrganization(db *gorm.DB, logger *slog.Logger, tenantID uint, name, domain string) (*Organization, error) {
	if name == "" {
		return nil, errors.New("organization name is required")
	}
	org := Organization{
		UUID:     uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
		Domain:   domain,
	}
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&org).Error
	})
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// GetOrganizationByUUID retrieves an organization by public ID within the tenant.
func GetOrganizationByUUID(db *gorm.DB, tenantID uint, id string) (*Organization, error) {
	var org Organization
	err := db.Where("tenant_id = ? AND uuid = ?", tenantID, id).First(&org).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}
