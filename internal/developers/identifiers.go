package developers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// IdentifierKind is the type of an external identifier.
type IdentifierKind string

const (
	IdentifierKindEmail  IdentifierKind = "email"
	IdentifierKindPhone  IdentifierKind = "phone"
	IdentifierKindDomain IdentifierKind = "domain"
	IdentifierKindGithub IdentifierKind = "github"
	IdentifierKindOther  IdentifierKind = "other"
)

// Identifier links an external handle (email, phone, GitHub login) to a
// developer. The (tenant, kind, value) triple is unique: one identifier can
// only ever belong to one developer per tenant.
type Identifier struct {
	ID          uint           `gorm:"primaryKey" json:"-"`
	TenantID    uint           `gorm:"uniqueIndex:idx_identifiers_tenant_kind_value;not null" json:"-"`
	DeveloperID uint           `gorm:"index;not null" json:"-"`
	Kind        IdentifierKind `gorm:"uniqueIndex:idx_identifiers_tenant_kind_value;not null" json:"kind"`
	Value       string         `gorm:"uniqueIndex:idx_identifiers_tenant_kind_value;not null" json:"value"`
	Confidence  float64        `json:"confidence"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// IdentifierConflictError is returned when an identifier is already claimed
// by a different developer in the same tenant.
type IdentifierConflictError struct {
	Kind  IdentifierKind
	Value string
}

func (e *IdentifierConflictError) Error() string {
	return fmt.Sprintf("identifier %s:%s already belongs to another developer", e.Kind, e.Value)
}

// ValidIdentifierKind reports whether the kind is one of the known kinds.
func ValidIdentifierKind(kind IdentifierKind) bool {
	switch kind {
	case IdentifierKindEmail, IdentifierKindPhone, IdentifierKindDomain,
		IdentifierKindGithub, IdentifierKindOther:
		return true
	}
	return false
}

// NormalizeIdentifier canonicalizes an identifier value before storage so
// that case or formatting differences don't create duplicates.
// Emails and domains are lowercased, phone numbers are reduced to digits
// (keeping a leading +), everything else is trimmed.
func NormalizeIdentifier(kind IdentifierKind, value string) string {
	value = strings.TrimSpace(value)
	switch kind {
	case IdentifierKindEmail, IdentifierKindDomain:
		return strings.ToLower(value)
	case IdentifierKindPhone:
		var b strings.Builder
		for i, r := range value {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			} else if r == '+' && i == 0 {
				b.WriteRune(r)
			}
		}
		return b.String()
	default:
		return value
	}
}

// ClaimIdentifierParams carries the fields of an identifier claim.
// A nil Confidence means the caller stated none and defaults to 1; an
// explicit zero is kept.
type ClaimIdentifierParams struct {
	Kind       IdentifierKind
	Value      string
	Confidence *float64
}

// ClaimIdentifier attaches an identifier to a developer.
//
// Re-claiming an identifier the developer already holds is idempotent and
// refreshes confidence and last-seen. Claiming an identifier held by a
// different developer returns IdentifierConflictError; merging is a manual
// operation.
func ClaimIdentifier(db *gorm.DB, logger *slog.Logger, tenantID uint, developerUUID string, params ClaimIdentifierParams) (*Identifier, error) {
	if !ValidIdentifierKind(params.Kind) {
		return nil, fmt.Errorf("invalid identifier kind: %s", params.Kind)
	}

	normalized := NormalizeIdentifier(params.Kind, params.Value)
	if normalized == "" {
		return nil, errors.New("identifier value cannot be empty")
	}
	confidence := 1.0
	if params.Confidence != nil {
		if *params.Confidence < 0 || *params.Confidence > 1 {
			return nil, errors.New("confidence must be between 0 and 1")
		}
		confidence = *params.Confidence
	}

	dev, err := GetByUUID(db, tenantID, developerUUID)
	if err != nil {
		return nil, err
	}

	var existing Identifier
	err = db.Where("tenant_id = ? AND kind = ? AND value = ?", tenantID, params.Kind, normalized).
		First(&existing).Error
	switch {
	case err == nil:
		if existing.DeveloperID != dev.ID {
			return nil, &IdentifierConflictError{Kind: params.Kind, Value: normalized}
		}
		// Same developer re-adding: refresh and return the existing row
		err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
			return tx.Model(&existing).Updates(map[string]interface{}{
				"confidence":   confidence,
				"last_seen_at": time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return nil, err
		}
		logger.Debug("Refreshed existing identifier",
			slog.String("kind", string(params.Kind)),
			slog.String("developer", developerUUID))
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		// New claim
	default:
		return nil, err
	}

	ident := Identifier{
		TenantID:    tenantID,
		DeveloperID: dev.ID,
		Kind:        params.Kind,
		Value:       normalized,
		Confidence:  confidence,
		LastSeenAt:  time.Now().UTC(),
	}
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&ident).Error
	})
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// ListIdentifiers returns all identifiers of a developer.
func ListIdentifiers(db *gorm.DB, tenantID uint, developerUUID string) ([]Identifier, error) {
	dev, err := GetByUUID(db, tenantID, developerUUID)
	if err != nil {
		return nil, err
	}

	var idents []Identifier
	err = db.Where("tenant_id = ? AND developer_id = ?", tenantID, dev.ID).
		Order("created_at ASC").
		Find(&idents).Error
	if err != nil {
		return nil, err
	}
	return idents, nil
}

// FindDeveloperByIdentifier resolves an identifier to its owning developer.
func FindDeveloperByIdentifier(db *gorm.DB, tenantID uint, kind IdentifierKind, value string) (*Developer, error) {
	normalized := NormalizeIdentifier(kind, value)

	var ident Identifier
	err := db.Where("tenant_id = ? AND kind = ? AND value = ?", tenantID, kind, normalized).
		First(&ident).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDeveloperNotFoundError(normalized)
		}
		return nil, err
	}
	return GetByID(db, tenantID, ident.DeveloperID)
}
