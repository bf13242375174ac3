package developers_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devrelay/internal/developers"
	"devrelay/internal/testsupport"
)

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		kind     developers.IdentifierKind
		value    string
		expected string
	}{
		{"email lowercased", developers.IdentifierKindEmail, " Ada@Example.COM ", "ada@example.com"},
		{"domain lowercased", developers.IdentifierKindDomain, "Example.COM", "example.com"},
		{"phone keeps leading plus", developers.IdentifierKindPhone, "+1 (555) 010-2030", "+15550102030"},
		{"phone drops inner plus", developers.IdentifierKindPhone, "555+010", "555010"},
		{"github trimmed only", developers.IdentifierKindGithub, "  AdaK  ", "AdaK"},
		{"other trimmed only", developers.IdentifierKindOther, " handle ", "handle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, developers.NormalizeIdentifier(tt.kind, tt.value))
		})
	}
}

func TestClaimIdentifier(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	tenant := testsupport.CreateTestTenant(t, db, "Identifier Tenant")

	ada := testsupport.CreateTestDeveloper(t, db, tenant.ID, "Ada")
	bruno := testsupport.CreateTestDeveloper(t, db, tenant.ID, "Bruno")

	t.Run("rejects unknown kinds", func(t *testing.T) {
		_, err := developers.ClaimIdentifier(db, logger, tenant.ID, ada.UUID, developers.ClaimIdentifierParams{
			Kind:  "carrier_pigeon",
			Value: "coo",
		})
		require.Error(t, err)
	})

	t.Run("rejects empty values", func(t *testing.T) {
		_, err := developers.ClaimIdentifier(db, logger, tenant.ID, ada.UUID, developers.ClaimIdentifierParams{
			Kind:  developers.IdentifierKindEmail,
			Value: "   ",
		})
		require.Error(t, err)
	})

	t.Run("stores the normalized value", func(t *testing.T) {
		ident, err := developers.ClaimIdentifier(db, logger, tenant.ID, ada.UUID, developers.ClaimIdentifierParams{
			Kind:  developers.IdentifierKindEmail,
			Value: "Ada@Example.COM",
		})
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", ident.Value)
		assert.InDelta(t, 1.0, ident.Confidence, 0.001)
	})

	t.Run("re-claim by the same developer is idempotent", func(t *testing.T) {
		first, err := developers.ClaimIdentifier(db, logger, tenant.ID, ada.UUID, developers.ClaimIdentifierParams{
			Kind:  developers.IdentifierKindGithub,
			Value: "adak",
		})
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		lowered := 0.8
		second, err := developers.ClaimIdentifier(db, logger, tenant.ID, ada.UUID, developers.ClaimIdentifierParams{
			Kind:       developers.IdentifierKindGithub,
			Value:      "adak",
			Confidence: &lowered,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		idents, err := developers.ListIdentifiers(db, tenant.ID, ada.UUID)
		require.NoError(t, err)

		var refreshed *developers.Identifier
		for i := range idents {
			if idents[i].Kind == developers.IdentifierKindGithub {
				refreshed = &idents[i]
			}
		}
		require.NotNil(t, refreshed)
		assert.InDelta(t, 0.8, refreshed.Confidence, 0.001)
		assert.True(t, refreshed.LastSeenAt.After(first.LastSeenAt))
	})

	t.Run("explicit zero confidence is kept", func(t *testing.T) {
		zero := 0.0
		ident, err := developers.ClaimIdentifier(db, logger, tenant.ID, ada.UUID, developers.ClaimIdentifierParams{
			Kind:       developers.IdentifierKindOther,
			Value:      "guessed-handle",
			Confidence: &zero,
		})
		require.NoError(t, err)
		assert.Zero(t, ident.Confidence)

		var stored developers.Identifier
		require.NoError(t, db.Where("tenant_id = ? AND kind = ? AND value = ?",
			tenant.ID, developers.IdentifierKindOther, "guessed-handle").First(&stored).Error)
		assert.Zero(t, stored.Confidence)
	})

	t.Run("rejects out of range confidence", func(t *testing.T) {
		over := 1.2
		_, err := developers.ClaimIdentifier(db, logger, tenant.ID, ada.UUID, developers.ClaimIdentifierParams{
			Kind:       developers.IdentifierKindOther,
			Value:      "overconfident",
			Confidence: &over,
		})
		require.Error(t, err)
	})

	t.Run("claim by a different developer conflicts", func(t *testing.T) {
		_, err := developers.ClaimIdentifier(db, logger, tenant.ID, bruno.UUID, developers.ClaimIdentifierParams{
			Kind:  developers.IdentifierKindEmail,
			Value: "ADA@example.com",
		})

		var conflict *developers.IdentifierConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "ada@example.com", conflict.Value)
	})

	t.Run("same identifier is free in another tenant", func(t *testing.T) {
		other := testsupport.CreateTestTenant(t, db, "Identifier Other")
		dev := testsupport.CreateTestDeveloper(t, db, other.ID, "Other Ada")

		_, err := developers.ClaimIdentifier(db, logger, other.ID, dev.UUID, developers.ClaimIdentifierParams{
			Kind:  developers.IdentifierKindEmail,
			Value: "ada@example.com",
		})
		require.NoError(t, err)
	})
}

func TestFindDeveloperByIdentifier(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	tenant := testsupport.CreateTestTenant(t, db, "Lookup Tenant")
	dev := testsupport.CreateTestDeveloper(t, db, tenant.ID, "Ada")

	_, err := developers.ClaimIdentifier(db, logger, tenant.ID, dev.UUID, developers.ClaimIdentifierParams{
		Kind:  developers.IdentifierKindEmail,
		Value: "ada@example.com",
	})
	require.NoError(t, err)

	t.Run("resolves through normalization", func(t *testing.T) {
		found, err := developers.FindDeveloperByIdentifier(db, tenant.ID, developers.IdentifierKindEmail, " ADA@Example.com ")
		require.NoError(t, err)
		assert.Equal(t, dev.UUID, found.UUID)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := developers.FindDeveloperByIdentifier(db, tenant.ID, developers.IdentifierKindEmail, "nobody@example.com")

		var notFound *developers.DeveloperNotFoundError
		require.ErrorAs(t, err, &notFound)
	})
}

func TestDeveloperDelete(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	tenant := testsupport.CreateTestTenant(t, db, "Delete Tenant")
	dev := testsupport.CreateTestDeveloper(t, db, tenant.ID, "Ada")

	_, err := developers.ClaimIdentifier(db, logger, tenant.ID, dev.UUID, developers.ClaimIdentifierParams{
		Kind:  developers.IdentifierKindEmail,
		Value: "ada@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, developers.Delete(db, logger, tenant.ID, dev.UUID))

	var notFound *developers.DeveloperNotFoundError
	_, err = developers.GetByUUID(db, tenant.ID, dev.UUID)
	require.ErrorAs(t, err, &notFound)

	var count int64
	require.NoError(t, db.Model(&developers.Identifier{}).Where("tenant_id = ?", tenant.ID).Count(&count).Error)
	assert.Zero(t, count)
}
