package campaigns_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devrelay/internal/campaigns"
	"devrelay/internal/testsupport"
)

func TestCampaignCreate(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	tenant := testsupport.CreateTestTenant(t, db, "Campaign CRUD")
	other := testsupport.CreateTestTenant(t, db, "Campaign Other")

	t.Run("requires a name", func(t *testing.T) {
		_, err := campaigns.Create(db, logger, tenant.ID, campaigns.CreateCampaignParams{})
		require.Error(t, err)
	})

	t.Run("rejects inverted date ranges", func(t *testing.T) {
		starts := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		ends := starts.AddDate(0, 0, -7)

		_, err := campaigns.Create(db, logger, tenant.ID, campaigns.CreateCampaignParams{
			Name:     "Backwards",
			StartsOn: &starts,
			EndsOn:   &ends,
		})
		require.Error(t, err)
	})

	t.Run("names are unique per tenant", func(t *testing.T) {
		_, err := campaigns.Create(db, logger, tenant.ID, campaigns.CreateCampaignParams{Name: "Summer Push"})
		require.NoError(t, err)

		_, err = campaigns.Create(db, logger, tenant.ID, campaigns.CreateCampaignParams{Name: "Summer Push"})
		assert.True(t, errors.Is(err, campaigns.ErrCampaignNameTaken))

		// The same name is free for another tenant.
		_, err = campaigns.Create(db, logger, other.ID, campaigns.CreateCampaignParams{Name: "Summer Push"})
		require.NoError(t, err)
	})
}

func TestCampaignTenantIsolation(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	tenantA := testsupport.CreateTestTenant(t, db, "Tenant A")
	tenantB := testsupport.CreateTestTenant(t, db, "Tenant B")

	campaign, err := campaigns.Create(db, logger, tenantA.ID, campaigns.CreateCampaignParams{Name: "Private"})
	require.NoError(t, err)

	_, err = campaigns.GetByUUID(db, tenantB.ID, campaign.UUID)
	var notFound *campaigns.CampaignNotFoundError
	require.ErrorAs(t, err, &notFound)

	err = campaigns.Delete(db, logger, tenantB.ID, campaign.UUID)
	require.ErrorAs(t, err, &notFound)

	// Still visible to its owner.
	found, err := campaigns.GetByUUID(db, tenantA.ID, campaign.UUID)
	require.NoError(t, err)
	assert.Equal(t, campaign.UUID, found.UUID)
}

func TestCampaignUpdateAndDelete(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	tenant := testsupport.CreateTestTenant(t, db, "Campaign Lifecycle")

	campaign, err := campaigns.Create(db, logger, tenant.ID, campaigns.CreateCampaignParams{
		Name:    "Old Name",
		Channel: "social",
	})
	require.NoError(t, err)

	t.Run("renames and keeps other fields", func(t *testing.T) {
		newName := "New Name"
		updated, err := campaigns.Update(db, logger, tenant.ID, campaign.UUID, campaigns.UpdateCampaignParams{
			Name: &newName,
		})
		require.NoError(t, err)
		assert.Equal(t, "New Name", updated.Name)
		assert.Equal(t, "social", updated.Channel)
	})

	t.Run("rename cannot collide", func(t *testing.T) {
		_, err := campaigns.Create(db, logger, tenant.ID, campaigns.CreateCampaignParams{Name: "Taken"})
		require.NoError(t, err)

		taken := "Taken"
		_, err = campaigns.Update(db, logger, tenant.ID, campaign.UUID, campaigns.UpdateCampaignParams{Name: &taken})
		assert.True(t, errors.Is(err, campaigns.ErrCampaignNameTaken))
	})

	t.Run("delete removes budgets too", func(t *testing.T) {
		_, err := campaigns.AddBudget(db, logger, tenant.ID, campaign.UUID, campaigns.CreateBudgetParams{
			Amount: "300",
		})
		require.NoError(t, err)

		require.NoError(t, campaigns.Delete(db, logger, tenant.ID, campaign.UUID))

		_, err = campaigns.GetByUUID(db, tenant.ID, campaign.UUID)
		var notFound *campaigns.CampaignNotFoundError
		require.ErrorAs(t, err, &notFound)

		var count int64
		require.NoError(t, db.Model(&campaigns.Budget{}).Where("tenant_id = ?", tenant.ID).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestAddBudget(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	tenant := testsupport.CreateTestTenant(t, db, "Budget Rules")

	campaign, err := campaigns.Create(db, logger, tenant.ID, campaigns.CreateCampaignParams{Name: "Budgeted"})
	require.NoError(t, err)

	t.Run("rejects non-decimal amounts", func(t *testing.T) {
		_, err := campaigns.AddBudget(db, logger, tenant.ID, campaign.UUID, campaigns.CreateBudgetParams{
			Amount: "lots",
		})
		require.Error(t, err)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := campaigns.AddBudget(db, logger, tenant.ID, campaign.UUID, campaigns.CreateBudgetParams{
			Amount: "-5",
		})
		require.Error(t, err)
	})

	t.Run("defaults currency and normalizes amount", func(t *testing.T) {
		budget, err := campaigns.AddBudget(db, logger, tenant.ID, campaign.UUID, campaigns.CreateBudgetParams{
			Category: "ads",
			Amount:   "150.50",
		})
		require.NoError(t, err)
		assert.Equal(t, "USD", budget.Currency)
		assert.Equal(t, "150.5", budget.Amount)

		budgets, err := campaigns.ListBudgets(db, tenant.ID, campaign.UUID)
		require.NoError(t, err)
		require.Len(t, budgets, 1)
	})
}
