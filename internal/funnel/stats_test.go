package funnel_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devrelay/internal/funnel"
	"devrelay/internal/testsupport"
	"devrelay/internal/timeframe"
)

func TestGetStageStats(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	tenant := testsupport.CreateTestTenant(t, db, "Funnel Stats")
	testsupport.MapDefaultFunnel(t, db, tenant.ID)

	now := time.Now().UTC()

	t.Run("empty tenant reports all four stages", func(t *testing.T) {
		report, err := funnel.GetStageStats(db, tenant.ID)
		require.NoError(t, err)
		require.Len(t, report.Stages, 4)

		assert.Equal(t, funnel.StageAwareness, report.Stages[0].Stage)
		assert.Equal(t, funnel.StageEngagement, report.Stages[1].Stage)
		assert.Equal(t, funnel.StageAdoption, report.Stages[2].Stage)
		assert.Equal(t, funnel.StageAdvocacy, report.Stages[3].Stage)

		for i, stage := range report.Stages {
			assert.Zero(t, stage.UniqueDevelopers)
			assert.Zero(t, stage.TotalActivities)
			assert.Nil(t, stage.DropRate, "stage %d should have no drop rate", i)
			if i == 0 {
				assert.Nil(t, stage.PreviousCount)
			} else {
				require.NotNil(t, stage.PreviousCount)
				assert.Zero(t, *stage.PreviousCount)
			}
		}
		assert.Zero(t, report.OverallConversionRate)
	})

	t.Run("drop rates follow the funnel", func(t *testing.T) {
		// 10 identities visit docs, 4 sign up, 2 call the API, 1 gives a talk.
		for i := 0; i < 10; i++ {
			testsupport.CreateTestActivity(t, db, tenant.ID, fmt.Sprintf("anon-%d", i), "docs_visit", now)
		}
		for i := 0; i < 4; i++ {
			testsupport.CreateTestActivity(t, db, tenant.ID, fmt.Sprintf("anon-%d", i), "signup", now)
		}
		for i := 0; i < 2; i++ {
			testsupport.CreateTestActivity(t, db, tenant.ID, fmt.Sprintf("anon-%d", i), "api_call", now)
		}
		testsupport.CreateTestActivity(t, db, tenant.ID, "anon-0", "talk_given", now)

		report, err := funnel.GetStageStats(db, tenant.ID)
		require.NoError(t, err)
		require.Len(t, report.Stages, 4)

		assert.Equal(t, int64(10), report.Stages[0].UniqueDevelopers)
		assert.Equal(t, int64(4), report.Stages[1].UniqueDevelopers)
		assert.Equal(t, int64(2), report.Stages[2].UniqueDevelopers)
		assert.Equal(t, int64(1), report.Stages[3].UniqueDevelopers)

		assert.Nil(t, report.Stages[0].DropRate)
		require.NotNil(t, report.Stages[1].DropRate)
		assert.InDelta(t, 60.0, *report.Stages[1].DropRate, 0.001)
		require.NotNil(t, report.Stages[2].DropRate)
		assert.InDelta(t, 50.0, *report.Stages[2].DropRate, 0.001)
		require.NotNil(t, report.Stages[3].DropRate)
		assert.InDelta(t, 50.0, *report.Stages[3].DropRate, 0.001)

		require.NotNil(t, report.Stages[1].PreviousCount)
		assert.Equal(t, int64(10), *report.Stages[1].PreviousCount)

		assert.InDelta(t, 10.0, report.OverallConversionRate, 0.001)
	})

	t.Run("unmapped actions are excluded", func(t *testing.T) {
		testsupport.CreateTestActivity(t, db, tenant.ID, "anon-x", "unmapped_thing", now)

		report, err := funnel.GetStageStats(db, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), report.Stages[0].UniqueDevelopers)
	})
}

func TestGetStageStatsEmptyPreviousStage(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	tenant := testsupport.CreateTestTenant(t, db, "Funnel Gaps")
	testsupport.MapDefaultFunnel(t, db, tenant.ID)

	now := time.Now().UTC()

	// Only adoption activity: earlier stages stay empty.
	for i := 0; i < 5; i++ {
		testsupport.CreateTestActivity(t, db, tenant.ID, fmt.Sprintf("adopter-%d", i), "api_call", now)
	}

	report, err := funnel.GetStageStats(db, tenant.ID)
	require.NoError(t, err)
	require.Len(t, report.Stages, 4)

	assert.Equal(t, int64(0), report.Stages[0].UniqueDevelopers)
	assert.Equal(t, int64(5), report.Stages[2].UniqueDevelopers)

	// Engagement follows an empty stage: no drop rate.
	assert.Nil(t, report.Stages[1].DropRate)
	// Adoption follows an empty stage too.
	assert.Nil(t, report.Stages[2].DropRate)
	// Advocacy follows a populated stage: full drop.
	require.NotNil(t, report.Stages[3].DropRate)
	assert.InDelta(t, 100.0, *report.Stages[3].DropRate, 0.001)

	// Empty first stage pins the overall conversion at zero.
	assert.Zero(t, report.OverallConversionRate)
}

func TestGetStageStatsInvertedFunnel(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	tenant := testsupport.CreateTestTenant(t, db, "Funnel Inverted")
	testsupport.MapDefaultFunnel(t, db, tenant.ID)

	occurred := time.Date(2026, 4, 6, 12, 0, 0, 0, time.UTC)

	// More sign-ups than docs visitors: the stage outgrew its predecessor.
	for i := 0; i < 2; i++ {
		testsupport.CreateTestActivity(t, db, tenant.ID, fmt.Sprintf("seen-%d", i), "docs_visit", occurred)
	}
	for i := 0; i < 5; i++ {
		testsupport.CreateTestActivity(t, db, tenant.ID, fmt.Sprintf("joined-%d", i), "signup", occurred)
	}

	report, err := funnel.GetStageStats(db, tenant.ID)
	require.NoError(t, err)
	require.Len(t, report.Stages, 4)

	assert.Equal(t, int64(2), report.Stages[0].UniqueDevelopers)
	assert.Equal(t, int64(5), report.Stages[1].UniqueDevelopers)

	// Growth reads as a zero drop, never a negative rate.
	require.NotNil(t, report.Stages[1].DropRate)
	assert.Zero(t, *report.Stages[1].DropRate)
	require.NotNil(t, report.Stages[1].PreviousCount)
	assert.Equal(t, int64(2), *report.Stages[1].PreviousCount)

	// Timeline buckets go through the same computation.
	r, err := timeframe.ParseRange("2026-04-06", "2026-04-06", "day")
	require.NoError(t, err)

	timeline, err := funnel.GetTimeline(db, tenant.ID, r)
	require.NoError(t, err)
	require.Len(t, timeline.Buckets, 1)

	bucketRate := timeline.Buckets[0].Stages[1].DropRate
	require.NotNil(t, bucketRate)
	assert.Zero(t, *bucketRate)
}

func TestStageForAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	tenant := testsupport.CreateTestTenant(t, db, "Funnel Resolve")
	funnel.InitMappingCache(db, testsupport.GetLogger())
	testsupport.MapDefaultFunnel(t, db, tenant.ID)

	t.Run("resolves mapped actions", func(t *testing.T) {
		stage, err := funnel.StageForAction(db, tenant.ID, "signup")
		require.NoError(t, err)
		assert.Equal(t, funnel.StageEngagement, stage)
	})

	t.Run("unmapped actions resolve to empty", func(t *testing.T) {
		stage, err := funnel.StageForAction(db, tenant.ID, "carrier_pigeon")
		require.NoError(t, err)
		assert.Empty(t, stage)
	})

	t.Run("replacing mappings invalidates the cache", func(t *testing.T) {
		stage, err := funnel.StageForAction(db, tenant.ID, "docs_visit")
		require.NoError(t, err)
		require.Equal(t, funnel.StageAwareness, stage)

		require.NoError(t, funnel.ReplaceMappings(db, testsupport.GetLogger(), tenant.ID, map[string]string{
			"docs_visit": funnel.StageAdvocacy,
		}))

		stage, err = funnel.StageForAction(db, tenant.ID, "docs_visit")
		require.NoError(t, err)
		assert.Equal(t, funnel.StageAdvocacy, stage)
	})
}

func TestReplaceMappings(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	tenant := testsupport.CreateTestTenant(t, db, "Funnel Mappings")

	t.Run("rejects unknown stages", func(t *testing.T) {
		err := funnel.ReplaceMappings(db, testsupport.GetLogger(), tenant.ID, map[string]string{
			"signup": "retention",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown funnel stage")
	})

	t.Run("rejects empty actions", func(t *testing.T) {
		err := funnel.ReplaceMappings(db, testsupport.GetLogger(), tenant.ID, map[string]string{
			"": funnel.StageAwareness,
		})
		require.Error(t, err)
	})

	t.Run("replaces the full set", func(t *testing.T) {
		logger := testsupport.GetLogger()
		require.NoError(t, funnel.ReplaceMappings(db, logger, tenant.ID, map[string]string{
			"a": funnel.StageAwareness,
			"b": funnel.StageEngagement,
		}))
		require.NoError(t, funnel.ReplaceMappings(db, logger, tenant.ID, map[string]string{
			"c": funnel.StageAdoption,
		}))

		mappings, err := funnel.GetMappings(db, tenant.ID)
		require.NoError(t, err)
		require.Len(t, mappings, 1)
		assert.Equal(t, "c", mappings[0].Action)
		assert.Equal(t, funnel.StageAdoption, mappings[0].Stage)
	})
}
