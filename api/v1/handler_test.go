package v1_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devrelay/internal/testsupport"
)

func ingestRequest(apiKey, body string) *http.Request {
	req := httptest.NewRequest("POST", "/x/api/v1/plugins/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", apiKey)
	}
	return req
}

func decodeIngestResponse(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestIngestEventsAuth(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	tenant := testsupport.CreateTestTenant(t, db, "Ingest Auth")
	plugin := testsupport.InstallTestPlugin(t, db, tenant.ID, "auth-plugin")

	payload := `{"events":[{"anonId":"a1","action":"docs_visit"}]}`

	t.Run("missing header", func(t *testing.T) {
		resp, err := app.Test(ingestRequest("", payload), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("not a bearer token", func(t *testing.T) {
		resp, err := app.Test(ingestRequest("Basic abc", payload), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("empty key", func(t *testing.T) {
		resp, err := app.Test(ingestRequest("Bearer ", payload), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown key", func(t *testing.T) {
		resp, err := app.Test(ingestRequest("Bearer drk_definitely_not_issued", payload), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid key", func(t *testing.T) {
		resp, err := app.Test(ingestRequest("Bearer "+plugin.APIKey, payload), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	})
}

func TestIngestEventsBatch(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	tenant := testsupport.CreateTestTenant(t, db, "Ingest Batch")
	plugin := testsupport.InstallTestPlugin(t, db, tenant.ID, "batch-plugin")
	auth := "Bearer " + plugin.APIKey

	t.Run("empty batch", func(t *testing.T) {
		resp, err := app.Test(ingestRequest(auth, `{"events":[]}`), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("mixed batch reports per event", func(t *testing.T) {
		payload := `{"events":[
			{"anonId":"a1","action":"docs_visit","dedupKey":"batch-1"},
			{"anonId":"a1","action":"docs_visit","dedupKey":"batch-1"},
			{"action":"docs_visit"},
			{"anonId":"a2","action":"signup","occurredAt":"not-a-date"}
		]}`

		resp, err := app.Test(ingestRequest(auth, payload), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

		body := decodeIngestResponse(t, resp)
		assert.Equal(t, float64(1), body["accepted"])
		assert.Equal(t, float64(1), body["duplicates"])

		errs := body["errors"].([]interface{})
		require.Len(t, errs, 2)
		indexes := []float64{
			errs[0].(map[string]interface{})["index"].(float64),
			errs[1].(map[string]interface{})["index"].(float64),
		}
		assert.Equal(t, []float64{2, 3}, indexes)
	})

	t.Run("retrying a batch only reports duplicates", func(t *testing.T) {
		payload := `{"events":[{"anonId":"a3","action":"api_call","dedupKey":"retry-1"}]}`

		resp, err := app.Test(ingestRequest(auth, payload), 30000)
		require.NoError(t, err)
		body := decodeIngestResponse(t, resp)
		assert.Equal(t, float64(1), body["accepted"])

		resp, err = app.Test(ingestRequest(auth, payload), 30000)
		require.NoError(t, err)
		body = decodeIngestResponse(t, resp)
		assert.Equal(t, float64(0), body["accepted"])
		assert.Equal(t, float64(1), body["duplicates"])
	})

	t.Run("events land under the plugin's tenant", func(t *testing.T) {
		other := testsupport.CreateTestTenant(t, db, "Ingest Other")
		otherPlugin := testsupport.InstallTestPlugin(t, db, other.ID, "other-plugin")

		payload := `{"events":[{"anonId":"cross","action":"signup"}]}`
		resp, err := app.Test(ingestRequest("Bearer "+otherPlugin.APIKey, payload), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

		var count int64
		require.NoError(t, db.Table("activities").
			Where("tenant_id = ? AND anon_id = ?", other.ID, "cross").
			Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}
