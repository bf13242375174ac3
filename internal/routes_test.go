package internal_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devrelay/internal/testsupport"
)

func authRequest(method, path, cookie, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", testsupport.SessionCookieName+"="+cookie)
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAPIAuthentication(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	tenant := testsupport.CreateTestTenant(t, db, "Auth Tenant")
	testsupport.CreateTestUserForAuth(t, db, tenant.ID, "auth@example.com", "correct-horse")

	t.Run("api requires a session", func(t *testing.T) {
		resp, err := app.Test(authRequest("GET", "/api/developers", "", ""), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "Unauthorized", body["error"])
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/login", "",
			`{"email":"auth@example.com","password":"nope"}`), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown user is rejected the same way", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/login", "",
			`{"email":"ghost@example.com","password":"nope"}`), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("login grants api access", func(t *testing.T) {
		cookie := testsupport.LoginTestUser(t, app, "auth@example.com", "correct-horse")

		resp, err := app.Test(authRequest("GET", "/api/developers", cookie, ""), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Contains(t, body, "developers")
		assert.Contains(t, body, "pagination")
	})

	t.Run("health check needs no auth", func(t *testing.T) {
		resp, err := app.Test(authRequest("GET", "/_health", "", ""), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}

func TestAPIDeveloperFlow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	tenant := testsupport.CreateTestTenant(t, db, "Flow Tenant")
	testsupport.CreateTestUserForAuth(t, db, tenant.ID, "flow@example.com", "pass-1234")
	cookie := testsupport.LoginTestUser(t, app, "flow@example.com", "pass-1234")

	var developerID string

	t.Run("create", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/api/developers", cookie,
			`{"display_name":"Ada Kowalski","email":"ada@example.com"}`), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		developerID, _ = body["id"].(string)
		require.NotEmpty(t, developerID)
	})

	t.Run("create without display name", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/api/developers", cookie,
			`{"email":"nameless@example.com"}`), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("show", func(t *testing.T) {
		resp, err := app.Test(authRequest("GET", "/api/developers/"+developerID, cookie, ""), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Contains(t, body, "developer")
		assert.Contains(t, body, "identifiers")
	})

	t.Run("malformed id", func(t *testing.T) {
		resp, err := app.Test(authRequest("GET", "/api/developers/not-a-uuid", cookie, ""), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "Invalid identifier", body["error"])
	})

	t.Run("unknown id", func(t *testing.T) {
		resp, err := app.Test(authRequest("GET", "/api/developers/"+testsupport.NewUUID(), cookie, ""), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("claim and lookup identifier", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/api/developers/"+developerID+"/identifiers", cookie,
			`{"kind":"github","value":"adak"}`), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		resp, err = app.Test(authRequest("GET", "/api/developers/lookup?kind=github&value=adak", cookie, ""), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, developerID, body["id"])
	})

	t.Run("conflicting claim", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/api/developers", cookie,
			`{"display_name":"Bruno"}`), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
		otherID := decodeBody(t, resp)["id"].(string)

		resp, err = app.Test(authRequest("POST", "/api/developers/"+otherID+"/identifiers", cookie,
			`{"kind":"github","value":"adak"}`), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	})
}

func TestAPITenantIsolation(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	tenantA := testsupport.CreateTestTenant(t, db, "Iso Alpha")
	tenantB := testsupport.CreateTestTenant(t, db, "Iso Beta")
	testsupport.CreateTestUserForAuth(t, db, tenantA.ID, "alpha@example.com", "pass-1234")
	testsupport.CreateTestUserForAuth(t, db, tenantB.ID, "beta@example.com", "pass-1234")

	dev := testsupport.CreateTestDeveloper(t, db, tenantA.ID, "Private Dev")

	cookieA := testsupport.LoginTestUser(t, app, "alpha@example.com", "pass-1234")
	cookieB := testsupport.LoginTestUser(t, app, "beta@example.com", "pass-1234")

	t.Run("owner sees the developer", func(t *testing.T) {
		resp, err := app.Test(authRequest("GET", "/api/developers/"+dev.UUID, cookieA, ""), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("other tenant gets not found", func(t *testing.T) {
		resp, err := app.Test(authRequest("GET", "/api/developers/"+dev.UUID, cookieB, ""), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestAPIActivitiesAndFunnel(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	tenant := testsupport.CreateTestTenant(t, db, "Activity Tenant")
	testsupport.CreateTestUserForAuth(t, db, tenant.ID, "act@example.com", "pass-1234")
	cookie := testsupport.LoginTestUser(t, app, "act@example.com", "pass-1234")

	t.Run("collect activity", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/api/activities", cookie,
			`{"anon_id":"a1","action":"docs_visit","dedup_key":"evt-1"}`), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	})

	t.Run("duplicate dedup key conflicts", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/api/activities", cookie,
			`{"anon_id":"a1","action":"docs_visit","dedup_key":"evt-1"}`), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	})

	t.Run("identity is required", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/api/activities", cookie,
			`{"action":"docs_visit"}`), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("replace and read mappings", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/api/funnel/mappings", cookie,
			`{"mappings":{"docs_visit":"awareness","signup":"engagement"}}`), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		resp, err = app.Test(authRequest("GET", "/api/funnel/mappings", cookie, ""), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		mappings := body["mappings"].(map[string]interface{})
		assert.Equal(t, "awareness", mappings["docs_visit"])
	})

	t.Run("unknown stage in mappings", func(t *testing.T) {
		resp, err := app.Test(authRequest("POST", "/api/funnel/mappings", cookie,
			`{"mappings":{"signup":"retention"}}`), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("funnel report always has four stages", func(t *testing.T) {
		resp, err := app.Test(authRequest("GET", "/api/funnel", cookie, ""), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		stages := body["stages"].([]interface{})
		assert.Len(t, stages, 4)
	})

	t.Run("timeline rejects inverted ranges", func(t *testing.T) {
		resp, err := app.Test(authRequest("GET",
			"/api/funnel/timeline?from=2026-02-01&to=2026-01-01&granularity=day", cookie, ""), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPICampaignROI(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	tenant := testsupport.CreateTestTenant(t, db, "ROI API Tenant")
	testsupport.CreateTestUserForAuth(t, db, tenant.ID, "roi@example.com", "pass-1234")
	cookie := testsupport.LoginTestUser(t, app, "roi@example.com", "pass-1234")

	resp, err := app.Test(authRequest("POST", "/api/campaigns", cookie,
		`{"name":"Launch Week","channel":"social"}`), 30000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	campaignID := decodeBody(t, resp)["id"].(string)

	resp, err = app.Test(authRequest("POST", fmt.Sprintf("/api/campaigns/%s/budgets", campaignID), cookie,
		`{"category":"ads","amount":"1000"}`), 30000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = app.Test(authRequest("POST", "/api/activities", cookie,
		`{"anon_id":"buyer","action":"purchase","value":"2500"}`), 30000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	activityID := decodeBody(t, resp)["id"].(string)

	resp, err = app.Test(authRequest("POST", fmt.Sprintf("/api/campaigns/%s/attributions", campaignID), cookie,
		fmt.Sprintf(`{"activity_id":%q}`, activityID)), 30000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = app.Test(authRequest("GET", fmt.Sprintf("/api/campaigns/%s/roi", campaignID), cookie, ""), 30000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "1000", body["total_cost"])
	assert.Equal(t, "2500", body["total_value"])
	assert.InDelta(t, 150.0, body["roi"].(float64), 0.001)

	t.Run("unknown campaign", func(t *testing.T) {
		resp, err := app.Test(authRequest("GET", "/api/campaigns/"+testsupport.NewUUID()+"/roi", cookie, ""), 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestAPIDashboard(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	tenant := testsupport.CreateTestTenant(t, db, "Dashboard Tenant")
	testsupport.CreateTestUserForAuth(t, db, tenant.ID, "dash@example.com", "pass-1234")
	cookie := testsupport.LoginTestUser(t, app, "dash@example.com", "pass-1234")
	testsupport.MapDefaultFunnel(t, db, tenant.ID)

	for _, body := range []string{
		`{"anon_id":"d1","action":"docs_visit"}`,
		`{"anon_id":"d2","action":"docs_visit"}`,
		`{"anon_id":"d1","action":"night_mode_toggled"}`,
	} {
		resp, err := app.Test(authRequest("POST", "/api/activities", cookie, body), 30000)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	resp, err := app.Test(authRequest("GET", "/api/dashboard", cookie, ""), 30000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.EqualValues(t, 3, body["total_activities"])

	topActions := body["top_actions"].([]interface{})
	require.Len(t, topActions, 2)

	first := topActions[0].(map[string]interface{})
	assert.Equal(t, "docs_visit", first["action"])
	assert.EqualValues(t, 2, first["count"])
	assert.Equal(t, "awareness", first["stage"])

	// Unmapped actions carry no stage.
	second := topActions[1].(map[string]interface{})
	assert.Equal(t, "night_mode_toggled", second["action"])
	assert.NotContains(t, second, "stage")
}
