package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticrm/tire-storage-api/config"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/services"
	"github.com/ticrm/tire-storage-api/telegram"
	"github.com/ticrm/tire-storage-api/tests/testutil"
)

const (
	testBotToken      = "123456:TEST-TOKEN"
	testWebhookSecret = "hook-secret"
	testAdminID       = int64(1001)
)

// testApp is the full application wired to in-memory SQLite, a fake
// Bot API and a local photo directory.
type testApp struct {
	app      *application
	router   *gin.Engine
	telegram *testutil.FakeTelegram
	analyzer *services.MockAnalyzer
}

func newTestConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		GoEnv:                 "test",
		Timezone:              "UTC",
		TelegramBotToken:      testBotToken,
		TelegramBotUsername:   "ticrm_bot",
		TelegramWebhookSecret: testWebhookSecret,
		TelegramAPIURL:        apiURL,
		AdminTelegramIDs:      []int64{testAdminID},
		SessionSecret:         "test-session-secret",
		SessionMaxAge:         time.Hour,
		PublicAppURL:          "https://app.example.com",
		AnalysisTimeout:       time.Second,
		MessagingTimeout:      time.Second,
		StorageMode:           config.StorageModeLocal,
		UploadDir:             t.TempDir(),
		SupportPhone:          "+7 900 000-00-00",
		SupportEmail:          "support@example.com",
	}
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := testutil.NewFakeTelegram(t, testBotToken)
	cfg := newTestConfig(t, fake.URL())
	analyzer := &services.MockAnalyzer{}

	app, err := newApplication(cfg, testutil.NewTestDB(t), logger.Nop(), services.NewLocalPhotoStore(cfg.UploadDir), analyzer)
	require.NoError(t, err)

	return &testApp{app: app, router: setupRouter(app), telegram: fake, analyzer: analyzer}
}

// do sends a JSON request through the router. body may be nil.
func (ta *testApp) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)
	return w
}

// login signs the user in through the mini-app endpoint and returns a bearer header.
func (ta *testApp) login(t *testing.T, telegramID int64, firstName string) map[string]string {
	t.Helper()

	user, _ := json.Marshal(telegram.UserProfile{ID: telegramID, FirstName: firstName})
	initData := telegram.SignInitData(map[string]string{
		"auth_date": "1700000000",
		"user":      string(user),
	}, testBotToken)

	w := ta.do(t, http.MethodPost, "/api/auth/telegram", gin.H{"initData": initData}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "ticrm_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login should set the session cookie")
	return map[string]string{"Authorization": "Bearer " + cookie.Value}
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

// TestHealthCheck is a unit test for the healthCheck handler function
func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	healthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code, "Expected status code 200")

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err, "Response should be valid JSON")
	assert.Equal(t, true, response["success"], "Expected success to be true")
	assert.Equal(t, "TiCRM API is running", response["message"], "Expected correct message")
}

// TestHealthCheckResponseFormat tests the exact JSON format
func TestHealthCheckResponseFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	healthCheck(c)

	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Len(t, response, 2, "Response should have exactly 2 fields")
	assert.Contains(t, response, "success")
	assert.Contains(t, response, "message")
}

func TestDatabaseStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("lists migrated tables", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/database/status", nil)

		databaseStatus(db)(c)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeJSON(t, w)
		assert.Equal(t, true, body["success"])
		assert.Contains(t, body["tables"], "orders")
		assert.Contains(t, body["tables"], "users")
		assert.Contains(t, body["tables"], "notifications")
	})

	t.Run("closed connection", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/database/status", nil)

		databaseStatus(db)(c)

		require.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeJSON(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "DATABASE_CONNECTION_ERROR", body["error"].(map[string]interface{})["code"])
	})
}

func TestNewApplication(t *testing.T) {
	t.Run("requires a bot token", func(t *testing.T) {
		cfg := newTestConfig(t, "http://127.0.0.1:0")
		cfg.TelegramBotToken = ""

		_, err := newApplication(cfg, testutil.NewTestDB(t), logger.Nop(), services.NewMockPhotoStore(), &services.MockAnalyzer{})
		assert.Error(t, err)
	})

	t.Run("requires a session secret", func(t *testing.T) {
		cfg := newTestConfig(t, "http://127.0.0.1:0")
		cfg.SessionSecret = ""

		_, err := newApplication(cfg, testutil.NewTestDB(t), logger.Nop(), services.NewMockPhotoStore(), &services.MockAnalyzer{})
		assert.Error(t, err)
	})
}
