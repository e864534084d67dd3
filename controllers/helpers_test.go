package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/middleware"
	"github.com/ticrm/tire-storage-api/models"
	"github.com/ticrm/tire-storage-api/services"
	"github.com/ticrm/tire-storage-api/tests/testutil"
	"gorm.io/gorm"
)

// fixture wires real services to an in-memory database and fakes.
type fixture struct {
	db            *gorm.DB
	users         *services.UserService
	orders        *services.OrderService
	notifications *services.NotificationService
	store         *services.MockPhotoStore
	messenger     *services.MockMessenger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	f := &fixture{
		db:        db,
		store:     services.NewMockPhotoStore(),
		messenger: &services.MockMessenger{},
	}
	log := logger.Nop()
	f.users = services.NewUserService(db, nil, log)
	f.notifications = services.NewNotificationService(db, f.messenger, time.Second, log)
	f.orders = services.NewOrderService(db, services.NewPhotoService(f.store), &services.MockAnalyzer{}, f.notifications, services.OrderServiceOptions{
		Location:        time.UTC,
		AnalysisTimeout: time.Second,
	}, log)
	return f
}

func (f *fixture) createUser(t *testing.T, role, phone string) *models.User {
	t.Helper()
	user := &models.User{FullName: "User " + phone, Phone: &phone, Role: role}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

var seededOrders atomic.Int64

// seedOrder inserts an active order directly, bypassing number generation.
func (f *fixture) seedOrder(t *testing.T, client *models.User) *models.Order {
	t.Helper()
	start := time.Now().UTC().Truncate(time.Second)
	n := seededOrders.Add(1)
	order := &models.Order{
		OrderNumber:   fmt.Sprintf("250101-%06d", n),
		ClientID:      client.ID,
		StoragePeriod: 6,
		StartDate:     start,
		EndDate:       start.AddDate(0, 6, 0),
		ReminderDate:  start.AddDate(0, 6, -30),
		Warehouse:     "Склад 1",
		Cell:          "A-1",
		Status:        models.OrderStatusActive,
	}
	require.NoError(t, f.db.Create(order).Error)
	return order
}

// as attaches a session the way RequireSession would.
func as(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetSession(c, &middleware.Session{
			UserID:    user.ID,
			Role:      user.Role,
			Name:      user.FullName,
			ExpiresAt: time.Now().Add(time.Hour),
		})
		c.Next()
	}
}

func perform(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	errBody, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected an error envelope, got %s", w.Body.String())
	return errBody["code"].(string)
}

func randomID() string {
	return uuid.NewString()
}

func performWithHeader(router *gin.Engine, method, path, key, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(key, value)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
