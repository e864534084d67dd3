package controllers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/models"
	"github.com/ticrm/tire-storage-api/tests/testutil"
)

func orderRouter(f *fixture, user *models.User, exposeDetails bool) *gin.Engine {
	ctl := NewOrderController(f.orders, exposeDetails, logger.Nop())
	router := gin.New()
	if user != nil {
		router.Use(as(user))
	}
	router.POST("/api/v1/orders", ctl.CreateOrder)
	router.GET("/api/v1/orders", ctl.ListOrders)
	router.GET("/api/v1/orders/my", ctl.ListMyOrders)
	router.GET("/api/v1/orders/:id", ctl.GetOrder)
	router.POST("/api/v1/orders/:id/complete", ctl.CompleteOrder)
	return router
}

func validOrderBody() gin.H {
	return gin.H{
		"clientPhone":   "+79001112233",
		"clientName":    "Иван Петров",
		"storagePeriod": 6,
		"totalCost":     "12000",
		"tires": []gin.H{{
			"brand":        "Nokian",
			"model":        "Hakkapeliitta 10",
			"size":         "225/45 R17",
			"season":       "winter",
			"wearLevel":    20,
			"quantity":     4,
			"pricePerUnit": "3000",
			"photos":       []string{testutil.PNGDataURI()},
		}},
		"services": []gin.H{{"type": "balancing", "price": "800"}},
	}
}

func TestCreateOrder(t *testing.T) {
	t.Run("staff create an order", func(t *testing.T) {
		f := newFixture(t)
		manager := f.createUser(t, models.RoleManager, "+79000000001")

		w := perform(orderRouter(f, manager, false), http.MethodPost, "/api/v1/orders", validOrderBody())

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		body := decode(t, w)
		assert.Equal(t, true, body["success"])

		order := body["order"].(map[string]interface{})
		assert.Regexp(t, `^\d{6}-\d{6}$`, order["orderNumber"])
		assert.Equal(t, manager.ID.String(), order["managerId"])
		assert.Equal(t, "Склад 1", order["warehouse"])
		assert.Equal(t, "12000", order["totalCost"])
		assert.Len(t, order["services"], 1)
		assert.Len(t, f.store.GetUploadedFiles(), 1)

		client := order["client"].(map[string]interface{})
		assert.Equal(t, "+79001112233", client["phone"])
	})

	t.Run("request validation", func(t *testing.T) {
		f := newFixture(t)
		manager := f.createUser(t, models.RoleManager, "+79000000001")
		router := orderRouter(f, manager, false)

		tests := []struct {
			name   string
			mutate func(gin.H)
		}{
			{"missing phone", func(b gin.H) { delete(b, "clientPhone") }},
			{"no tires", func(b gin.H) { b["tires"] = []gin.H{} }},
			{"zero period", func(b gin.H) { b["storagePeriod"] = 0 }},
			{"bad season", func(b gin.H) { b["tires"].([]gin.H)[0]["season"] = "spring" }},
			{"wear above 100", func(b gin.H) { b["tires"].([]gin.H)[0]["wearLevel"] = 101 }},
			{"service without type", func(b gin.H) { b["services"] = []gin.H{{"price": "10"}} }},
			{"invalid phone", func(b gin.H) { b["clientPhone"] = "12-34" }},
			{"broken photo", func(b gin.H) { b["tires"].([]gin.H)[0]["photos"] = []string{"data:image/png;base64,!!!"} }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				body := validOrderBody()
				tt.mutate(body)

				w := perform(router, http.MethodPost, "/api/v1/orders", body)

				assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
				assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
			})
		}

		var count int64
		f.db.Model(&models.Order{}).Count(&count)
		assert.Zero(t, count)
	})

	t.Run("malformed json", func(t *testing.T) {
		f := newFixture(t)
		manager := f.createUser(t, models.RoleManager, "+79000000001")

		w := perform(orderRouter(f, manager, false), http.MethodPost, "/api/v1/orders", `{"clientPhone":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("internal errors expose details only when enabled", func(t *testing.T) {
		for _, expose := range []bool{true, false} {
			f := newFixture(t)
			manager := f.createUser(t, models.RoleManager, "+79000000001")
			router := orderRouter(f, manager, expose)
			sqlDB, err := f.db.DB()
			require.NoError(t, err)
			require.NoError(t, sqlDB.Close())

			w := perform(router, http.MethodPost, "/api/v1/orders", validOrderBody())

			require.Equal(t, http.StatusInternalServerError, w.Code)
			errBody := decode(t, w)["error"].(map[string]interface{})
			assert.Equal(t, "INTERNAL_ERROR", errBody["code"])
			if expose {
				assert.NotEmpty(t, errBody["details"])
			} else {
				assert.NotContains(t, errBody, "details")
			}
		}
	})

	t.Run("no session", func(t *testing.T) {
		f := newFixture(t)

		w := perform(orderRouter(f, nil, false), http.MethodPost, "/api/v1/orders", validOrderBody())

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
	})
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	manager := f.createUser(t, models.RoleManager, "+79000000001")
	alice := f.createUser(t, models.RoleClient, "+79000000002")
	bob := f.createUser(t, models.RoleClient, "+79000000003")
	f.seedOrder(t, alice)
	f.seedOrder(t, alice)
	f.seedOrder(t, bob)

	t.Run("staff see every order", func(t *testing.T) {
		w := perform(orderRouter(f, manager, false), http.MethodGet, "/api/v1/orders", nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Len(t, body["orders"], 3)
		assert.Equal(t, float64(3), body["pagination"].(map[string]interface{})["total"])
	})

	t.Run("staff filter by client", func(t *testing.T) {
		w := perform(orderRouter(f, manager, false), http.MethodGet, "/api/v1/orders?clientId="+bob.ID.String(), nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode(t, w)["orders"], 1)
	})

	t.Run("clients only see their own", func(t *testing.T) {
		w := perform(orderRouter(f, bob, false), http.MethodGet, "/api/v1/orders?clientId="+alice.ID.String(), nil)

		require.Equal(t, http.StatusOK, w.Code)
		orders := decode(t, w)["orders"].([]interface{})
		require.Len(t, orders, 1)
		assert.Equal(t, bob.ID.String(), orders[0].(map[string]interface{})["clientId"])
	})

	t.Run("clients ignore a malformed client id", func(t *testing.T) {
		w := perform(orderRouter(f, bob, false), http.MethodGet, "/api/v1/orders?clientId=not-a-uuid", nil)

		require.Equal(t, http.StatusOK, w.Code)
		orders := decode(t, w)["orders"].([]interface{})
		require.Len(t, orders, 1)
		assert.Equal(t, bob.ID.String(), orders[0].(map[string]interface{})["clientId"])
	})

	t.Run("pagination", func(t *testing.T) {
		w := perform(orderRouter(f, manager, false), http.MethodGet, "/api/v1/orders?page=2&limit=2", nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Len(t, body["orders"], 1)
		page := body["pagination"].(map[string]interface{})
		assert.Equal(t, float64(2), page["page"])
		assert.Equal(t, float64(2), page["limit"])
	})

	t.Run("bad client id", func(t *testing.T) {
		w := perform(orderRouter(f, manager, false), http.MethodGet, "/api/v1/orders?clientId=42", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
	})

	t.Run("unknown status", func(t *testing.T) {
		w := perform(orderRouter(f, manager, false), http.MethodGet, "/api/v1/orders?status=lost", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
	})
}

func TestListMyOrders(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, models.RoleClient, "+79000000002")
	open := f.seedOrder(t, alice)
	done := f.seedOrder(t, alice)
	require.NoError(t, f.db.Model(done).Update("status", models.OrderStatusCompleted).Error)

	w := perform(orderRouter(f, alice, false), http.MethodGet, "/api/v1/orders/my", nil)

	require.Equal(t, http.StatusOK, w.Code)
	orders := decode(t, w)["orders"].([]interface{})
	require.Len(t, orders, 1)
	assert.Equal(t, open.ID.String(), orders[0].(map[string]interface{})["id"])
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	partner := f.createUser(t, models.RolePartner, "+79000000001")
	alice := f.createUser(t, models.RoleClient, "+79000000002")
	bob := f.createUser(t, models.RoleClient, "+79000000003")
	order := f.seedOrder(t, alice)

	tests := []struct {
		name     string
		user     *models.User
		id       string
		wantCode int
		wantErr  string
	}{
		{"owner", alice, order.ID.String(), http.StatusOK, ""},
		{"staff", partner, order.ID.String(), http.StatusOK, ""},
		{"another client", bob, order.ID.String(), http.StatusForbidden, "FORBIDDEN"},
		{"unknown order", alice, randomID(), http.StatusNotFound, "ORDER_NOT_FOUND"},
		{"malformed id", alice, "not-a-uuid", http.StatusBadRequest, "INVALID_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(orderRouter(f, tt.user, false), http.MethodGet, "/api/v1/orders/"+tt.id, nil)

			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, errorCode(t, w))
				return
			}
			assert.Equal(t, order.OrderNumber, decode(t, w)["order"].(map[string]interface{})["orderNumber"])
		})
	}
}

func TestCompleteOrder(t *testing.T) {
	f := newFixture(t)
	manager := f.createUser(t, models.RoleManager, "+79000000001")
	alice := f.createUser(t, models.RoleClient, "+79000000002")
	order := f.seedOrder(t, alice)
	router := orderRouter(f, manager, false)

	w := perform(router, http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.OrderStatusCompleted, decode(t, w)["order"].(map[string]interface{})["status"])

	w = perform(router, http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/complete", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(router, http.MethodPost, "/api/v1/orders/"+randomID()+"/complete", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", errorCode(t, w))

	w = perform(router, http.MethodPost, "/api/v1/orders/nope/complete", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", errorCode(t, w))
}
