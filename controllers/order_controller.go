package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/middleware"
	"github.com/ticrm/tire-storage-api/models"
	"github.com/ticrm/tire-storage-api/services"
)

type OrderController struct {
	orders        *services.OrderService
	exposeDetails bool
	log           logger.ILogger
}

// NewOrderController builds the order handlers. exposeDetails adds internal
// error text to 500 responses and must be false in production.
func NewOrderController(orders *services.OrderService, exposeDetails bool, log logger.ILogger) *OrderController {
	return &OrderController{orders: orders, exposeDetails: exposeDetails, log: log}
}

// TireRequest is one tire set in a create-order request
type TireRequest struct {
	Brand        string          `json:"brand" binding:"required"`
	Model        string          `json:"model"`
	Size         string          `json:"size" binding:"required"`
	Season       string          `json:"season" binding:"required,oneof=summer winter all-season"`
	Description  string          `json:"description"`
	WearLevel    *int            `json:"wearLevel" binding:"omitempty,min=0,max=100"`
	DotCodes     []string        `json:"dotCodes"`
	Photos       []string        `json:"photos"`
	Quantity     int             `json:"quantity" binding:"omitempty,min=1"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
}

type ServiceRequest struct {
	Type        string          `json:"type" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// CreateOrderRequest represents the request body for creating an order
type CreateOrderRequest struct {
	ClientPhone     string           `json:"clientPhone" binding:"required"`
	ClientName      string           `json:"clientName"`
	ClientCarNumber string           `json:"clientCarNumber"`
	ClientAddress   string           `json:"clientAddress"`
	Tires           []TireRequest    `json:"tires" binding:"required,min=1,dive"`
	Services        []ServiceRequest `json:"services" binding:"omitempty,dive"`
	StoragePeriod   int              `json:"storagePeriod" binding:"required,gt=0"`
	StartDate       *time.Time       `json:"startDate"`
	Warehouse       string           `json:"warehouse"`
	Cell            string           `json:"cell"`
	TotalCost       decimal.Decimal  `json:"totalCost"`
	Debt            decimal.Decimal  `json:"debt"`
}

func (r CreateOrderRequest) toInput(managerID *uuid.UUID) services.CreateOrderInput {
	in := services.CreateOrderInput{
		ClientPhone:     r.ClientPhone,
		ClientName:      r.ClientName,
		ClientCarNumber: r.ClientCarNumber,
		ClientAddress:   r.ClientAddress,
		StoragePeriod:   r.StoragePeriod,
		StartDate:       r.StartDate,
		Warehouse:       r.Warehouse,
		Cell:            r.Cell,
		TotalCost:       r.TotalCost,
		Debt:            r.Debt,
		ManagerID:       managerID,
	}
	for _, t := range r.Tires {
		in.Tires = append(in.Tires, services.TireInput{
			Brand:        t.Brand,
			Model:        t.Model,
			Size:         t.Size,
			Season:       t.Season,
			Description:  t.Description,
			WearLevel:    t.WearLevel,
			DotCodes:     t.DotCodes,
			Photos:       t.Photos,
			Quantity:     t.Quantity,
			PricePerUnit: t.PricePerUnit,
		})
	}
	for _, s := range r.Services {
		in.Services = append(in.Services, services.ServiceInput{Type: s.Type, Description: s.Description, Price: s.Price})
	}
	return in
}

func requireSession(c *gin.Context) (*middleware.Session, bool) {
	session, err := middleware.GetSession(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return nil, false
	}
	return session, true
}

func viewerOf(session *middleware.Session) services.Viewer {
	return services.Viewer{UserID: session.UserID, Role: session.Role}
}

// CreateOrder handles POST /api/v1/orders - staff open a storage order
func (ctl *OrderController) CreateOrder(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
		return
	}

	managerID := session.UserID
	order, err := ctl.orders.Create(c.Request.Context(), req.toInput(&managerID))
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			respondErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
			return
		}
		ctl.log.Error("failed to create order", logger.String("manager_id", managerID.String()), logger.Error(err))
		_ = c.Error(err)
		if ctl.exposeDetails {
			respondErrorWithDetails(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create order", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create order")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"order":   order,
	})
}

// ListOrders handles GET /api/v1/orders - clients only ever see their own orders
func (ctl *OrderController) ListOrders(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	filter := services.OrderFilter{
		Status: c.Query("status"),
		Page:   cast.ToInt(c.Query("page")),
		Limit:  cast.ToInt(c.Query("limit")),
	}
	// clients are scoped to themselves by the service, so their clientId is ignored
	if raw := c.Query("clientId"); raw != "" && session.Role != models.RoleClient {
		clientID, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "clientId must be a UUID")
			return
		}
		filter.ClientID = &clientID
	}

	orders, page, err := ctl.orders.List(c.Request.Context(), viewerOf(session), filter)
	if err != nil {
		ctl.handleError(c, err, "Failed to retrieve orders")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"orders":     orders,
		"pagination": page,
	})
}

// ListMyOrders handles GET /api/v1/orders/my - the caller's active and expiring orders
func (ctl *OrderController) ListMyOrders(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	orders, err := ctl.orders.ListOpenForClient(c.Request.Context(), session.UserID)
	if err != nil {
		ctl.handleError(c, err, "Failed to retrieve orders")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"orders":  orders,
	})
}

// GetOrder handles GET /api/v1/orders/:id
func (ctl *OrderController) GetOrder(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID")
		return
	}

	order, err := ctl.orders.Get(c.Request.Context(), viewerOf(session), id)
	if err != nil {
		ctl.handleError(c, err, "Failed to retrieve order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"order":   order,
	})
}

// CompleteOrder handles POST /api/v1/orders/:id/complete - staff hand the tires back
func (ctl *OrderController) CompleteOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID")
		return
	}

	order, err := ctl.orders.Complete(c.Request.Context(), id)
	if err != nil {
		ctl.handleError(c, err, "Failed to complete order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"order":   order,
	})
}

func (ctl *OrderController) handleError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		respondErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
	case errors.Is(err, services.ErrOrderNotFound):
		respondError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
	case errors.Is(err, services.ErrForbidden):
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You don't have permission to view this order")
	default:
		ctl.log.Error(message, logger.Error(err))
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", message)
	}
}
