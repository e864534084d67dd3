package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/services"
)

type ClientController struct {
	users *services.UserService
	log   logger.ILogger
}

func NewClientController(users *services.UserService, log logger.ILogger) *ClientController {
	return &ClientController{users: users, log: log}
}

// CreateClientRequest represents the request body for creating a client
type CreateClientRequest struct {
	FullName      string `json:"fullName" binding:"required"`
	Phone         string `json:"phone" binding:"required"`
	CarNumber     string `json:"carNumber"`
	Address       string `json:"address"`
	TrafficSource string `json:"trafficSource"`
}

// CreateClient handles POST /api/v1/clients
func (ctl *ClientController) CreateClient(c *gin.Context) {
	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
		return
	}

	client, err := ctl.users.CreateClient(c.Request.Context(), services.CreateClientInput{
		FullName:      req.FullName,
		Phone:         req.Phone,
		CarNumber:     req.CarNumber,
		Address:       req.Address,
		TrafficSource: req.TrafficSource,
	})
	switch {
	case errors.Is(err, services.ErrClientExists):
		respondError(c, http.StatusBadRequest, "CLIENT_EXISTS", "A client with this phone already exists")
		return
	case errors.Is(err, services.ErrInvalidInput):
		respondErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
		return
	case err != nil:
		ctl.log.Error("failed to create client", logger.Error(err))
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create client")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"client":  client,
	})
}

// ListClients handles GET /api/v1/clients?search&page&limit
func (ctl *ClientController) ListClients(c *gin.Context) {
	clients, page, err := ctl.users.ListClients(c.Request.Context(), services.ClientFilter{
		Search: c.Query("search"),
		Page:   cast.ToInt(c.Query("page")),
		Limit:  cast.ToInt(c.Query("limit")),
	})
	if err != nil {
		ctl.log.Error("failed to list clients", logger.Error(err))
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to retrieve clients")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"clients":    clients,
		"pagination": page,
	})
}
