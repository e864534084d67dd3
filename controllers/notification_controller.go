package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/services"
)

type NotificationController struct {
	notifications *services.NotificationService
	log           logger.ILogger
}

func NewNotificationController(notifications *services.NotificationService, log logger.ILogger) *NotificationController {
	return &NotificationController{notifications: notifications, log: log}
}

// ListMyNotifications handles GET /api/v1/notifications - the caller's notification feed
func (ctl *NotificationController) ListMyNotifications(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	limit := cast.ToInt(c.Query("limit"))
	if limit > services.MaxPageSize {
		limit = services.MaxPageSize
	}

	list, err := ctl.notifications.ListForUser(c.Request.Context(), session.UserID, limit)
	if err != nil {
		ctl.log.Error("failed to list notifications", logger.String("user_id", session.UserID.String()), logger.Error(err))
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to retrieve notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": list,
	})
}
