package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/middleware"
	"github.com/ticrm/tire-storage-api/models"
	"github.com/ticrm/tire-storage-api/telegram"
)

type AuthController struct {
	users    telegram.UserStore
	sessions *middleware.SessionManager
	botToken string
	log      logger.ILogger
}

func NewAuthController(users telegram.UserStore, sessions *middleware.SessionManager, botToken string, log logger.ILogger) *AuthController {
	return &AuthController{users: users, sessions: sessions, botToken: botToken, log: log}
}

// TelegramAuthRequest carries the raw mini-app init-data string
type TelegramAuthRequest struct {
	InitData string `json:"initData"`
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":       user.ID,
		"fullName": user.FullName,
		"role":     user.Role,
	}
}

// TelegramLogin handles POST /api/auth/telegram - verifies init-data and starts a session
func (ctl *AuthController) TelegramLogin(c *gin.Context) {
	var req TelegramAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.InitData == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "initData is required")
		return
	}

	profile, err := telegram.ValidateInitData(req.InitData, ctl.botToken)
	switch {
	case errors.Is(err, telegram.ErrUserMissing), errors.Is(err, telegram.ErrUserMalformed):
		respondError(c, http.StatusBadRequest, "INVALID_USER_DATA", "Init data carries no valid user")
		return
	case err != nil:
		ctl.log.Warning("rejected mini-app init data", logger.Error(err))
		respondError(c, http.StatusUnauthorized, "INVALID_INIT_DATA", "Init data signature is invalid")
		return
	}

	user, err := ctl.users.UpsertTelegramUser(c.Request.Context(), *profile)
	if err != nil {
		ctl.log.Error("failed to upsert mini-app user", logger.Int64("telegram_id", profile.ID), logger.Error(err))
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to sign in")
		return
	}

	token, expires, err := ctl.sessions.Issue(user)
	if err != nil {
		ctl.log.Error("failed to issue session", logger.String("user_id", user.ID.String()), logger.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session")
		return
	}
	ctl.sessions.SetCookie(c, token)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"user":      userPayload(user),
		"expiresAt": expires,
	})
}

// Logout handles POST /api/auth/logout
func (ctl *AuthController) Logout(c *gin.Context) {
	ctl.sessions.ClearCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Session handles GET /api/auth/session - returns the current identity
func (ctl *AuthController) Session(c *gin.Context) {
	session, err := middleware.GetSession(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user": gin.H{
			"id":         session.UserID,
			"fullName":   session.Name,
			"role":       session.Role,
			"telegramId": session.TelegramID,
		},
		"expiresAt": session.ExpiresAt,
	})
}
