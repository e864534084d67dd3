package controllers

import (
	"crypto/subtle"
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/ticrm/tire-storage-api/logger"
	tele "gopkg.in/telebot.v3"
)

const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateDispatcher runs the bot handlers for one update.
type UpdateDispatcher interface {
	Dispatch(u tele.Update) error
}

type WebhookController struct {
	dispatcher UpdateDispatcher
	secret     string
	log        logger.ILogger
}

func NewWebhookController(dispatcher UpdateDispatcher, secret string, log logger.ILogger) *WebhookController {
	return &WebhookController{dispatcher: dispatcher, secret: secret, log: log}
}

func (ctl *WebhookController) authorized(header string) bool {
	if ctl.secret == "" || header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(ctl.secret)) == 1
}

// Handle handles POST /api/telegram/webhook. Once the secret matches the
// platform always gets 200 so it does not redeliver.
func (ctl *WebhookController) Handle(c *gin.Context) {
	if !ctl.authorized(c.GetHeader(webhookSecretHeader)) {
		ctl.log.Warning("webhook call with a bad secret", logger.String("client_ip", c.ClientIP()))
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook secret")
		return
	}

	var update tele.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		ctl.log.Warning("malformed webhook update", logger.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}

	if err := ctl.dispatcher.Dispatch(update); err != nil {
		ctl.log.Error("webhook update failed", logger.Int("update_id", update.ID), logger.Error(err))
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		c.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
