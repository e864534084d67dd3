package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Messenger delivers a text message to a chat-platform user.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// NotificationService records notifications and delivers them best effort
type NotificationService struct {
	db        *gorm.DB
	messenger Messenger
	timeout   time.Duration
	log       logger.ILogger
	now       func() time.Time
}

func NewNotificationService(db *gorm.DB, messenger Messenger, timeout time.Duration, log logger.ILogger) *NotificationService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NotificationService{
		db:        db,
		messenger: messenger,
		timeout:   timeout,
		log:       log,
		now:       time.Now,
	}
}

// Notify persists a notification for user, then tries to deliver it if the
// user has a chat identity. Delivery failures are logged and never returned;
// only a failure to persist the record is.
func (s *NotificationService) Notify(ctx context.Context, user *models.User, kind, message string, data map[string]interface{}) (*models.Notification, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification data: %w", err)
	}

	n := &models.Notification{
		UserID:  user.ID,
		Type:    kind,
		Message: message,
		Data:    datatypes.JSON(payload),
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("failed to save notification: %w", err)
	}

	if user.TelegramID == nil || s.messenger == nil {
		return n, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.messenger.SendMessage(sendCtx, *user.TelegramID, message); err != nil {
		s.log.Warning("notification delivery failed",
			logger.String("notification_id", n.ID.String()),
			logger.String("type", kind),
			logger.Int64("telegram_id", *user.TelegramID),
			logger.Error(err),
		)
		return n, nil
	}

	sentAt := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(n).Update("sent_at", sentAt).Error; err != nil {
		s.log.Warning("failed to mark notification as sent", logger.String("notification_id", n.ID.String()), logger.Error(err))
		return n, nil
	}
	n.SentAt = &sentAt
	return n, nil
}

// ListForUser returns the newest notifications of a user first.
func (s *NotificationService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.Notification
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
