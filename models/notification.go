package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	NotificationOrderCreated    = "order_created"
	NotificationStorageExpiring = "storage_expiring"
	NotificationOrderCompleted  = "order_completed"
)

// Notification is an append-only record of a message the system intended to send.
// SentAt is set only when delivery succeeded.
type Notification struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"userId"`
	Type      string         `gorm:"not null" json:"type"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	Data      datatypes.JSON `json:"data"`
	SentAt    *time.Time     `json:"sentAt"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// All lists every model, in dependency order, for AutoMigrate in tests.
func All() []interface{} {
	return []interface{}{
		&User{}, &Order{}, &Tire{}, &TireDotCode{}, &TirePhoto{}, &OrderTire{}, &Service{}, &Notification{},
	}
}
