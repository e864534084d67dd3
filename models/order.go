package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	OrderStatusActive    = "active"
	OrderStatusExpiring  = "expiring"
	OrderStatusOverdue   = "overdue"
	OrderStatusCompleted = "completed"
)

// Order represents a tire-storage engagement between a client and the shop
type Order struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber    string          `gorm:"uniqueIndex;not null;size:13" json:"orderNumber"` // YYMMDD-HHMMSS
	ClientID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"clientId"`
	Client         User            `gorm:"foreignKey:ClientID" json:"client"`
	ManagerID      *uuid.UUID      `gorm:"type:uuid;index" json:"managerId"`
	Manager        *User           `gorm:"foreignKey:ManagerID" json:"manager,omitempty"`
	StoragePeriod  int             `gorm:"not null" json:"storagePeriod"` // months
	StartDate      time.Time       `gorm:"not null" json:"startDate"`
	EndDate        time.Time       `gorm:"not null" json:"endDate"`
	ReminderDate   time.Time       `gorm:"not null;index" json:"reminderDate"`
	Warehouse      string          `gorm:"not null" json:"warehouse"`
	Cell           string          `gorm:"not null" json:"cell"`
	TotalCost      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"totalCost"`
	Debt           decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"debt"`
	Status         string          `gorm:"not null;default:'active';index" json:"status"` // active, expiring, overdue, completed
	CompletedAt    *time.Time      `json:"completedAt"`
	ReminderSentAt *time.Time      `json:"reminderSentAt"`
	OrderTires     []OrderTire     `gorm:"foreignKey:OrderID" json:"orderTires"`
	Services       []Service       `gorm:"foreignKey:OrderID" json:"services"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (o *Order) IsCompleted() bool {
	return o.Status == OrderStatusCompleted
}

// OrderTire links a tire set to an order with its quantity and unit price
type OrderTire struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"orderId"`
	TireID       uuid.UUID       `gorm:"type:uuid;not null" json:"tireId"`
	Tire         Tire            `gorm:"foreignKey:TireID" json:"tire"`
	Quantity     int             `gorm:"not null;default:1" json:"quantity"`
	PricePerUnit decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"pricePerUnit"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (OrderTire) TableName() string {
	return "order_tires"
}

func (ot *OrderTire) BeforeCreate(tx *gorm.DB) error {
	if ot.ID == uuid.Nil {
		ot.ID = uuid.New()
	}
	return nil
}

// Service is an ancillary line item (fitting, balancing, washing) attached to an order
type Service struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"orderId"`
	ServiceType string          `gorm:"not null" json:"serviceType"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"price"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (Service) TableName() string {
	return "services"
}

func (s *Service) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
