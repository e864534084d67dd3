package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RolePartner = "partner"
	RoleClient  = "client"
)

// StaffRoles may create orders and manage clients.
var StaffRoles = []string{RoleAdmin, RoleManager}

// User represents anyone known to the system: staff members, partners and clients
type User struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TelegramID    *int64     `gorm:"uniqueIndex" json:"telegramId"`
	Username      *string    `json:"username"`
	FullName      string     `gorm:"not null" json:"fullName"`
	Phone         *string    `gorm:"uniqueIndex" json:"phone"`
	CarNumber     *string    `json:"carNumber"`
	Address       *string    `json:"address"`
	Role          string     `gorm:"not null;default:'client';index" json:"role"` // admin, manager, partner, client
	TrafficSource *string    `json:"trafficSource"`
	LastLoginAt   *time.Time `json:"lastLoginAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsStaff reports whether the user may perform staff-only operations.
func (u *User) IsStaff() bool {
	return IsStaffRole(u.Role)
}

func IsStaffRole(role string) bool {
	for _, r := range StaffRoles {
		if r == role {
			return true
		}
	}
	return false
}

func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RolePartner, RoleClient:
		return true
	}
	return false
}
