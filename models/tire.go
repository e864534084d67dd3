package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TireStatusStorage  = "storage"
	TireStatusReturned = "returned"

	SeasonSummer    = "summer"
	SeasonWinter    = "winter"
	SeasonAllSeason = "all-season"
)

// Tire is one stored tire set belonging to a client
type Tire struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"clientId"`
	Brand           string        `gorm:"not null" json:"brand"`
	Model           *string       `json:"model"`
	Size            string        `gorm:"not null" json:"size"`
	Season          string        `gorm:"not null" json:"season"` // summer, winter, all-season
	Description     *string       `json:"description"`
	WearLevel       *int          `json:"wearLevel"` // 0-100
	StorageLocation string        `json:"storageLocation"`
	Status          string        `gorm:"not null;default:'storage'" json:"status"` // storage, returned
	DotCodes        []TireDotCode `gorm:"foreignKey:TireID" json:"dotCodes"`
	Photos          []TirePhoto   `gorm:"foreignKey:TireID" json:"photos"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (Tire) TableName() string {
	return "tires"
}

func (t *Tire) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func IsValidSeason(season string) bool {
	switch season {
	case SeasonSummer, SeasonWinter, SeasonAllSeason:
		return true
	}
	return false
}

// TireDotCode is a manufacturer DOT batch code read from the sidewall
type TireDotCode struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TireID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tireId"`
	DotCode   string    `gorm:"not null" json:"dotCode"`
	CreatedAt time.Time `json:"createdAt"`
}

func (TireDotCode) TableName() string {
	return "tire_dot_codes"
}

func (d *TireDotCode) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// TirePhoto is an uploaded photo of a tire set. AIAnalysis is null when
// analysis was disabled or failed.
type TirePhoto struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TireID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"tireId"`
	URL         string         `gorm:"not null" json:"url"`
	StorageType string         `gorm:"not null" json:"storageType"` // s3, local
	AIAnalysis  datatypes.JSON `json:"aiAnalysis"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (TirePhoto) TableName() string {
	return "tire_photos"
}

func (p *TirePhoto) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
