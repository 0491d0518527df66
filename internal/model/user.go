package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a claimant. A lower Rating means a higher priority.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Handle      string    `gorm:"uniqueIndex;size:128;not null"`
	DisplayName string    `gorm:"size:256;not null"`
	Rating      int       `gorm:"not null"`
	Active      bool      `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// ParkingSpot is reference data seeded from config.
type ParkingSpot struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"` // Spot number
	Label     string    `gorm:"size:64;not null"`
	Active    bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
