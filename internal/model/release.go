package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"parking-spot-backend/internal/status"
)

// Release is an owner's offer of their spot for one day.
type Release struct {
	ID        uuid.UUID            `gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID            `gorm:"type:uuid;index;not null"`
	SpotID    int64                `gorm:"not null;uniqueIndex:idx_release_active_slot,where:status <> 'CANCELED' AND status <> 'NOT_FOUND'"`
	Date      Date                 `gorm:"not null;index;uniqueIndex:idx_release_active_slot,where:status <> 'CANCELED' AND status <> 'NOT_FOUND'"`
	Status    status.ReleaseStatus `gorm:"size:32;not null;index"`
	TakenBy   *uuid.UUID           `gorm:"type:uuid;index"`
	CreatedAt time.Time            `gorm:"not null"`
	UpdatedAt time.Time            `gorm:"not null"`

	// Associations
	Owner User        `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
	Spot  ParkingSpot `gorm:"foreignKey:SpotID" json:"-"`
}

func (r *Release) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Request is a user's claim for any spot on one day.
type Request struct {
	ID          uuid.UUID            `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_request_active_slot,where:status <> 'CANCELED' AND status <> 'NOT_FOUND'"`
	Date        Date                 `gorm:"not null;index;uniqueIndex:idx_request_active_slot,where:status <> 'CANCELED' AND status <> 'NOT_FOUND'"`
	Status      status.RequestStatus `gorm:"size:32;not null;index"`
	CreatedAt   time.Time            `gorm:"not null"`
	ProcessedAt *time.Time
	UpdatedAt   time.Time `gorm:"not null"`

	// Associations
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
