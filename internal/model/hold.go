package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HoldKind tells the two confirmation handshakes apart.
type HoldKind string

const (
	// HoldSpot guards a same-day provisional award.
	HoldSpot HoldKind = "spot"
	// HoldReminder guards a next-day "are you still coming" check.
	HoldReminder HoldKind = "reminder"
)

// Hold is a pending confirmation. Its deadline is persisted so timers can be
// re-armed after a restart.
type Hold struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind      HoldKind  `gorm:"size:16;not null;uniqueIndex:idx_hold_active_user_kind,where:is_active = true"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_hold_active_user_kind,where:is_active = true"`
	ReleaseID uuid.UUID `gorm:"type:uuid;not null;index"`
	RequestID uuid.UUID `gorm:"type:uuid;not null"`
	SpotID    int64     `gorm:"not null"`
	Date      Date      `gorm:"not null"`
	IsActive  bool      `gorm:"not null;index"`
	ArmedAt   time.Time `gorm:"not null"`
	Deadline  time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (h *Hold) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
