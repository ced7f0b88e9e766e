package model

import (
	"time"

	"github.com/google/uuid"
)

// Contact is the notification directory entry for one user.
type Contact struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Role      string    `gorm:"type:varchar(20);not null"`
	Name      string    `gorm:"not null"`
	Phone     string    `gorm:"type:varchar(30);not null"`
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
