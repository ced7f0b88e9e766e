package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SMSMessage.Status: "pending" | "sent" | "failed"
const (
	SMSPending = "pending"
	SMSSent    = "sent"
	SMSFailed  = "failed"
)

// SMSMessage is the outbox row for one notification. The retry cron picks up
// pending rows whose NextRetryAt has passed.
type SMSMessage struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Recipient   string    `gorm:"type:varchar(20);not null;index"`
	Body        string    `gorm:"not null"`
	Status      string    `gorm:"type:varchar(20);not null;default:'pending'"`
	ProviderRef *string   `gorm:"type:varchar(64)"`
	RetryCount  int       `gorm:"not null;default:0"`
	NextRetryAt *time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (m *SMSMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
