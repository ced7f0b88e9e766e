package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is the booking-level settlement record. There is at most one per
// booking; writes go through an upsert on booking_id.
type Payment struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BookingID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	MillerID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	BuyerID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Status      string          `gorm:"type:varchar(20);not null;default:'pending'"`
	PaidAt      *time.Time
	InvoiceFile *string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Booking *Booking `gorm:"foreignKey:BookingID"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
