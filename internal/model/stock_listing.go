package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	StockOpen   = "open"
	StockClosed = "closed"
)

// StockListing is a miller's sellable lot. Quantity is what buyers can still
// book; ReservedQty is what approved bookings hold but have not yet loaded.
type StockListing struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	MillerID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Crop          string          `gorm:"type:varchar(80);not null;index"`
	Condition     string          `gorm:"type:varchar(80)"`
	BagType       string          `gorm:"type:varchar(40)"`
	DeductionRate decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Quantity      int             `gorm:"not null;default:0"`
	ReservedQty   int             `gorm:"not null;default:0"`
	Status        string          `gorm:"type:varchar(10);not null;default:'open';index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *StockListing) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
