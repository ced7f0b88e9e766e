package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Booking.Status tracks the miller/admin decision.
const (
	BookingPending   = "pending"
	BookingApproved  = "approved"
	BookingDeclined  = "declined"
	BookingCancelled = "cancelled"
)

// Booking.LoadingStatus tracks physical fulfillment.
const (
	LoadingPending       = "pending"
	LoadingPartial       = "partial"
	LoadingLoaded        = "loaded"
	LoadingPartialClosed = "partial_closed"
	LoadingCancelled     = "cancelled"
)

const ClosedByBuyer = "buyer"

// Booking is a buyer's commitment against one StockListing.
// Quantity never changes after creation; LoadedQty only grows.
type Booking struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID       string    `gorm:"type:varchar(20);uniqueIndex;not null"`
	StockID       uuid.UUID `gorm:"type:uuid;not null;index"`
	BuyerID       uuid.UUID `gorm:"type:uuid;not null;index"`
	MillerID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity      int       `gorm:"not null"`
	Status        string    `gorm:"type:varchar(20);not null;default:'pending';index"`
	LoadingStatus string    `gorm:"type:varchar(20);not null;default:'pending'"`
	TruckStatus   string    `gorm:"type:varchar(20);not null;default:'pending'"`
	LoadedQty     int       `gorm:"not null;default:0"`
	Reason        *string
	CloseReason   *string
	ClosedBy      *string `gorm:"type:varchar(20)"`
	BillDocument  *string

	// Booking-level QC mirrors the most recent truck QC.
	QCWeight   decimal.NullDecimal `gorm:"type:decimal(12,2);column:qc_weight"`
	QCMoisture decimal.NullDecimal `gorm:"type:decimal(5,2);column:qc_moisture"`
	QCRemarks  *string             `gorm:"column:qc_remarks"`
	QCStatus   string              `gorm:"type:varchar(20);not null;default:'pending';column:qc_status"`
	QCAt       *time.Time          `gorm:"column:qc_at"`

	Version    int `gorm:"not null;default:0"`
	DecisionAt *time.Time
	LoadedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Stock *StockListing `gorm:"foreignKey:StockID"`
}

// Remaining is the booked quantity not yet on a truck.
func (b *Booking) Remaining() int { return b.Quantity - b.LoadedQty }

func (b *Booking) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
