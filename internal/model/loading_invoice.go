package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	QCPending  = "pending"
	QCVerified = "verified"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// LoadingInvoice is one truck's pickup against a booking. A new row is appended
// per truck; rows are never merged.
type LoadingInvoice struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	BookingID   uuid.UUID `gorm:"type:uuid;not null;index"`
	LoadedQty   int       `gorm:"not null"`
	InvoiceFile string    `gorm:"not null"`
	TruckNumber *string   `gorm:"type:varchar(30)"`

	QCWeight   decimal.NullDecimal `gorm:"type:decimal(12,2);column:qc_weight"`
	QCMoisture decimal.NullDecimal `gorm:"type:decimal(5,2);column:qc_moisture"`
	QCRemarks  *string             `gorm:"column:qc_remarks"`
	QCStatus   string              `gorm:"type:varchar(20);not null;default:'pending';column:qc_status"`
	QCAt       *time.Time          `gorm:"column:qc_at"`

	FinalInvoiceFile *string
	PaymentStatus    string `gorm:"type:varchar(20);not null;default:'pending'"`
	PaymentAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Booking *Booking `gorm:"foreignKey:BookingID"`
}

func (i *LoadingInvoice) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
