package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	HistoryReasonUpdate    = "update"
	HistoryReasonDeduction = "deduction"
)

// StockHistory records every manual change to a listing's price, quantity or
// deduction rate. Rows are never updated or deleted.
type StockHistory struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	StockID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	ChangedBy    uuid.UUID       `gorm:"type:uuid;not null"`
	OldPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	NewPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OldQty       int             `gorm:"not null"`
	NewQty       int             `gorm:"not null"`
	OldDeduction decimal.Decimal `gorm:"type:decimal(8,2);not null"`
	NewDeduction decimal.Decimal `gorm:"type:decimal(8,2);not null"`
	Reason       string          `gorm:"type:varchar(20);not null"`
	CreatedAt    time.Time
}

// TableName keeps the audit table singular like the source schema.
func (StockHistory) TableName() string { return "stock_history" }

func (h *StockHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
