package model

// OrderSequence is a named counter incremented inside the booking transaction.
type OrderSequence struct {
	Name  string `gorm:"type:varchar(40);primaryKey"`
	Value int64  `gorm:"not null"`
}

const (
	BookingSequence     = "booking"
	BookingSequenceSeed = 10000
)
