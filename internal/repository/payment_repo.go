package repository

import (
	"context"
	"time"

	"sarnabroker/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository interface {
	// UpsertTx inserts or overwrites the single payment row of a booking.
	UpsertTx(tx *gorm.DB, p *model.Payment) error
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error)
	FindByBookingIDTx(tx *gorm.DB, bookingID uuid.UUID) (*model.Payment, error)
	MarkPaidTx(tx *gorm.DB, bookingID uuid.UUID, at time.Time) error
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, status string) ([]model.Payment, error)
}

type paymentRepo struct{ db *gorm.DB }

func NewPaymentRepository(db *gorm.DB) PaymentRepository { return &paymentRepo{db: db} }

func (r *paymentRepo) UpsertTx(tx *gorm.DB, p *model.Payment) error {
	return tx.Omit("Booking").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "booking_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "status", "paid_at", "invoice_file", "updated_at"}),
	}).Create(p).Error
}

func (r *paymentRepo) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&p).Error
	return &p, err
}

func (r *paymentRepo) FindByBookingIDTx(tx *gorm.DB, bookingID uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	err := tx.Clauses(forUpdate).Where("booking_id = ?", bookingID).First(&p).Error
	return &p, err
}

func (r *paymentRepo) MarkPaidTx(tx *gorm.DB, bookingID uuid.UUID, at time.Time) error {
	res := tx.Model(&model.Payment{}).
		Where("booking_id = ? AND status = ? AND invoice_file IS NOT NULL", bookingID, model.PaymentPending).
		Updates(map[string]interface{}{
			"status":  model.PaymentPaid,
			"paid_at": at,
		})
	return guarded(res)
}

func (r *paymentRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, status string) ([]model.Payment, error) {
	q := r.db.WithContext(ctx).Preload("Booking.Stock").Where("buyer_id = ?", buyerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []model.Payment
	err := q.Order("updated_at DESC").Find(&rows).Error
	return rows, err
}
