package repository

import (
	"context"
	"time"

	"sarnabroker/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LoadingInvoiceRepository interface {
	CreateTx(tx *gorm.DB, inv *model.LoadingInvoice) error
	// FindByIDTx row-locks the booking and then the invoice, and loads the
	// listing. Every truck operation on one booking runs one at a time.
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.LoadingInvoice, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]model.LoadingInvoice, error)
	ListByBookingTx(tx *gorm.DB, bookingID uuid.UUID) ([]model.LoadingInvoice, error)

	// RecordQCTx writes QC results while no final invoice exists yet.
	RecordQCTx(tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	// SetFinalInvoiceTx requires a verified, unpaid truck.
	SetFinalInvoiceTx(tx *gorm.DB, id uuid.UUID, file string) error
	// MarkPaidTx requires an unpaid truck with a final invoice.
	MarkPaidTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
}

type loadingInvoiceRepo struct{ db *gorm.DB }

func NewLoadingInvoiceRepository(db *gorm.DB) LoadingInvoiceRepository {
	return &loadingInvoiceRepo{db: db}
}

func (r *loadingInvoiceRepo) CreateTx(tx *gorm.DB, inv *model.LoadingInvoice) error {
	return tx.Omit("Booking").Create(inv).Error
}

func (r *loadingInvoiceRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.LoadingInvoice, error) {
	var ref model.LoadingInvoice
	if err := tx.Select("id", "booking_id").First(&ref, "id = ?", id).Error; err != nil {
		return nil, err
	}
	var b model.Booking
	if err := tx.Clauses(forUpdate).First(&b, "id = ?", ref.BookingID).Error; err != nil {
		return nil, err
	}
	var st model.StockListing
	if err := tx.First(&st, "id = ?", b.StockID).Error; err != nil {
		return nil, err
	}
	b.Stock = &st

	var inv model.LoadingInvoice
	if err := tx.Clauses(forUpdate).First(&inv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	inv.Booking = &b
	return &inv, nil
}

func (r *loadingInvoiceRepo) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]model.LoadingInvoice, error) {
	return r.ListByBookingTx(r.db.WithContext(ctx), bookingID)
}

func (r *loadingInvoiceRepo) ListByBookingTx(tx *gorm.DB, bookingID uuid.UUID) ([]model.LoadingInvoice, error) {
	var rows []model.LoadingInvoice
	err := tx.Where("booking_id = ?", bookingID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *loadingInvoiceRepo) RecordQCTx(tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	res := tx.Model(&model.LoadingInvoice{}).
		Where("id = ? AND final_invoice_file IS NULL", id).
		Updates(fields)
	return guarded(res)
}

func (r *loadingInvoiceRepo) SetFinalInvoiceTx(tx *gorm.DB, id uuid.UUID, file string) error {
	res := tx.Model(&model.LoadingInvoice{}).
		Where("id = ? AND qc_status = ? AND payment_status = ?", id, model.QCVerified, model.PaymentPending).
		Update("final_invoice_file", file)
	return guarded(res)
}

func (r *loadingInvoiceRepo) MarkPaidTx(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	res := tx.Model(&model.LoadingInvoice{}).
		Where("id = ? AND payment_status = ? AND final_invoice_file IS NOT NULL", id, model.PaymentPending).
		Updates(map[string]interface{}{
			"payment_status": model.PaymentPaid,
			"payment_at":     at,
		})
	return guarded(res)
}
