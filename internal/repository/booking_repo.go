package repository

import (
	"context"

	"sarnabroker/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingFilter selects bookings for the buyer, miller and admin views.
// Empty fields are ignored.
type BookingFilter struct {
	BuyerID         *uuid.UUID
	MillerID        *uuid.UUID
	StockID         *uuid.UUID
	Statuses        []string
	LoadingStatuses []string
	Page            int
	Limit           int
}

type BookingRepository interface {
	CreateTx(tx *gorm.DB, b *model.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// FindByIDTx reads and row-locks the booking inside a transaction.
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.Booking, error)
	List(ctx context.Context, filter BookingFilter) ([]model.Booking, int64, error)

	// TransitionTx applies fields only if the row is still at version and
	// bumps the version. ErrConditionFailed means another writer won.
	TransitionTx(tx *gorm.DB, id uuid.UUID, version int, fields map[string]interface{}) error

	// NextOrderNumberTx increments the booking counter. The UPDATE holds the
	// counter row until commit, so concurrent creators get distinct values.
	NextOrderNumberTx(tx *gorm.DB) (int64, error)

	// OutstandingTx sums the unloaded quantity of approved, still-loading
	// bookings on a listing.
	OutstandingTx(tx *gorm.DB, stockID uuid.UUID) (int, error)

	DB() *gorm.DB
}

type bookingRepo struct{ db *gorm.DB }

func NewBookingRepository(db *gorm.DB) BookingRepository { return &bookingRepo{db: db} }

func (r *bookingRepo) DB() *gorm.DB { return r.db }

func (r *bookingRepo) CreateTx(tx *gorm.DB, b *model.Booking) error {
	return tx.Omit("Stock").Create(b).Error
}

func (r *bookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	err := r.db.WithContext(ctx).Preload("Stock").First(&b, "id = ?", id).Error
	return &b, err
}

func (r *bookingRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	if err := tx.Clauses(forUpdate).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	var s model.StockListing
	if err := tx.First(&s, "id = ?", b.StockID).Error; err != nil {
		return nil, err
	}
	b.Stock = &s
	return &b, nil
}

func (r *bookingRepo) List(ctx context.Context, filter BookingFilter) ([]model.Booking, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Booking{})
	if filter.BuyerID != nil {
		q = q.Where("buyer_id = ?", *filter.BuyerID)
	}
	if filter.MillerID != nil {
		q = q.Where("miller_id = ?", *filter.MillerID)
	}
	if filter.StockID != nil {
		q = q.Where("stock_id = ?", *filter.StockID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if len(filter.LoadingStatuses) > 0 {
		q = q.Where("loading_status IN ?", filter.LoadingStatuses)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	var rows []model.Booking
	err := q.Preload("Stock").
		Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&rows).Error
	return rows, total, err
}

func (r *bookingRepo) TransitionTx(tx *gorm.DB, id uuid.UUID, version int, fields map[string]interface{}) error {
	fields["version"] = gorm.Expr("version + 1")
	res := tx.Model(&model.Booking{}).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	return guarded(res)
}

func (r *bookingRepo) NextOrderNumberTx(tx *gorm.DB) (int64, error) {
	res := tx.Model(&model.OrderSequence{}).
		Where("name = ?", model.BookingSequence).
		Update("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		seq := model.OrderSequence{Name: model.BookingSequence, Value: model.BookingSequenceSeed + 1}
		if err := tx.Create(&seq).Error; err != nil {
			return 0, err
		}
		return seq.Value, nil
	}

	var seq model.OrderSequence
	if err := tx.First(&seq, "name = ?", model.BookingSequence).Error; err != nil {
		return 0, err
	}
	return seq.Value, nil
}

func (r *bookingRepo) OutstandingTx(tx *gorm.DB, stockID uuid.UUID) (int, error) {
	var total int64
	err := tx.Model(&model.Booking{}).
		Select("COALESCE(SUM(quantity - loaded_qty), 0)").
		Where("stock_id = ? AND status = ? AND loading_status IN ?",
			stockID, model.BookingApproved, []string{model.LoadingPending, model.LoadingPartial}).
		Scan(&total).Error
	return int(total), err
}
