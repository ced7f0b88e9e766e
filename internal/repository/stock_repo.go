package repository

import (
	"context"

	"sarnabroker/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MarketFilter narrows the public listing view.
type MarketFilter struct {
	Crop  string
	Page  int
	Limit int
}

// StockRepository is the data access contract for mill stock listings.
// Every *Tx quantity method is a single guarded UPDATE so concurrent callers
// can never drive quantity or reserved_qty negative.
type StockRepository interface {
	Create(ctx context.Context, s *model.StockListing) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.StockListing, error)
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.StockListing, error)
	ListByMiller(ctx context.Context, millerID uuid.UUID) ([]model.StockListing, error)
	ListMarket(ctx context.Context, filter MarketFilter) ([]model.StockListing, int64, error)

	// UpdateDetailsTx overwrites the editable fields and reopens the listing.
	// Reserved bags were already deducted at booking, so reserved_qty does
	// not bound the new quantity.
	UpdateDetailsTx(tx *gorm.DB, s *model.StockListing) error
	UpdateDeductionTx(tx *gorm.DB, id uuid.UUID, rate decimal.Decimal) error

	DeductTx(tx *gorm.DB, id uuid.UUID, qty int) error
	RestoreTx(tx *gorm.DB, id uuid.UUID, qty int) error
	ReserveTx(tx *gorm.DB, id uuid.UUID, qty, ceiling int) error
	ReleaseTx(tx *gorm.DB, id uuid.UUID, qty int) error
	ConsumeReservedTx(tx *gorm.DB, id uuid.UUID, qty int) error

	DB() *gorm.DB
}

type stockRepo struct{ db *gorm.DB }

func NewStockRepository(db *gorm.DB) StockRepository { return &stockRepo{db: db} }

func (r *stockRepo) DB() *gorm.DB { return r.db }

func (r *stockRepo) Create(ctx context.Context, s *model.StockListing) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *stockRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.StockListing, error) {
	var s model.StockListing
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *stockRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.StockListing, error) {
	var s model.StockListing
	err := tx.Clauses(forUpdate).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *stockRepo) ListByMiller(ctx context.Context, millerID uuid.UUID) ([]model.StockListing, error) {
	var rows []model.StockListing
	err := r.db.WithContext(ctx).
		Where("miller_id = ?", millerID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// ListMarket returns open listings that still have quantity to book.
func (r *stockRepo) ListMarket(ctx context.Context, filter MarketFilter) ([]model.StockListing, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.StockListing{}).
		Where("status = ? AND quantity > 0", model.StockOpen)
	if filter.Crop != "" {
		q = q.Where("crop = ?", filter.Crop)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	var rows []model.StockListing
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&rows).Error
	return rows, total, err
}

func (r *stockRepo) UpdateDetailsTx(tx *gorm.DB, s *model.StockListing) error {
	res := tx.Model(&model.StockListing{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"price":          s.Price,
			"quantity":       s.Quantity,
			"condition":      s.Condition,
			"bag_type":       s.BagType,
			"deduction_rate": s.DeductionRate,
			"status":         model.StockOpen,
		})
	return guarded(res)
}

func (r *stockRepo) UpdateDeductionTx(tx *gorm.DB, id uuid.UUID, rate decimal.Decimal) error {
	res := tx.Model(&model.StockListing{}).Where("id = ?", id).Update("deduction_rate", rate)
	return guarded(res)
}

// DeductTx takes qty out of an open listing and closes it when nothing is left.
func (r *stockRepo) DeductTx(tx *gorm.DB, id uuid.UUID, qty int) error {
	res := tx.Model(&model.StockListing{}).
		Where("id = ? AND status = ? AND quantity >= ?", id, model.StockOpen, qty).
		Updates(map[string]interface{}{
			"quantity": gorm.Expr("quantity - ?", qty),
			"status":   gorm.Expr("CASE WHEN quantity - ? <= 0 THEN 'closed' ELSE status END", qty),
		})
	return guarded(res)
}

// RestoreTx returns qty to the listing and reopens it.
func (r *stockRepo) RestoreTx(tx *gorm.DB, id uuid.UUID, qty int) error {
	res := tx.Model(&model.StockListing{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quantity": gorm.Expr("quantity + ?", qty),
			"status":   model.StockOpen,
		})
	return guarded(res)
}

// ReserveTx adds qty to reserved_qty as long as the total stays within ceiling.
func (r *stockRepo) ReserveTx(tx *gorm.DB, id uuid.UUID, qty, ceiling int) error {
	res := tx.Model(&model.StockListing{}).
		Where("id = ? AND reserved_qty + ? <= ?", id, qty, ceiling).
		Update("reserved_qty", gorm.Expr("reserved_qty + ?", qty))
	return guarded(res)
}

func (r *stockRepo) ReleaseTx(tx *gorm.DB, id uuid.UUID, qty int) error {
	res := tx.Model(&model.StockListing{}).
		Where("id = ?", id).
		Update("reserved_qty", gorm.Expr("CASE WHEN reserved_qty >= ? THEN reserved_qty - ? ELSE 0 END", qty, qty))
	return guarded(res)
}

// ConsumeReservedTx moves qty from reserved to consumed. Both counters floor
// at zero; the listing closes once quantity is exhausted.
func (r *stockRepo) ConsumeReservedTx(tx *gorm.DB, id uuid.UUID, qty int) error {
	res := tx.Model(&model.StockListing{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quantity":     gorm.Expr("CASE WHEN quantity >= ? THEN quantity - ? ELSE 0 END", qty, qty),
			"reserved_qty": gorm.Expr("CASE WHEN reserved_qty >= ? THEN reserved_qty - ? ELSE 0 END", qty, qty),
			"status":       gorm.Expr("CASE WHEN quantity - ? <= 0 THEN 'closed' ELSE status END", qty),
		})
	return guarded(res)
}

// guarded turns a zero-row UPDATE into ErrConditionFailed.
func guarded(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return page, limit
}
