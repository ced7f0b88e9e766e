package repository

import (
	"context"

	"sarnabroker/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StockHistoryRepository interface {
	CreateTx(tx *gorm.DB, h *model.StockHistory) error
	ListByStock(ctx context.Context, stockID uuid.UUID, page, limit int) ([]model.StockHistory, int64, error)
}

type stockHistoryRepo struct{ db *gorm.DB }

func NewStockHistoryRepository(db *gorm.DB) StockHistoryRepository {
	return &stockHistoryRepo{db: db}
}

func (r *stockHistoryRepo) CreateTx(tx *gorm.DB, h *model.StockHistory) error {
	return tx.Create(h).Error
}

// ListByStock returns audit rows for one listing, newest first.
func (r *stockHistoryRepo) ListByStock(ctx context.Context, stockID uuid.UUID, page, limit int) ([]model.StockHistory, int64, error) {
	page, limit = normalizePage(page, limit)

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&model.StockHistory{}).
		Where("stock_id = ?", stockID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []model.StockHistory
	err := r.db.WithContext(ctx).
		Where("stock_id = ?", stockID).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&rows).Error
	return rows, total, err
}
