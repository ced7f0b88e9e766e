package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/model"
	"sarnabroker/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockService owns mill stock listings. The *Tx methods are the ledger
// primitives the booking and loading services call inside their own
// transactions.
type StockService interface {
	PostStock(ctx context.Context, actor ActingIdentity, req dto.PostStockRequest) (*dto.StockResponse, error)
	UpdateStock(ctx context.Context, actor ActingIdentity, listingID uuid.UUID, req dto.UpdateStockRequest) (*dto.StockResponse, error)
	UpdateDeduction(ctx context.Context, actor ActingIdentity, listingID uuid.UUID, rate decimal.Decimal) (*dto.StockResponse, error)
	Get(ctx context.Context, listingID uuid.UUID) (*dto.StockResponse, error)
	ListMine(ctx context.Context, actor ActingIdentity) ([]dto.StockResponse, error)
	ListMarket(ctx context.Context, filter dto.MarketFilter) (*dto.StockListResponse, error)
	ListHistory(ctx context.Context, actor ActingIdentity, listingID uuid.UUID, page, limit int) (*dto.StockHistoryListResponse, error)

	DeductTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error
	RestoreTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error
	ReserveTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty, ceiling int) error
	ReleaseTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error
	ConsumeReservedTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error
}

type stockService struct {
	repo    repository.StockRepository
	history repository.StockHistoryRepository
}

func NewStockService(repo repository.StockRepository, history repository.StockHistoryRepository) StockService {
	return &stockService{repo: repo, history: history}
}

func (s *stockService) PostStock(ctx context.Context, actor ActingIdentity, req dto.PostStockRequest) (*dto.StockResponse, error) {
	if actor.Role != RoleMiller || actor.IsStaff {
		return nil, notOwner("only a miller account can post stock")
	}
	if strings.TrimSpace(req.Crop) == "" {
		return nil, validation("crop is required")
	}
	if req.Quantity <= 0 {
		return nil, validation("quantity must be positive")
	}
	if !req.Price.IsPositive() {
		return nil, validation("price must be positive")
	}
	if req.DeductionRate.IsNegative() {
		return nil, validation("deduction rate cannot be negative")
	}

	listing := &model.StockListing{
		MillerID:      actor.OwnerID(),
		Crop:          strings.TrimSpace(req.Crop),
		Condition:     req.Condition,
		BagType:       req.BagType,
		DeductionRate: req.DeductionRate,
		Price:         req.Price,
		Quantity:      req.Quantity,
		ReservedQty:   0,
		Status:        model.StockOpen,
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, err
	}
	log.Info().Str("stock_id", listing.ID.String()).Str("crop", listing.Crop).
		Int("quantity", listing.Quantity).Msg("stock posted")
	return stockToResponse(listing), nil
}

// UpdateStock overwrites price, quantity and descriptive fields, reopens the
// listing and appends an audit row, all in one transaction.
func (s *stockService) UpdateStock(ctx context.Context, actor ActingIdentity, listingID uuid.UUID, req dto.UpdateStockRequest) (*dto.StockResponse, error) {
	if req.Quantity < 0 {
		return nil, validation("quantity cannot be negative")
	}
	if !req.Price.IsPositive() {
		return nil, validation("price must be positive")
	}
	if req.DeductionRate.IsNegative() {
		return nil, validation("deduction rate cannot be negative")
	}

	var updated *model.StockListing
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDTx(tx, listingID)
		if err != nil {
			return notFound(err, "stock listing %s", listingID)
		}
		if !actor.ownsStock(current) {
			return notOwner("stock listing %s belongs to another miller", listingID)
		}

		next := *current
		next.Price = req.Price
		next.Quantity = req.Quantity
		next.Condition = req.Condition
		next.BagType = req.BagType
		next.DeductionRate = req.DeductionRate
		next.Status = model.StockOpen
		if err := s.repo.UpdateDetailsTx(tx, &next); err != nil {
			return conflict(err)
		}

		if err := s.history.CreateTx(tx, &model.StockHistory{
			StockID:      current.ID,
			ChangedBy:    actor.UserID,
			OldPrice:     current.Price,
			NewPrice:     next.Price,
			OldQty:       current.Quantity,
			NewQty:       next.Quantity,
			OldDeduction: current.DeductionRate,
			NewDeduction: next.DeductionRate,
			Reason:       model.HistoryReasonUpdate,
		}); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stockToResponse(updated), nil
}

// UpdateDeduction lets an admin correct the deduction rate of any listing.
func (s *stockService) UpdateDeduction(ctx context.Context, actor ActingIdentity, listingID uuid.UUID, rate decimal.Decimal) (*dto.StockResponse, error) {
	if !actor.IsAdmin() {
		return nil, notOwner("only an admin can change deduction rates")
	}
	if rate.IsNegative() {
		return nil, validation("deduction rate cannot be negative")
	}

	var updated *model.StockListing
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDTx(tx, listingID)
		if err != nil {
			return notFound(err, "stock listing %s", listingID)
		}
		if err := s.repo.UpdateDeductionTx(tx, listingID, rate); err != nil {
			return err
		}
		if err := s.history.CreateTx(tx, &model.StockHistory{
			StockID:      current.ID,
			ChangedBy:    actor.UserID,
			OldPrice:     current.Price,
			NewPrice:     current.Price,
			OldQty:       current.Quantity,
			NewQty:       current.Quantity,
			OldDeduction: current.DeductionRate,
			NewDeduction: rate,
			Reason:       model.HistoryReasonDeduction,
		}); err != nil {
			return err
		}
		next := *current
		next.DeductionRate = rate
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stockToResponse(updated), nil
}

func (s *stockService) Get(ctx context.Context, listingID uuid.UUID) (*dto.StockResponse, error) {
	listing, err := s.repo.FindByID(ctx, listingID)
	if err != nil {
		return nil, notFound(err, "stock listing %s", listingID)
	}
	return stockToResponse(listing), nil
}

func (s *stockService) ListMine(ctx context.Context, actor ActingIdentity) ([]dto.StockResponse, error) {
	if actor.Role != RoleMiller {
		return nil, notOwner("only millers have stock listings")
	}
	rows, err := s.repo.ListByMiller(ctx, actor.OwnerID())
	if err != nil {
		return nil, err
	}
	out := make([]dto.StockResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *stockToResponse(&rows[i]))
	}
	return out, nil
}

func (s *stockService) ListMarket(ctx context.Context, filter dto.MarketFilter) (*dto.StockListResponse, error) {
	rows, total, err := s.repo.ListMarket(ctx, repository.MarketFilter{
		Crop:  strings.TrimSpace(filter.Crop),
		Page:  filter.Page,
		Limit: filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	resp := &dto.StockListResponse{Data: make([]dto.StockResponse, 0, len(rows)), Total: total, Page: filter.Page, Limit: filter.Limit}
	for i := range rows {
		resp.Data = append(resp.Data, *stockToResponse(&rows[i]))
	}
	return resp, nil
}

func (s *stockService) ListHistory(ctx context.Context, actor ActingIdentity, listingID uuid.UUID, page, limit int) (*dto.StockHistoryListResponse, error) {
	listing, err := s.repo.FindByID(ctx, listingID)
	if err != nil {
		return nil, notFound(err, "stock listing %s", listingID)
	}
	if !actor.IsAdmin() && !actor.ownsStock(listing) {
		return nil, notOwner("stock listing %s belongs to another miller", listingID)
	}
	rows, total, err := s.history.ListByStock(ctx, listingID, page, limit)
	if err != nil {
		return nil, err
	}
	resp := &dto.StockHistoryListResponse{Data: make([]dto.StockHistoryItem, 0, len(rows)), Total: total, Page: page, Limit: limit}
	for _, h := range rows {
		resp.Data = append(resp.Data, dto.StockHistoryItem{
			ID:           h.ID.String(),
			StockID:      h.StockID.String(),
			ChangedBy:    h.ChangedBy.String(),
			OldPrice:     h.OldPrice,
			NewPrice:     h.NewPrice,
			OldQty:       h.OldQty,
			NewQty:       h.NewQty,
			OldDeduction: h.OldDeduction,
			NewDeduction: h.NewDeduction,
			Reason:       h.Reason,
			CreatedAt:    h.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp, nil
}

// ── Ledger primitives ────────────────────────────────────────────────────────

// DeductTx fails with ErrInvalidState when the listing is closed or holds
// less than qty; the guarded UPDATE makes the check and the write one step.
func (s *stockService) DeductTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error {
	if qty <= 0 {
		return validation("quantity must be positive")
	}
	err := s.repo.DeductTx(tx, listingID, qty)
	if errors.Is(err, repository.ErrConditionFailed) {
		return invalidState("listing %s is closed or has less than %d available", listingID, qty)
	}
	return err
}

func (s *stockService) RestoreTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	err := s.repo.RestoreTx(tx, listingID, qty)
	if errors.Is(err, repository.ErrConditionFailed) {
		return fmt.Errorf("%w: stock listing %s", ErrNotFound, listingID)
	}
	return err
}

// ReserveTx refuses to push reserved_qty past ceiling, the unloaded total of
// approved bookings on the listing.
func (s *stockService) ReserveTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty, ceiling int) error {
	if qty <= 0 {
		return validation("reservation must be positive")
	}
	err := s.repo.ReserveTx(tx, listingID, qty, ceiling)
	if errors.Is(err, repository.ErrConditionFailed) {
		log.Error().Str("stock_id", listingID.String()).Int("qty", qty).Int("ceiling", ceiling).
			Msg("stock: reservation exceeds outstanding bookings")
		return invalidState("reservation of %d on listing %s exceeds outstanding bookings", qty, listingID)
	}
	return err
}

func (s *stockService) ReleaseTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	err := s.repo.ReleaseTx(tx, listingID, qty)
	if errors.Is(err, repository.ErrConditionFailed) {
		return fmt.Errorf("%w: stock listing %s", ErrNotFound, listingID)
	}
	return err
}

func (s *stockService) ConsumeReservedTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error {
	if qty <= 0 {
		return validation("load must be positive")
	}
	err := s.repo.ConsumeReservedTx(tx, listingID, qty)
	if errors.Is(err, repository.ErrConditionFailed) {
		return fmt.Errorf("%w: stock listing %s", ErrNotFound, listingID)
	}
	return err
}

func stockToResponse(s *model.StockListing) *dto.StockResponse {
	return &dto.StockResponse{
		ID:            s.ID.String(),
		MillerID:      s.MillerID.String(),
		Crop:          s.Crop,
		Condition:     s.Condition,
		BagType:       s.BagType,
		DeductionRate: s.DeductionRate,
		Price:         s.Price,
		Quantity:      s.Quantity,
		ReservedQty:   s.ReservedQty,
		Status:        s.Status,
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
	}
}
