package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/model"
	"sarnabroker/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	defaultDeclineReason = "Not specified"
	adminDeclineReason   = "Declined by admin"

	// exportLimit caps the rows written to one XLSX export.
	exportLimit = 5000
)

// Buyer list views.
const (
	ViewActive  = "active"
	ViewPartial = "partial"
	ViewLoaded  = "loaded"
)

// BookingService drives a booking from creation to decision and closure.
// Truck loading lives in LoadingService; money lives in SettlementService.
type BookingService interface {
	Create(ctx context.Context, actor ActingIdentity, listingID uuid.UUID, req dto.CreateBookingRequest) (*dto.BookingResponse, error)
	Approve(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.BookingResponse, error)
	Decline(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, reason string) (*dto.BookingResponse, error)
	Cancel(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.BookingResponse, error)
	CloseRemaining(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, reason string) (*dto.BookingResponse, error)
	AttachBill(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, file string) (*dto.BookingResponse, error)

	Get(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.BookingResponse, error)
	ListForBuyer(ctx context.Context, actor ActingIdentity, filter dto.BookingFilter) (*dto.BookingListResponse, error)
	ListForMiller(ctx context.Context, actor ActingIdentity, filter dto.BookingFilter) (*dto.BookingListResponse, error)
	ListAll(ctx context.Context, actor ActingIdentity, filter dto.BookingFilter) (*dto.BookingListResponse, error)
	ExportForMiller(ctx context.Context, actor ActingIdentity) ([]dto.BookingResponse, error)
}

type bookingService struct {
	repo   repository.BookingRepository
	stock  StockService
	stocks repository.StockRepository
	notify *notifications
}

func NewBookingService(
	repo repository.BookingRepository,
	stock StockService,
	stocks repository.StockRepository,
	notifier Notifier,
	contacts repository.ContactRepository,
) BookingService {
	return &bookingService{
		repo:   repo,
		stock:  stock,
		stocks: stocks,
		notify: newNotifications(notifier, contacts),
	}
}

// Create places a pending booking. The listing quantity is deducted at once so
// two buyers can never hold the same bags.
func (s *bookingService) Create(ctx context.Context, actor ActingIdentity, listingID uuid.UUID, req dto.CreateBookingRequest) (*dto.BookingResponse, error) {
	if actor.Role != RoleBuyer {
		return nil, notOwner("only buyers can book stock")
	}
	if req.Quantity <= 0 {
		return nil, validation("quantity must be positive")
	}

	var created *model.Booking
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		listing, err := s.stocks.FindByIDTx(tx, listingID)
		if err != nil {
			return notFound(err, "stock listing %s", listingID)
		}
		if listing.Status != model.StockOpen {
			return invalidState("stock listing %s is closed", listingID)
		}

		if err := s.stock.DeductTx(ctx, tx, listingID, req.Quantity); err != nil {
			return err
		}

		seq, err := s.repo.NextOrderNumberTx(tx)
		if err != nil {
			return fmt.Errorf("allocate order id: %w", err)
		}

		b := &model.Booking{
			OrderID:       fmt.Sprintf("S%d", seq),
			StockID:       listing.ID,
			BuyerID:       actor.OwnerID(),
			MillerID:      listing.MillerID,
			Quantity:      req.Quantity,
			Status:        model.BookingPending,
			LoadingStatus: model.LoadingPending,
			TruckStatus:   model.LoadingPending,
			QCStatus:      model.QCPending,
		}
		if err := s.repo.CreateTx(tx, b); err != nil {
			return err
		}
		b.Stock = listing
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", created.OrderID).Str("stock_id", listingID.String()).
		Int("quantity", created.Quantity).Msg("booking created")
	s.notify.toUser(ctx, created.MillerID, "booking.created",
		fmt.Sprintf("New booking %s: %d bags of %s awaiting your approval.",
			created.OrderID, created.Quantity, created.Stock.Crop))
	return bookingToResponse(created), nil
}

// Approve reserves the booked quantity against the listing.
func (s *bookingService) Approve(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.BookingResponse, error) {
	var b *model.Booking
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		b, err = s.repo.FindByIDTx(tx, bookingID)
		if err != nil {
			return notFound(err, "booking %s", bookingID)
		}
		if !actor.IsAdmin() && !actor.isMillerOf(b) {
			return notOwner("booking %s is on another miller's stock", bookingID)
		}
		if b.Status != model.BookingPending {
			return invalidState("booking %s is %s, not pending", b.OrderID, b.Status)
		}
		// Concurrent approvals on one listing queue here so the ceiling
		// below sees every approval committed before this one.
		if _, err := s.stocks.FindByIDTx(tx, b.StockID); err != nil {
			return notFound(err, "stock listing %s", b.StockID)
		}

		now := time.Now()
		if err := s.repo.TransitionTx(tx, b.ID, b.Version, map[string]interface{}{
			"status":      model.BookingApproved,
			"decision_at": now,
		}); err != nil {
			return conflict(err)
		}

		ceiling, err := s.repo.OutstandingTx(tx, b.StockID)
		if err != nil {
			return err
		}
		if err := s.stock.ReserveTx(ctx, tx, b.StockID, b.Remaining(), ceiling); err != nil {
			return err
		}

		b.Status = model.BookingApproved
		b.DecisionAt = &now
		b.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", b.OrderID).Str("by", actor.UserID.String()).Msg("booking approved")
	s.notify.toUser(ctx, b.BuyerID, "booking.approved",
		fmt.Sprintf("Booking %s has been approved. You can now schedule loading.", b.OrderID))
	return bookingToResponse(b), nil
}

// Decline rejects a booking that has not started loading and hands the whole
// quantity back to the listing.
func (s *bookingService) Decline(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, reason string) (*dto.BookingResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultDeclineReason
		if actor.IsAdmin() {
			reason = adminDeclineReason
		}
	}

	var b *model.Booking
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		b, err = s.repo.FindByIDTx(tx, bookingID)
		if err != nil {
			return notFound(err, "booking %s", bookingID)
		}
		if !actor.IsAdmin() && !actor.isMillerOf(b) {
			return notOwner("booking %s is on another miller's stock", bookingID)
		}
		switch {
		case b.Status == model.BookingPending:
		case b.Status == model.BookingApproved && b.LoadedQty == 0:
			if err := s.stock.ReleaseTx(ctx, tx, b.StockID, b.Quantity); err != nil {
				return err
			}
		case b.Status == model.BookingApproved:
			return invalidState("booking %s already has %d loaded", b.OrderID, b.LoadedQty)
		default:
			return invalidState("booking %s is %s and cannot be declined", b.OrderID, b.Status)
		}

		if err := s.stock.RestoreTx(ctx, tx, b.StockID, b.Quantity); err != nil {
			return err
		}

		now := time.Now()
		if err := s.repo.TransitionTx(tx, b.ID, b.Version, map[string]interface{}{
			"status":      model.BookingDeclined,
			"reason":      reason,
			"decision_at": now,
		}); err != nil {
			return conflict(err)
		}
		b.Status = model.BookingDeclined
		b.Reason = &reason
		b.DecisionAt = &now
		b.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", b.OrderID).Str("reason", reason).Msg("booking declined")
	s.notify.toUser(ctx, b.BuyerID, "booking.declined",
		fmt.Sprintf("Booking %s was declined. Reason: %s", b.OrderID, reason))
	return bookingToResponse(b), nil
}

// Cancel is the buyer walking away before any truck has loaded.
func (s *bookingService) Cancel(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.BookingResponse, error) {
	var b *model.Booking
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		b, err = s.repo.FindByIDTx(tx, bookingID)
		if err != nil {
			return notFound(err, "booking %s", bookingID)
		}
		if !actor.isBuyerOf(b) {
			return notOwner("booking %s belongs to another buyer", bookingID)
		}
		if b.Status != model.BookingPending && b.Status != model.BookingApproved {
			return invalidState("booking %s is %s and cannot be cancelled", b.OrderID, b.Status)
		}
		if b.LoadedQty > 0 {
			return invalidState("booking %s already has %d loaded; close the remainder instead", b.OrderID, b.LoadedQty)
		}

		remaining := b.Remaining()
		if b.Status == model.BookingApproved {
			if err := s.stock.ReleaseTx(ctx, tx, b.StockID, remaining); err != nil {
				return err
			}
		}
		if err := s.stock.RestoreTx(ctx, tx, b.StockID, remaining); err != nil {
			return err
		}

		if err := s.repo.TransitionTx(tx, b.ID, b.Version, map[string]interface{}{
			"status":         model.BookingCancelled,
			"loading_status": model.LoadingCancelled,
			"truck_status":   model.LoadingCancelled,
			"closed_by":      model.ClosedByBuyer,
		}); err != nil {
			return conflict(err)
		}
		closedBy := model.ClosedByBuyer
		b.Status = model.BookingCancelled
		b.LoadingStatus = model.LoadingCancelled
		b.TruckStatus = model.LoadingCancelled
		b.ClosedBy = &closedBy
		b.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", b.OrderID).Msg("booking cancelled by buyer")
	s.notify.toUser(ctx, b.MillerID, "booking.cancelled",
		fmt.Sprintf("Booking %s was cancelled by the buyer. %d bags returned to stock.", b.OrderID, b.Quantity))
	return bookingToResponse(b), nil
}

// CloseRemaining ends loading early. Whatever has not been loaded goes back to
// the listing and out of the reservation.
func (s *bookingService) CloseRemaining(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, reason string) (*dto.BookingResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validation("a reason is required to close the remaining quantity")
	}

	var (
		b         *model.Booking
		remaining int
	)
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		b, err = s.repo.FindByIDTx(tx, bookingID)
		if err != nil {
			return notFound(err, "booking %s", bookingID)
		}
		if !actor.isBuyerOf(b) {
			return notOwner("booking %s belongs to another buyer", bookingID)
		}
		if b.Status != model.BookingApproved {
			return invalidState("booking %s is %s, not approved", b.OrderID, b.Status)
		}
		if b.LoadingStatus != model.LoadingPending && b.LoadingStatus != model.LoadingPartial {
			return invalidState("booking %s loading is already %s", b.OrderID, b.LoadingStatus)
		}
		remaining = b.Remaining()
		if remaining <= 0 {
			return invalidState("booking %s has nothing left to close", b.OrderID)
		}

		if err := s.stock.ReleaseTx(ctx, tx, b.StockID, remaining); err != nil {
			return err
		}
		if err := s.stock.RestoreTx(ctx, tx, b.StockID, remaining); err != nil {
			return err
		}

		if err := s.repo.TransitionTx(tx, b.ID, b.Version, map[string]interface{}{
			"loading_status": model.LoadingPartialClosed,
			"truck_status":   model.LoadingPartialClosed,
			"close_reason":   reason,
			"closed_by":      model.ClosedByBuyer,
		}); err != nil {
			return conflict(err)
		}
		closedBy := model.ClosedByBuyer
		b.LoadingStatus = model.LoadingPartialClosed
		b.TruckStatus = model.LoadingPartialClosed
		b.CloseReason = &reason
		b.ClosedBy = &closedBy
		b.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", b.OrderID).Int("returned", remaining).Msg("booking remainder closed")
	s.notify.toUser(ctx, b.MillerID, "booking.partial_closed",
		fmt.Sprintf("Buyer closed booking %s after %d of %d bags. %d returned to stock. Reason: %s",
			b.OrderID, b.LoadedQty, b.Quantity, remaining, reason))
	return bookingToResponse(b), nil
}

// AttachBill records the miller's bill document on a fully loaded booking.
func (s *bookingService) AttachBill(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, file string) (*dto.BookingResponse, error) {
	if strings.TrimSpace(file) == "" {
		return nil, validation("bill document is required")
	}

	var b *model.Booking
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		b, err = s.repo.FindByIDTx(tx, bookingID)
		if err != nil {
			return notFound(err, "booking %s", bookingID)
		}
		if !actor.isMillerOf(b) {
			return notOwner("booking %s is on another miller's stock", bookingID)
		}
		if b.LoadingStatus != model.LoadingLoaded {
			return invalidState("booking %s is not fully loaded", b.OrderID)
		}
		if err := s.repo.TransitionTx(tx, b.ID, b.Version, map[string]interface{}{
			"bill_document": file,
		}); err != nil {
			return conflict(err)
		}
		b.BillDocument = &file
		b.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify.toUser(ctx, b.BuyerID, "booking.bill",
		fmt.Sprintf("The bill for booking %s is ready.", b.OrderID))
	return bookingToResponse(b), nil
}

func (s *bookingService) Get(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.BookingResponse, error) {
	b, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, notFound(err, "booking %s", bookingID)
	}
	if !actor.canView(b) {
		return nil, notOwner("booking %s is not yours", bookingID)
	}
	return bookingToResponse(b), nil
}

func (s *bookingService) ListForBuyer(ctx context.Context, actor ActingIdentity, filter dto.BookingFilter) (*dto.BookingListResponse, error) {
	if actor.Role != RoleBuyer {
		return nil, notOwner("only buyers have bookings")
	}
	buyer := actor.OwnerID()
	f := repository.BookingFilter{BuyerID: &buyer, Page: filter.Page, Limit: filter.Limit}
	switch filter.View {
	case "", ViewActive:
		f.Statuses = []string{model.BookingPending, model.BookingApproved}
		f.LoadingStatuses = []string{model.LoadingPending, model.LoadingPartial}
	case ViewPartial:
		f.LoadingStatuses = []string{model.LoadingPartialClosed}
	case ViewLoaded:
		f.LoadingStatuses = []string{model.LoadingLoaded}
	default:
		return nil, validation("unknown view %q", filter.View)
	}
	return s.list(ctx, f, filter)
}

func (s *bookingService) ListForMiller(ctx context.Context, actor ActingIdentity, filter dto.BookingFilter) (*dto.BookingListResponse, error) {
	if actor.Role != RoleMiller {
		return nil, notOwner("only millers receive bookings")
	}
	miller := actor.OwnerID()
	return s.list(ctx, repository.BookingFilter{MillerID: &miller, Page: filter.Page, Limit: filter.Limit}, filter)
}

func (s *bookingService) ListAll(ctx context.Context, actor ActingIdentity, filter dto.BookingFilter) (*dto.BookingListResponse, error) {
	if !actor.IsAdmin() {
		return nil, notOwner("admin only")
	}
	return s.list(ctx, repository.BookingFilter{Page: filter.Page, Limit: filter.Limit}, filter)
}

func (s *bookingService) ExportForMiller(ctx context.Context, actor ActingIdentity) ([]dto.BookingResponse, error) {
	if actor.Role != RoleMiller {
		return nil, notOwner("only millers receive bookings")
	}
	miller := actor.OwnerID()
	rows, _, err := s.repo.List(ctx, repository.BookingFilter{MillerID: &miller, Page: 1, Limit: exportLimit})
	if err != nil {
		return nil, err
	}
	out := make([]dto.BookingResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *bookingToResponse(&rows[i]))
	}
	return out, nil
}

func (s *bookingService) list(ctx context.Context, f repository.BookingFilter, filter dto.BookingFilter) (*dto.BookingListResponse, error) {
	rows, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	resp := &dto.BookingListResponse{
		Data:  make([]dto.BookingResponse, 0, len(rows)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range rows {
		resp.Data = append(resp.Data, *bookingToResponse(&rows[i]))
	}
	return resp, nil
}

func bookingToResponse(b *model.Booking) *dto.BookingResponse {
	resp := &dto.BookingResponse{
		ID:            b.ID.String(),
		OrderID:       b.OrderID,
		StockID:       b.StockID.String(),
		BuyerID:       b.BuyerID.String(),
		MillerID:      b.MillerID.String(),
		Quantity:      b.Quantity,
		LoadedQty:     b.LoadedQty,
		Remaining:     b.Remaining(),
		Status:        b.Status,
		LoadingStatus: b.LoadingStatus,
		TruckStatus:   b.TruckStatus,
		Reason:        b.Reason,
		CloseReason:   b.CloseReason,
		ClosedBy:      b.ClosedBy,
		BillDocument:  b.BillDocument,
		QCStatus:      b.QCStatus,
		DecisionAt:    formatTimePtr(b.DecisionAt),
		LoadedAt:      formatTimePtr(b.LoadedAt),
		CreatedAt:     b.CreatedAt.Format(time.RFC3339),
	}
	if b.Stock != nil {
		resp.Crop = b.Stock.Crop
		resp.Price = b.Stock.Price
	}
	return resp
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
