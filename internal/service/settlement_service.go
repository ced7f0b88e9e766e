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

// Computed settlement states.
const (
	SettlementPending       = "pending"
	SettlementPartiallyPaid = "partially_paid"
	SettlementPaid          = "paid"
)

// SettlementService handles final invoices and payment confirmation at both
// booking and truck level. Truck rows are authoritative; the booking Payment
// row is kept in step with them.
type SettlementService interface {
	UploadFinalInvoice(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, file string) (*dto.PaymentResponse, error)
	MarkPaymentDone(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.PaymentResponse, error)
	UploadTruckFinalInvoice(ctx context.Context, actor ActingIdentity, invoiceID uuid.UUID, file string) (*dto.TruckResponse, error)
	MarkTruckPaymentDone(ctx context.Context, actor ActingIdentity, invoiceID uuid.UUID) (*dto.TruckResponse, error)

	GetSettlement(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.SettlementResponse, error)
	// Statement is GetSettlement restricted to fully paid bookings.
	Statement(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.SettlementResponse, error)
	// SettlementFor skips the party check; used by background jobs.
	SettlementFor(ctx context.Context, bookingID uuid.UUID) (*dto.SettlementResponse, error)
	ListBuyerPayments(ctx context.Context, actor ActingIdentity) ([]dto.PaymentResponse, error)
}

type settlementService struct {
	bookings   repository.BookingRepository
	invoices   repository.LoadingInvoiceRepository
	payments   repository.PaymentRepository
	statements StatementQueue
	notify     *notifications
}

func NewSettlementService(
	bookings repository.BookingRepository,
	invoices repository.LoadingInvoiceRepository,
	payments repository.PaymentRepository,
	statements StatementQueue,
	notifier Notifier,
	contacts repository.ContactRepository,
) SettlementService {
	return &settlementService{
		bookings:   bookings,
		invoices:   invoices,
		payments:   payments,
		statements: statements,
		notify:     newNotifications(notifier, contacts),
	}
}

// UploadFinalInvoice bills a fully loaded booking in one go.
func (s *settlementService) UploadFinalInvoice(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, file string) (*dto.PaymentResponse, error) {
	if strings.TrimSpace(file) == "" {
		return nil, validation("final invoice file is required")
	}

	var (
		b *model.Booking
		p *model.Payment
	)
	err := runTx(ctx, s.bookings.DB(), func(tx *gorm.DB) error {
		var err error
		b, err = s.bookings.FindByIDTx(tx, bookingID)
		if err != nil {
			return notFound(err, "booking %s", bookingID)
		}
		if !actor.isMillerOf(b) {
			return notOwner("booking %s is on another miller's stock", bookingID)
		}
		if b.LoadingStatus != model.LoadingLoaded {
			return invalidState("booking %s is not fully loaded", b.OrderID)
		}

		existing, err := s.payments.FindByBookingIDTx(tx, b.ID)
		switch {
		case err == nil && existing.Status == model.PaymentPaid:
			return invalidState("booking %s is already paid", b.OrderID)
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		p = &model.Payment{
			BookingID:   b.ID,
			MillerID:    b.MillerID,
			BuyerID:     b.BuyerID,
			Amount:      decimal.NewFromInt(int64(b.LoadedQty)).Mul(b.Stock.Price),
			Status:      model.PaymentPending,
			InvoiceFile: &file,
		}
		if err := s.payments.UpsertTx(tx, p); err != nil {
			return err
		}
		p, err = s.payments.FindByBookingIDTx(tx, b.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", b.OrderID).Str("amount", p.Amount.StringFixed(2)).Msg("final invoice uploaded")
	s.notify.toUser(ctx, b.BuyerID, "settlement.invoice",
		fmt.Sprintf("Final invoice for booking %s: amount due %s.", b.OrderID, p.Amount.StringFixed(2)))
	return paymentToResponse(p, b), nil
}

// MarkPaymentDone confirms the booking-level payment. Repeating it changes
// nothing, paid_at included.
func (s *settlementService) MarkPaymentDone(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.PaymentResponse, error) {
	var (
		b       *model.Booking
		p       *model.Payment
		changed bool
	)
	err := runTx(ctx, s.bookings.DB(), func(tx *gorm.DB) error {
		var err error
		b, err = s.bookings.FindByIDTx(tx, bookingID)
		if err != nil {
			return notFound(err, "booking %s", bookingID)
		}
		if !actor.isMillerOf(b) && !actor.IsAdmin() {
			return notOwner("booking %s is on another miller's stock", bookingID)
		}
		p, err = s.payments.FindByBookingIDTx(tx, b.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalidState("booking %s has no final invoice", b.OrderID)
		}
		if err != nil {
			return err
		}
		if p.Status == model.PaymentPaid {
			return nil
		}
		if p.InvoiceFile == nil {
			return invalidState("booking %s has no final invoice", b.OrderID)
		}

		now := time.Now()
		if err := s.payments.MarkPaidTx(tx, b.ID, now); err != nil {
			return conflict(err)
		}
		p.Status = model.PaymentPaid
		p.PaidAt = &now
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		log.Info().Str("order_id", b.OrderID).Msg("booking payment confirmed")
		s.notify.toUser(ctx, b.BuyerID, "settlement.paid",
			fmt.Sprintf("Payment of %s for booking %s has been confirmed.", p.Amount.StringFixed(2), b.OrderID))
		s.enqueueStatement(ctx, b)
	}
	return paymentToResponse(p, b), nil
}

func (s *settlementService) UploadTruckFinalInvoice(ctx context.Context, actor ActingIdentity, invoiceID uuid.UUID, file string) (*dto.TruckResponse, error) {
	if strings.TrimSpace(file) == "" {
		return nil, validation("final invoice file is required")
	}

	var inv *model.LoadingInvoice
	err := runTx(ctx, s.bookings.DB(), func(tx *gorm.DB) error {
		var err error
		inv, err = s.invoices.FindByIDTx(tx, invoiceID)
		if err != nil {
			return notFound(err, "truck %s", invoiceID)
		}
		if !actor.isMillerOf(inv.Booking) {
			return notOwner("truck %s is on another miller's booking", invoiceID)
		}
		if inv.QCStatus != model.QCVerified {
			return invalidState("truck %s has no verified QC", invoiceID)
		}
		if inv.PaymentStatus != model.PaymentPending {
			return invalidState("truck %s is already paid", invoiceID)
		}
		if err := s.invoices.SetFinalInvoiceTx(tx, inv.ID, file); err != nil {
			return conflict(err)
		}
		inv.FinalInvoiceFile = &file
		return nil
	})
	if err != nil {
		return nil, err
	}

	amount := decimal.NewFromInt(int64(inv.LoadedQty)).Mul(inv.Booking.Stock.Price)
	s.notify.toUser(ctx, inv.Booking.BuyerID, "truck.invoice",
		fmt.Sprintf("Final invoice for a truck on booking %s: %d bags, amount due %s.",
			inv.Booking.OrderID, inv.LoadedQty, amount.StringFixed(2)))
	return truckToResponse(inv), nil
}

// MarkTruckPaymentDone confirms one truck. When that leaves every truck of a
// closed-out booking paid, the booking Payment is written as paid too.
func (s *settlementService) MarkTruckPaymentDone(ctx context.Context, actor ActingIdentity, invoiceID uuid.UUID) (*dto.TruckResponse, error) {
	var (
		inv         *model.LoadingInvoice
		changed     bool
		bookingPaid bool
	)
	err := runTx(ctx, s.bookings.DB(), func(tx *gorm.DB) error {
		var err error
		inv, err = s.invoices.FindByIDTx(tx, invoiceID)
		if err != nil {
			return notFound(err, "truck %s", invoiceID)
		}
		if !actor.isMillerOf(inv.Booking) && !actor.IsAdmin() {
			return notOwner("truck %s is on another miller's booking", invoiceID)
		}
		if inv.PaymentStatus == model.PaymentPaid {
			return nil
		}
		if inv.FinalInvoiceFile == nil {
			return invalidState("truck %s has no final invoice", invoiceID)
		}

		now := time.Now()
		if err := s.invoices.MarkPaidTx(tx, inv.ID, now); err != nil {
			return conflict(err)
		}
		inv.PaymentStatus = model.PaymentPaid
		inv.PaymentAt = &now
		changed = true

		bookingPaid, err = s.syncBookingPayment(tx, inv.Booking, inv.FinalInvoiceFile, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		b := inv.Booking
		log.Info().Str("truck_id", invoiceID.String()).Str("order_id", b.OrderID).
			Bool("booking_paid", bookingPaid).Msg("truck payment confirmed")
		s.notify.toUser(ctx, b.BuyerID, "truck.paid",
			fmt.Sprintf("Payment confirmed for a truck of %d bags on booking %s.", inv.LoadedQty, b.OrderID))
		if bookingPaid {
			s.enqueueStatement(ctx, b)
		}
	}
	return truckToResponse(inv), nil
}

// syncBookingPayment upserts the booking Payment as paid once the booking has
// stopped loading and all its trucks are paid. It reports whether it did.
func (s *settlementService) syncBookingPayment(tx *gorm.DB, b *model.Booking, invoiceFile *string, at time.Time) (bool, error) {
	if b.LoadingStatus != model.LoadingLoaded && b.LoadingStatus != model.LoadingPartialClosed {
		return false, nil
	}
	trucks, err := s.invoices.ListByBookingTx(tx, b.ID)
	if err != nil {
		return false, err
	}
	total := 0
	for _, t := range trucks {
		if t.PaymentStatus != model.PaymentPaid {
			return false, nil
		}
		total += t.LoadedQty
	}

	existing, err := s.payments.FindByBookingIDTx(tx, b.ID)
	switch {
	case err == nil:
		if existing.Status == model.PaymentPaid {
			return false, nil
		}
		if existing.InvoiceFile != nil {
			invoiceFile = existing.InvoiceFile
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return false, err
	}

	err = s.payments.UpsertTx(tx, &model.Payment{
		BookingID:   b.ID,
		MillerID:    b.MillerID,
		BuyerID:     b.BuyerID,
		Amount:      decimal.NewFromInt(int64(total)).Mul(b.Stock.Price),
		Status:      model.PaymentPaid,
		PaidAt:      &at,
		InvoiceFile: invoiceFile,
	})
	return err == nil, err
}

func (s *settlementService) enqueueStatement(ctx context.Context, b *model.Booking) {
	if s.statements == nil {
		return
	}
	if err := s.statements.EnqueueStatement(ctx, b.ID); err != nil {
		log.Warn().Err(err).Str("order_id", b.OrderID).Msg("settlement: statement enqueue failed")
	}
}

func (s *settlementService) GetSettlement(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.SettlementResponse, error) {
	b, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, notFound(err, "booking %s", bookingID)
	}
	if !actor.canView(b) {
		return nil, notOwner("booking %s is not yours", bookingID)
	}
	return s.compute(ctx, b)
}

func (s *settlementService) Statement(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) (*dto.SettlementResponse, error) {
	st, err := s.GetSettlement(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if st.Status != SettlementPaid {
		return nil, invalidState("booking %s is not fully paid", st.OrderID)
	}
	return st, nil
}

func (s *settlementService) SettlementFor(ctx context.Context, bookingID uuid.UUID) (*dto.SettlementResponse, error) {
	b, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, notFound(err, "booking %s", bookingID)
	}
	return s.compute(ctx, b)
}

// compute derives the booking-level view from the truck rows, unless a paid
// booking Payment already settles everything.
func (s *settlementService) compute(ctx context.Context, b *model.Booking) (*dto.SettlementResponse, error) {
	trucks, err := s.invoices.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	var payment *model.Payment
	p, err := s.payments.FindByBookingID(ctx, b.ID)
	switch {
	case err == nil:
		payment = p
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	price := decimal.Zero
	crop := ""
	if b.Stock != nil {
		price = b.Stock.Price
		crop = b.Stock.Crop
	}

	resp := &dto.SettlementResponse{
		BookingID:     b.ID.String(),
		OrderID:       b.OrderID,
		Crop:          crop,
		BuyerID:       b.BuyerID.String(),
		MillerID:      b.MillerID.String(),
		Price:         price,
		Quantity:      b.Quantity,
		LoadedQty:     b.LoadedQty,
		LoadingStatus: b.LoadingStatus,
		AmountDue:     decimal.NewFromInt(int64(b.LoadedQty)).Mul(price),
		AmountPaid:    decimal.Zero,
		Trucks:        make([]dto.SettlementLine, 0, len(trucks)),
	}

	allPaid := len(trucks) > 0
	for _, t := range trucks {
		amount := decimal.NewFromInt(int64(t.LoadedQty)).Mul(price)
		if t.PaymentStatus == model.PaymentPaid {
			resp.AmountPaid = resp.AmountPaid.Add(amount)
		} else {
			allPaid = false
		}
		resp.Trucks = append(resp.Trucks, dto.SettlementLine{
			TruckID:          t.ID.String(),
			TruckNumber:      t.TruckNumber,
			LoadedQty:        t.LoadedQty,
			Amount:           amount,
			QCStatus:         t.QCStatus,
			FinalInvoiceFile: t.FinalInvoiceFile,
			PaymentStatus:    t.PaymentStatus,
			PaymentAt:        formatTimePtr(t.PaymentAt),
		})
	}

	closed := b.LoadingStatus == model.LoadingLoaded || b.LoadingStatus == model.LoadingPartialClosed
	switch {
	case payment != nil && payment.Status == model.PaymentPaid:
		resp.Status = SettlementPaid
		resp.AmountPaid = payment.Amount
	case allPaid && closed:
		resp.Status = SettlementPaid
	case resp.AmountPaid.IsPositive():
		resp.Status = SettlementPartiallyPaid
	default:
		resp.Status = SettlementPending
	}
	if payment != nil {
		resp.Payment = paymentToResponse(payment, b)
	}
	return resp, nil
}

func (s *settlementService) ListBuyerPayments(ctx context.Context, actor ActingIdentity) ([]dto.PaymentResponse, error) {
	if actor.Role != RoleBuyer {
		return nil, notOwner("only buyers have payments")
	}
	rows, err := s.payments.ListByBuyer(ctx, actor.OwnerID(), model.PaymentPaid)
	if err != nil {
		return nil, err
	}
	out := make([]dto.PaymentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *paymentToResponse(&rows[i], rows[i].Booking))
	}
	return out, nil
}

func paymentToResponse(p *model.Payment, b *model.Booking) *dto.PaymentResponse {
	resp := &dto.PaymentResponse{
		ID:          p.ID.String(),
		BookingID:   p.BookingID.String(),
		Amount:      p.Amount,
		Status:      p.Status,
		PaidAt:      formatTimePtr(p.PaidAt),
		InvoiceFile: p.InvoiceFile,
	}
	if b != nil {
		resp.OrderID = b.OrderID
		if b.Stock != nil {
			resp.Crop = b.Stock.Crop
		}
	}
	return resp
}
