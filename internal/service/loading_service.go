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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var maxMoisture = decimal.NewFromInt(100)

// LoadingService records trucks leaving the mill and the QC done on them.
type LoadingService interface {
	RecordTruckLoad(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, req dto.TruckLoadRequest, invoiceFile string) (*dto.TruckLoadResponse, error)
	RecordQC(ctx context.Context, actor ActingIdentity, invoiceID uuid.UUID, req dto.RecordQCRequest) (*dto.TruckResponse, error)
	CloseRemaining(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, reason string) (*dto.BookingResponse, error)
	ListTrucks(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) ([]dto.TruckResponse, error)
}

type loadingService struct {
	bookings repository.BookingRepository
	invoices repository.LoadingInvoiceRepository
	stock    StockService
	booking  BookingService
	notify   *notifications
}

func NewLoadingService(
	bookings repository.BookingRepository,
	invoices repository.LoadingInvoiceRepository,
	stock StockService,
	booking BookingService,
	notifier Notifier,
	contacts repository.ContactRepository,
) LoadingService {
	return &loadingService{
		bookings: bookings,
		invoices: invoices,
		stock:    stock,
		booking:  booking,
		notify:   newNotifications(notifier, contacts),
	}
}

// RecordTruckLoad appends one truck to an approved booking. A load larger than
// what is left is clamped to the remainder; the response says so.
func (s *loadingService) RecordTruckLoad(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, req dto.TruckLoadRequest, invoiceFile string) (*dto.TruckLoadResponse, error) {
	if req.LoadQty <= 0 {
		return nil, validation("load quantity must be positive")
	}
	if strings.TrimSpace(invoiceFile) == "" {
		return nil, validation("loading invoice file is required")
	}

	var (
		b       *model.Booking
		inv     *model.LoadingInvoice
		clamped bool
	)
	err := runTx(ctx, s.bookings.DB(), func(tx *gorm.DB) error {
		var err error
		b, err = s.bookings.FindByIDTx(tx, bookingID)
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
		remaining := b.Remaining()
		if remaining <= 0 {
			return invalidState("booking %s is fully loaded", b.OrderID)
		}

		qty := req.LoadQty
		if qty > remaining {
			qty = remaining
			clamped = true
		}
		loaded := b.LoadedQty + qty
		status := model.LoadingPartial
		if loaded >= b.Quantity {
			status = model.LoadingLoaded
		}

		now := time.Now()
		if err := s.bookings.TransitionTx(tx, b.ID, b.Version, map[string]interface{}{
			"loaded_qty":     loaded,
			"loading_status": status,
			"truck_status":   status,
			"loaded_at":      now,
		}); err != nil {
			return conflict(err)
		}

		inv = &model.LoadingInvoice{
			BookingID:     b.ID,
			LoadedQty:     qty,
			InvoiceFile:   invoiceFile,
			QCStatus:      model.QCPending,
			PaymentStatus: model.PaymentPending,
		}
		if n := strings.TrimSpace(req.TruckNumber); n != "" {
			inv.TruckNumber = &n
		}
		if err := s.invoices.CreateTx(tx, inv); err != nil {
			return err
		}

		if err := s.stock.ConsumeReservedTx(ctx, tx, b.StockID, qty); err != nil {
			return err
		}

		b.LoadedQty = loaded
		b.LoadingStatus = status
		b.TruckStatus = status
		b.LoadedAt = &now
		b.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", b.OrderID).Int("truck_qty", inv.LoadedQty).
		Int("loaded", b.LoadedQty).Bool("clamped", clamped).Msg("truck loaded")
	s.notify.toUser(ctx, b.MillerID, "booking.truck_loaded",
		fmt.Sprintf("Truck loaded for booking %s: %d bags (%d of %d).",
			b.OrderID, inv.LoadedQty, b.LoadedQty, b.Quantity))

	return &dto.TruckLoadResponse{
		Booking: *bookingToResponse(b),
		Truck:   *truckToResponse(inv),
		Clamped: clamped,
	}, nil
}

// RecordQC stores weight and moisture for one truck. QC may be corrected until
// the miller uploads the truck's final invoice.
func (s *loadingService) RecordQC(ctx context.Context, actor ActingIdentity, invoiceID uuid.UUID, req dto.RecordQCRequest) (*dto.TruckResponse, error) {
	weight, err := parseQCNumber("weight", req.Weight)
	if err != nil {
		return nil, err
	}
	moisture, err := parseQCNumber("moisture", req.Moisture)
	if err != nil {
		return nil, err
	}
	if moisture.GreaterThan(maxMoisture) {
		return nil, validation("moisture %s exceeds 100", moisture.String())
	}
	var remarks *string
	if r := strings.TrimSpace(req.Remarks); r != "" {
		remarks = &r
	}

	var inv *model.LoadingInvoice
	err = runTx(ctx, s.bookings.DB(), func(tx *gorm.DB) error {
		var err error
		inv, err = s.invoices.FindByIDTx(tx, invoiceID)
		if err != nil {
			return notFound(err, "truck %s", invoiceID)
		}
		b := inv.Booking
		if !actor.isMillerOf(b) {
			return notOwner("truck %s is on another miller's booking", invoiceID)
		}
		if inv.FinalInvoiceFile != nil {
			return invalidState("truck %s already has a final invoice; QC is locked", invoiceID)
		}

		now := time.Now()
		fields := map[string]interface{}{
			"qc_weight":   weight,
			"qc_moisture": moisture,
			"qc_remarks":  remarks,
			"qc_status":   model.QCVerified,
			"qc_at":       now,
		}
		if err := s.invoices.RecordQCTx(tx, inv.ID, fields); err != nil {
			return conflict(err)
		}

		mirror := map[string]interface{}{
			"qc_weight":   weight,
			"qc_moisture": moisture,
			"qc_remarks":  remarks,
			"qc_status":   model.QCVerified,
			"qc_at":       now,
		}
		if err := s.bookings.TransitionTx(tx, b.ID, b.Version, mirror); err != nil {
			return conflict(err)
		}

		inv.QCWeight = decimal.NewNullDecimal(weight)
		inv.QCMoisture = decimal.NewNullDecimal(moisture)
		inv.QCRemarks = remarks
		inv.QCStatus = model.QCVerified
		inv.QCAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("truck_id", invoiceID.String()).Str("order_id", inv.Booking.OrderID).
		Str("weight", weight.String()).Str("moisture", moisture.String()).Msg("qc recorded")
	s.notify.toUser(ctx, inv.Booking.BuyerID, "truck.qc",
		fmt.Sprintf("QC done for booking %s: weight %s, moisture %s%%.",
			inv.Booking.OrderID, weight.String(), moisture.String()))
	return truckToResponse(inv), nil
}

func (s *loadingService) CloseRemaining(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID, reason string) (*dto.BookingResponse, error) {
	return s.booking.CloseRemaining(ctx, actor, bookingID, reason)
}

func (s *loadingService) ListTrucks(ctx context.Context, actor ActingIdentity, bookingID uuid.UUID) ([]dto.TruckResponse, error) {
	b, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, notFound(err, "booking %s", bookingID)
	}
	if !actor.canView(b) {
		return nil, notOwner("booking %s is not yours", bookingID)
	}
	rows, err := s.invoices.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.TruckResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *truckToResponse(&rows[i]))
	}
	return out, nil
}

// parseQCNumber rejects blank, malformed and negative input rather than
// storing a null.
func parseQCNumber(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, validation("%s is required", field)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, validation("%s %q is not a number", field, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, validation("%s cannot be negative", field)
	}
	return d, nil
}

func truckToResponse(inv *model.LoadingInvoice) *dto.TruckResponse {
	resp := &dto.TruckResponse{
		ID:               inv.ID.String(),
		BookingID:        inv.BookingID.String(),
		LoadedQty:        inv.LoadedQty,
		InvoiceFile:      inv.InvoiceFile,
		TruckNumber:      inv.TruckNumber,
		QCRemarks:        inv.QCRemarks,
		QCStatus:         inv.QCStatus,
		QCAt:             formatTimePtr(inv.QCAt),
		FinalInvoiceFile: inv.FinalInvoiceFile,
		PaymentStatus:    inv.PaymentStatus,
		PaymentAt:        formatTimePtr(inv.PaymentAt),
		CreatedAt:        inv.CreatedAt.Format(time.RFC3339),
	}
	if inv.QCWeight.Valid {
		w := inv.QCWeight.Decimal
		resp.QCWeight = &w
	}
	if inv.QCMoisture.Valid {
		m := inv.QCMoisture.Decimal
		resp.QCMoisture = &m
	}
	return resp
}
