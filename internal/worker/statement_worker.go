package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/infra"
	"sarnabroker/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StatementSource is satisfied by service.SettlementService.
type StatementSource interface {
	SettlementFor(ctx context.Context, bookingID uuid.UUID) (*dto.SettlementResponse, error)
}

// EmailQueue is satisfied by *Dispatcher.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload EmailJobPayload) error
}

// StatementWorker renders the settlement PDF of a paid booking and queues it
// for the buyer's email, when the buyer has one on file.
type StatementWorker struct {
	source   StatementSource
	contacts repository.ContactRepository
	emails   EmailQueue
	now      func() time.Time
}

func NewStatementWorker(source StatementSource, contacts repository.ContactRepository, emails EmailQueue) *StatementWorker {
	return &StatementWorker{source: source, contacts: contacts, emails: emails, now: time.Now}
}

func (w *StatementWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload StatementJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("statement_worker: invalid payload")
		return
	}
	bookingID, err := uuid.Parse(payload.BookingID)
	if err != nil {
		log.Error().Err(err).Str("booking_id", payload.BookingID).Msg("statement_worker: bad booking id")
		return
	}

	st, err := w.source.SettlementFor(ctx, bookingID)
	if err != nil {
		log.Error().Err(err).Str("booking_id", payload.BookingID).Msg("statement_worker: settlement lookup failed")
		return
	}
	if st.Status != "paid" {
		log.Warn().Str("booking_id", payload.BookingID).Str("status", st.Status).Msg("statement_worker: booking not paid, skipping")
		return
	}

	buyerID, err := uuid.Parse(st.BuyerID)
	if err != nil {
		return
	}
	c, err := w.contacts.FindByUserID(ctx, buyerID)
	if err != nil || c.Email == nil || *c.Email == "" {
		log.Info().Str("booking_id", payload.BookingID).Msg("statement_worker: buyer has no email on file")
		return
	}

	var buf bytes.Buffer
	if err := infra.RenderStatementPDF(st, w.now(), &buf); err != nil {
		log.Error().Err(err).Str("booking_id", payload.BookingID).Msg("statement_worker: render failed")
		return
	}

	job := EmailJobPayload{
		ToEmail: *c.Email,
		Subject: fmt.Sprintf("Settlement statement %s", st.OrderID),
		Body: fmt.Sprintf("Payment for order %s (%s, %d bags) is complete. The statement is attached.",
			st.OrderID, st.Crop, st.LoadedQty),
		Attachments: []EmailAttachment{{
			Name:        fmt.Sprintf("statement-%s.pdf", st.OrderID),
			ContentType: "application/pdf",
			Data:        buf.Bytes(),
		}},
	}
	if err := w.emails.EnqueueEmail(ctx, job); err != nil {
		log.Error().Err(err).Str("booking_id", payload.BookingID).Msg("statement_worker: email enqueue failed")
		return
	}
	log.Info().Str("order_id", st.OrderID).Msg("statement_worker: statement queued")
}
