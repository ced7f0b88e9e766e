package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/infra"
	"sarnabroker/internal/model"
	"sarnabroker/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	st  *dto.SettlementResponse
	err error
}

func (s *stubSource) SettlementFor(context.Context, uuid.UUID) (*dto.SettlementResponse, error) {
	return s.st, s.err
}

type capturedEmails struct{ jobs []EmailJobPayload }

func (c *capturedEmails) EnqueueEmail(_ context.Context, p EmailJobPayload) error {
	c.jobs = append(c.jobs, p)
	return nil
}

func paidSettlement(buyer uuid.UUID) *dto.SettlementResponse {
	return &dto.SettlementResponse{
		BookingID:     uuid.NewString(),
		OrderID:       "S10001",
		Crop:          "Paddy",
		BuyerID:       buyer.String(),
		MillerID:      uuid.NewString(),
		Price:         decimal.NewFromInt(20),
		Quantity:      20,
		LoadedQty:     20,
		LoadingStatus: "loaded",
		AmountDue:     decimal.NewFromInt(400),
		AmountPaid:    decimal.NewFromInt(400),
		Status:        "paid",
	}
}

func statementJob(t *testing.T) json.RawMessage {
	raw, err := json.Marshal(StatementJobPayload{BookingID: uuid.NewString()})
	require.NoError(t, err)
	return raw
}

func TestStatementWorker_QueuesPDFForBuyer(t *testing.T) {
	db := newTestDB(t)
	contacts := repository.NewContactRepository(db)
	buyer := uuid.New()
	mail := "buyer@example.com"
	require.NoError(t, contacts.Upsert(context.Background(), &model.Contact{
		UserID: buyer, Role: "buyer", Name: "Buyer", Phone: "+919876500002", Email: &mail,
	}))

	emails := &capturedEmails{}
	w := NewStatementWorker(&stubSource{st: paidSettlement(buyer)}, contacts, emails)
	w.Process(context.Background(), statementJob(t))

	require.Len(t, emails.jobs, 1)
	job := emails.jobs[0]
	assert.Equal(t, mail, job.ToEmail)
	assert.Contains(t, job.Subject, "S10001")
	require.Len(t, job.Attachments, 1)
	assert.Equal(t, "application/pdf", job.Attachments[0].ContentType)
	assert.True(t, bytes.HasPrefix(job.Attachments[0].Data, []byte("%PDF")))
}

func TestStatementWorker_SkipsUnpaidOrNoEmail(t *testing.T) {
	db := newTestDB(t)
	contacts := repository.NewContactRepository(db)
	buyer := uuid.New()
	require.NoError(t, contacts.Upsert(context.Background(), &model.Contact{
		UserID: buyer, Role: "buyer", Name: "Buyer", Phone: "+919876500002",
	}))

	emails := &capturedEmails{}

	st := paidSettlement(buyer)
	NewStatementWorker(&stubSource{st: st}, contacts, emails).Process(context.Background(), statementJob(t))
	assert.Empty(t, emails.jobs, "no email on file")

	st.Status = "partially_paid"
	NewStatementWorker(&stubSource{st: st}, contacts, emails).Process(context.Background(), statementJob(t))
	assert.Empty(t, emails.jobs)

	NewStatementWorker(&stubSource{err: errors.New("db down")}, contacts, emails).Process(context.Background(), statementJob(t))
	assert.Empty(t, emails.jobs)
}

// ── email ────────────────────────────────────────────────────────────────────

func emailJob(t *testing.T) json.RawMessage {
	raw, err := json.Marshal(EmailJobPayload{
		ToEmail:     "buyer@example.com",
		Subject:     "Settlement statement S10001",
		Body:        "attached",
		Attachments: []EmailAttachment{{Name: "s.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3")}},
	})
	require.NoError(t, err)
	return raw
}

func TestEmailWorker_SendsWithAttachment(t *testing.T) {
	m := &stubMailer{}
	w := NewEmailWorker(m)
	w.Process(context.Background(), emailJob(t))

	assert.Equal(t, 1, m.calls)
	assert.Equal(t, "buyer@example.com", m.last.to)
	require.Len(t, m.last.atts, 1)
	assert.Equal(t, []byte("%PDF-1.3"), m.last.atts[0].Data)
}

func TestEmailWorker_RetriesThenGivesUp(t *testing.T) {
	m := &stubMailer{err: errors.New("smtp 421")}
	w := NewEmailWorker(m)
	w.retryGap = 0
	w.Process(context.Background(), emailJob(t))
	assert.Equal(t, 3, m.calls)
}

func TestEmailWorker_DisabledMailerIsNotRetried(t *testing.T) {
	m := &stubMailer{err: infra.ErrMailerDisabled}
	w := NewEmailWorker(m)
	w.Process(context.Background(), emailJob(t))
	assert.Equal(t, 1, m.calls)
}
