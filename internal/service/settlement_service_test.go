package service_test

import (
	"context"
	"testing"

	"sarnabroker/internal/model"
	"sarnabroker/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settleTruck runs QC, final invoice and payment for one truck.
func (e *testEnv) settleTruck(t *testing.T, truckID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	_, err := e.loading.RecordQC(ctx, e.miller, truckID, qc("1000", "12"))
	require.NoError(t, err)
	_, err = e.settlement.UploadTruckFinalInvoice(ctx, e.miller, truckID, "final.pdf")
	require.NoError(t, err)
	_, err = e.settlement.MarkTruckPaymentDone(ctx, e.miller, truckID)
	require.NoError(t, err)
}

// Scenario A, settlement half.
func TestTruckSettlement_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 40)
	truckID := uuid.MustParse(env.loadTruck(t, bookingID, 40).Truck.ID)

	env.settleTruck(t, truckID)

	st, err := env.settlement.GetSettlement(ctx, env.buyer, bookingID)
	require.NoError(t, err)
	assert.Equal(t, service.SettlementPaid, st.Status)
	require.Len(t, st.Trucks, 1)
	assert.Equal(t, model.PaymentPaid, st.Trucks[0].PaymentStatus)
	assert.True(t, st.AmountDue.Equal(decimal.NewFromInt(400)))
	assert.True(t, st.AmountPaid.Equal(decimal.NewFromInt(400)))

	// The booking Payment converged on the truck total.
	p, err := env.paymentRepo.FindByBookingID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, 1, env.statements.count())
}

func TestTruckSettlement_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 40)
	truckID := uuid.MustParse(env.loadTruck(t, bookingID, 40).Truck.ID)

	_, err := env.settlement.UploadTruckFinalInvoice(ctx, env.miller, truckID, "final.pdf")
	assert.ErrorIs(t, err, service.ErrInvalidState, "no QC yet")

	_, err = env.settlement.MarkTruckPaymentDone(ctx, env.miller, truckID)
	assert.ErrorIs(t, err, service.ErrInvalidState, "no final invoice yet")

	_, err = env.settlement.UploadTruckFinalInvoice(ctx, env.buyer, truckID, "final.pdf")
	assert.ErrorIs(t, err, service.ErrNotOwner)
}

func TestMarkTruckPaymentDone_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 40)
	truckID := uuid.MustParse(env.loadTruck(t, bookingID, 40).Truck.ID)
	env.settleTruck(t, truckID)

	first, err := env.loading.ListTrucks(ctx, env.miller, bookingID)
	require.NoError(t, err)

	resp, err := env.settlement.MarkTruckPaymentDone(ctx, env.miller, truckID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, resp.PaymentStatus)
	assert.Equal(t, *first[0].PaymentAt, *resp.PaymentAt)
	assert.Equal(t, 1, env.statements.count(), "second call enqueues nothing")

	_, err = env.settlement.UploadTruckFinalInvoice(ctx, env.miller, truckID, "again.pdf")
	assert.ErrorIs(t, err, service.ErrInvalidState)
}

func TestSettlement_PartialPaymentAcrossTrucks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 50)
	first := uuid.MustParse(env.loadTruck(t, bookingID, 20).Truck.ID)
	second := uuid.MustParse(env.loadTruck(t, bookingID, 30).Truck.ID)

	env.settleTruck(t, first)
	st, err := env.settlement.GetSettlement(ctx, env.miller, bookingID)
	require.NoError(t, err)
	assert.Equal(t, service.SettlementPartiallyPaid, st.Status)
	assert.True(t, st.AmountPaid.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 0, env.statements.count())

	_, err = env.paymentRepo.FindByBookingID(ctx, bookingID)
	assert.Error(t, err, "no booking payment until every truck is paid")

	env.settleTruck(t, second)
	st, err = env.settlement.GetSettlement(ctx, env.miller, bookingID)
	require.NoError(t, err)
	assert.Equal(t, service.SettlementPaid, st.Status)
	assert.True(t, st.AmountPaid.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 1, env.statements.count())
}

func TestSettlement_PartialClosedBookingSyncsOnLastTruck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 50)
	truckID := uuid.MustParse(env.loadTruck(t, bookingID, 20).Truck.ID)
	_, err := env.booking.CloseRemaining(ctx, env.buyer, bookingID, "mill delay")
	require.NoError(t, err)

	env.settleTruck(t, truckID)

	p, err := env.paymentRepo.FindByBookingID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(200)))

	payments, err := env.settlement.ListBuyerPayments(ctx, env.buyer)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "Paddy", payments[0].Crop)
}

func TestBookingLevelSettlement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 40)

	_, err := env.settlement.UploadFinalInvoice(ctx, env.miller, bookingID, "final.pdf")
	assert.ErrorIs(t, err, service.ErrInvalidState, "not loaded yet")

	_, err = env.settlement.MarkPaymentDone(ctx, env.miller, bookingID)
	assert.ErrorIs(t, err, service.ErrInvalidState, "no invoice yet")

	env.loadTruck(t, bookingID, 40)
	p, err := env.settlement.UploadFinalInvoice(ctx, env.miller, bookingID, "final.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(400)))

	paid, err := env.settlement.MarkPaymentDone(ctx, env.miller, bookingID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, 1, env.statements.count())

	again, err := env.settlement.MarkPaymentDone(ctx, env.miller, bookingID)
	require.NoError(t, err)
	assert.Equal(t, *paid.PaidAt, *again.PaidAt, "paid_at is not reset")
	assert.Equal(t, 1, env.statements.count())

	_, err = env.settlement.UploadFinalInvoice(ctx, env.miller, bookingID, "other.pdf")
	assert.ErrorIs(t, err, service.ErrInvalidState, "paid payment is left unchanged")

	// A paid booking Payment settles the whole booking even with unpaid trucks.
	st, err := env.settlement.Statement(ctx, env.buyer, bookingID)
	require.NoError(t, err)
	assert.Equal(t, service.SettlementPaid, st.Status)
	assert.Equal(t, model.PaymentPending, st.Trucks[0].PaymentStatus)
}

func TestStatement_RequiresFullPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 40)
	env.loadTruck(t, bookingID, 40)

	_, err := env.settlement.Statement(ctx, env.buyer, bookingID)
	assert.ErrorIs(t, err, service.ErrInvalidState)

	_, err = env.settlement.GetSettlement(ctx, env.other, bookingID)
	assert.ErrorIs(t, err, service.ErrNotOwner)
}
