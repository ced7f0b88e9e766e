package service_test

import (
	"context"
	"testing"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/model"
	"sarnabroker/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qc(weight, moisture string) dto.RecordQCRequest {
	return dto.RecordQCRequest{Weight: weight, Moisture: moisture, Remarks: "ok"}
}

// Scenario C: partial close after one truck.
func TestCloseRemaining_AfterOneTruck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 50)
	s := env.listing(t, id)
	require.Equal(t, 50, s.Quantity)
	require.Equal(t, 50, s.ReservedQty)

	env.loadTruck(t, bookingID, 20)
	s = env.listing(t, id)
	assert.Equal(t, 30, s.Quantity)
	assert.Equal(t, 30, s.ReservedQty)

	resp, err := env.loading.CloseRemaining(ctx, env.buyer, bookingID, "mill delay")
	require.NoError(t, err)
	assert.Equal(t, model.LoadingPartialClosed, resp.LoadingStatus)
	assert.Equal(t, 20, resp.LoadedQty)
	require.NotNil(t, resp.ClosedBy)
	assert.Equal(t, model.ClosedByBuyer, *resp.ClosedBy)

	s = env.listing(t, id)
	assert.Equal(t, 60, s.Quantity)
	assert.Equal(t, 0, s.ReservedQty)
}

func TestCloseRemaining_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")

	pending := env.book(t, id, 10)
	_, err := env.booking.CloseRemaining(ctx, env.buyer, pending, "x")
	assert.ErrorIs(t, err, service.ErrInvalidState)

	approved := env.approvedBooking(t, id, 10)
	_, err = env.booking.CloseRemaining(ctx, env.buyer, approved, "   ")
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = env.booking.CloseRemaining(ctx, env.other, approved, "x")
	assert.ErrorIs(t, err, service.ErrNotOwner)

	env.loadTruck(t, approved, 10)
	_, err = env.booking.CloseRemaining(ctx, env.buyer, approved, "x")
	assert.ErrorIs(t, err, service.ErrInvalidState, "fully loaded")
}

// Scenario A, loading half.
func TestRecordTruckLoad_FullLoad(t *testing.T) {
	env := newTestEnv(t)
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 40)

	resp := env.loadTruck(t, bookingID, 40)
	assert.False(t, resp.Clamped)
	assert.Equal(t, 40, resp.Booking.LoadedQty)
	assert.Equal(t, model.LoadingLoaded, resp.Booking.LoadingStatus)
	assert.Equal(t, model.LoadingLoaded, resp.Booking.TruckStatus)
	assert.NotNil(t, resp.Booking.LoadedAt)
	assert.Equal(t, model.QCPending, resp.Truck.QCStatus)
	assert.Equal(t, model.PaymentPending, resp.Truck.PaymentStatus)

	s := env.listing(t, id)
	assert.Equal(t, 20, s.Quantity)
	assert.Equal(t, 0, s.ReservedQty)

	msgs := env.notifier.messagesTo(millerPhone)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1], "40 of 40")
}

// Scenario D: an over-sized truck is clamped to what is left.
func TestRecordTruckLoad_ClampsToRemaining(t *testing.T) {
	env := newTestEnv(t)
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 50)
	env.loadTruck(t, bookingID, 45)

	resp := env.loadTruck(t, bookingID, 20)
	assert.True(t, resp.Clamped)
	assert.Equal(t, 5, resp.Truck.LoadedQty)
	assert.Equal(t, 50, resp.Booking.LoadedQty)
	assert.Equal(t, model.LoadingLoaded, resp.Booking.LoadingStatus)

	trucks, err := env.loading.ListTrucks(context.Background(), env.miller, bookingID)
	require.NoError(t, err)
	sum := 0
	for _, tr := range trucks {
		sum += tr.LoadedQty
	}
	assert.Equal(t, env.bookingRow(t, bookingID).LoadedQty, sum, "truck rows add up to loaded_qty")
}

func TestRecordTruckLoad_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	pending := env.book(t, id, 10)

	_, err := env.loading.RecordTruckLoad(ctx, env.buyer, pending, dto.TruckLoadRequest{LoadQty: 5}, "inv.pdf")
	assert.ErrorIs(t, err, service.ErrInvalidState)

	approved := env.approvedBooking(t, id, 10)
	_, err = env.loading.RecordTruckLoad(ctx, env.other, approved, dto.TruckLoadRequest{LoadQty: 5}, "inv.pdf")
	assert.ErrorIs(t, err, service.ErrNotOwner)

	_, err = env.loading.RecordTruckLoad(ctx, env.buyer, approved, dto.TruckLoadRequest{LoadQty: 5}, "")
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = env.loading.RecordTruckLoad(ctx, env.buyer, approved, dto.TruckLoadRequest{LoadQty: 0}, "inv.pdf")
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = env.loading.RecordTruckLoad(ctx, env.buyer, uuid.New(), dto.TruckLoadRequest{LoadQty: 5}, "inv.pdf")
	assert.ErrorIs(t, err, service.ErrNotFound)

	assert.Equal(t, 0, env.bookingRow(t, approved).LoadedQty)
}

func TestRecordQC_VerifiesAndMirrorsToBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 40)
	truckID := uuid.MustParse(env.loadTruck(t, bookingID, 40).Truck.ID)

	resp, err := env.loading.RecordQC(ctx, env.staff, truckID, qc("4010.5", "13.2"))
	require.NoError(t, err)
	assert.Equal(t, model.QCVerified, resp.QCStatus)
	require.NotNil(t, resp.QCWeight)
	assert.Equal(t, "4010.5", resp.QCWeight.String())
	assert.NotNil(t, resp.QCAt)

	b := env.bookingRow(t, bookingID)
	assert.Equal(t, model.QCVerified, b.QCStatus)
	require.True(t, b.QCMoisture.Valid)
	assert.Equal(t, "13.2", b.QCMoisture.Decimal.String())

	// Re-QC is allowed until a final invoice exists.
	_, err = env.loading.RecordQC(ctx, env.miller, truckID, qc("4000", "12"))
	require.NoError(t, err)

	_, err = env.settlement.UploadTruckFinalInvoice(ctx, env.miller, truckID, "final.pdf")
	require.NoError(t, err)
	_, err = env.loading.RecordQC(ctx, env.miller, truckID, qc("1", "1"))
	assert.ErrorIs(t, err, service.ErrInvalidState)
}

func TestRecordQC_InvalidNumbersLeaveStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 40)
	truckID := uuid.MustParse(env.loadTruck(t, bookingID, 40).Truck.ID)

	cases := []dto.RecordQCRequest{
		qc("abc", "12"),
		qc("4000", "twelve"),
		qc("-1", "12"),
		qc("4000", "-0.5"),
		qc("4000", "100.1"),
		qc("", "12"),
	}
	for _, req := range cases {
		_, err := env.loading.RecordQC(ctx, env.miller, truckID, req)
		assert.ErrorIs(t, err, service.ErrValidation, "weight=%q moisture=%q", req.Weight, req.Moisture)
	}

	trucks, err := env.loading.ListTrucks(ctx, env.buyer, bookingID)
	require.NoError(t, err)
	require.Len(t, trucks, 1)
	assert.Equal(t, model.QCPending, trucks[0].QCStatus)
	assert.Nil(t, trucks[0].QCWeight)
	assert.Equal(t, model.QCPending, env.bookingRow(t, bookingID).QCStatus)
}

func TestRecordQC_OnlyListingMiller(t *testing.T) {
	env := newTestEnv(t)
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 40)
	truckID := uuid.MustParse(env.loadTruck(t, bookingID, 40).Truck.ID)

	_, err := env.loading.RecordQC(context.Background(), env.buyer, truckID, qc("1", "1"))
	assert.ErrorIs(t, err, service.ErrNotOwner)
}

func TestLoadedQtyOnlyGrows(t *testing.T) {
	env := newTestEnv(t)
	id := env.postStock(t, 100, "10")
	bookingID := env.approvedBooking(t, id, 30)

	prev := 0
	for _, qty := range []int{10, 5, 15, 7} {
		resp, err := env.loading.RecordTruckLoad(context.Background(), env.buyer, bookingID,
			dto.TruckLoadRequest{LoadQty: qty}, "inv.pdf")
		if err != nil {
			assert.ErrorIs(t, err, service.ErrInvalidState)
			continue
		}
		assert.GreaterOrEqual(t, resp.Booking.LoadedQty, prev)
		assert.LessOrEqual(t, resp.Booking.LoadedQty, 30)
		prev = resp.Booking.LoadedQty
	}
	assert.Equal(t, 30, prev)
}
