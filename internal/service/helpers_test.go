package service_test

import (
	"context"
	"sync"
	"testing"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/infra"
	"sarnabroker/internal/model"
	"sarnabroker/internal/repository"
	"sarnabroker/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ── Notifier / statement stubs ───────────────────────────────────────────────

type sentMessage struct {
	Phone   string
	Message string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

var _ service.Notifier = (*recordingNotifier)(nil)

func (n *recordingNotifier) Send(_ context.Context, phone, message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return false
	}
	n.sent = append(n.sent, sentMessage{Phone: phone, Message: message})
	return true
}

func (n *recordingNotifier) messagesTo(phone string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.sent {
		if m.Phone == phone {
			out = append(out, m.Message)
		}
	}
	return out
}

type recordingStatements struct {
	mu     sync.Mutex
	queued []uuid.UUID
}

var _ service.StatementQueue = (*recordingStatements)(nil)

func (q *recordingStatements) EnqueueStatement(_ context.Context, bookingID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queued = append(q.queued, bookingID)
	return nil
}

func (q *recordingStatements) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

// ── Environment ──────────────────────────────────────────────────────────────

const (
	millerPhone = "+919876500001"
	buyerPhone  = "+919876500002"
)

type testEnv struct {
	db         *gorm.DB
	stock      service.StockService
	booking    service.BookingService
	loading    service.LoadingService
	settlement service.SettlementService
	contacts   service.ContactService

	stockRepo   repository.StockRepository
	bookingRepo repository.BookingRepository
	paymentRepo repository.PaymentRepository

	notifier   *recordingNotifier
	statements *recordingStatements

	miller service.ActingIdentity
	staff  service.ActingIdentity
	buyer  service.ActingIdentity
	other  service.ActingIdentity
	admin  service.ActingIdentity
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, infra.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)

	stockRepo := repository.NewStockRepository(db)
	historyRepo := repository.NewStockHistoryRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	invoiceRepo := repository.NewLoadingInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	contactRepo := repository.NewContactRepository(db)

	notifier := &recordingNotifier{}
	statements := &recordingStatements{}

	stockSvc := service.NewStockService(stockRepo, historyRepo)
	bookingSvc := service.NewBookingService(bookingRepo, stockSvc, stockRepo, notifier, contactRepo)

	millerID := uuid.New()
	env := &testEnv{
		db:          db,
		stock:       stockSvc,
		booking:     bookingSvc,
		loading:     service.NewLoadingService(bookingRepo, invoiceRepo, stockSvc, bookingSvc, notifier, contactRepo),
		settlement:  service.NewSettlementService(bookingRepo, invoiceRepo, paymentRepo, statements, notifier, contactRepo),
		contacts:    service.NewContactService(contactRepo, "IN"),
		stockRepo:   stockRepo,
		bookingRepo: bookingRepo,
		paymentRepo: paymentRepo,
		notifier:    notifier,
		statements:  statements,
		miller:      service.ActingIdentity{UserID: millerID, Role: service.RoleMiller},
		staff:       service.ActingIdentity{UserID: uuid.New(), EffectiveOwnerID: millerID, Role: service.RoleMiller, IsStaff: true},
		buyer:       service.ActingIdentity{UserID: uuid.New(), Role: service.RoleBuyer},
		other:       service.ActingIdentity{UserID: uuid.New(), Role: service.RoleBuyer},
		admin:       service.ActingIdentity{UserID: uuid.New(), Role: service.RoleAdmin},
	}

	ctx := context.Background()
	_, err := env.contacts.Upsert(ctx, env.miller, dto.UpsertContactRequest{Name: "Shree Mill", Phone: millerPhone})
	require.NoError(t, err)
	_, err = env.contacts.Upsert(ctx, env.buyer, dto.UpsertContactRequest{Name: "Ravi Traders", Phone: buyerPhone})
	require.NoError(t, err)
	return env
}

// ── Fixtures ─────────────────────────────────────────────────────────────────

func (e *testEnv) postStock(t *testing.T, qty int, price string) uuid.UUID {
	t.Helper()
	resp, err := e.stock.PostStock(context.Background(), e.miller, dto.PostStockRequest{
		Crop:     "Paddy",
		Quantity: qty,
		Price:    decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return uuid.MustParse(resp.ID)
}

func (e *testEnv) book(t *testing.T, listingID uuid.UUID, qty int) uuid.UUID {
	t.Helper()
	resp, err := e.booking.Create(context.Background(), e.buyer, listingID, dto.CreateBookingRequest{Quantity: qty})
	require.NoError(t, err)
	return uuid.MustParse(resp.ID)
}

func (e *testEnv) approvedBooking(t *testing.T, listingID uuid.UUID, qty int) uuid.UUID {
	t.Helper()
	id := e.book(t, listingID, qty)
	_, err := e.booking.Approve(context.Background(), e.miller, id)
	require.NoError(t, err)
	return id
}

func (e *testEnv) loadTruck(t *testing.T, bookingID uuid.UUID, qty int) *dto.TruckLoadResponse {
	t.Helper()
	resp, err := e.loading.RecordTruckLoad(context.Background(), e.buyer, bookingID,
		dto.TruckLoadRequest{LoadQty: qty, TruckNumber: "OD02AB1234"}, "loading-invoice.pdf")
	require.NoError(t, err)
	return resp
}

func (e *testEnv) listing(t *testing.T, id uuid.UUID) *model.StockListing {
	t.Helper()
	s, err := e.stockRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (e *testEnv) bookingRow(t *testing.T, id uuid.UUID) *model.Booking {
	t.Helper()
	b, err := e.bookingRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return b
}
