package router

import (
	"time"

	"sarnabroker/internal/config"
	"sarnabroker/internal/handler"
	"sarnabroker/internal/infra"
	"sarnabroker/internal/middleware"
	"sarnabroker/internal/repository"
	"sarnabroker/internal/service"
	"sarnabroker/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	miller = service.RoleMiller
	buyer  = service.RoleBuyer
	admin  = service.RoleAdmin
)

// Services is the core domain layer. The composition root shares it between
// the HTTP router and the background workers.
type Services struct {
	Stock      service.StockService
	Booking    service.BookingService
	Loading    service.LoadingService
	Settlement service.SettlementService
	Contacts   service.ContactService
}

// NewServices wires repositories into services.
// Dependency graph: Service ← Repository ← DB
func NewServices(db *gorm.DB, notifier service.Notifier, statements service.StatementQueue, phoneRegion string) *Services {
	stockRepo := repository.NewStockRepository(db)
	historyRepo := repository.NewStockHistoryRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	invoiceRepo := repository.NewLoadingInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	contactRepo := repository.NewContactRepository(db)

	stockSvc := service.NewStockService(stockRepo, historyRepo)
	bookingSvc := service.NewBookingService(bookingRepo, stockSvc, stockRepo, notifier, contactRepo)
	return &Services{
		Stock:      stockSvc,
		Booking:    bookingSvc,
		Loading:    service.NewLoadingService(bookingRepo, invoiceRepo, stockSvc, bookingSvc, notifier, contactRepo),
		Settlement: service.NewSettlementService(bookingRepo, invoiceRepo, paymentRepo, statements, notifier, contactRepo),
		Contacts:   service.NewContactService(contactRepo, phoneRegion),
	}
}

// Deps are the infrastructure handles the router needs besides services.
// Redis, Queue and SMSBreaker are optional and only feed /health.
type Deps struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Queue      worker.Queue
	SMSBreaker *infra.CircuitBreaker
	Docs       infra.DocumentStore
	Limiter    *middleware.RateLimiter
}

// New returns the configured Gin engine.
func New(d Deps, svc *Services) *gin.Engine {
	cfg := d.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = infra.MaxDocumentSize

	// Order matters: the request id must exist before anything logs.
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.ErrorHandler())
	limiter := d.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(cfg.RateLimitRPM, time.Minute)
	}
	r.Use(limiter.Middleware())

	contactsH := handler.NewContactsHandler(svc.Contacts)
	stockH := handler.NewStockHandler(svc.Stock)
	bookingsH := handler.NewBookingsHandler(svc.Booking, d.Docs)
	trucksH := handler.NewTrucksHandler(svc.Loading, d.Docs)
	settlementH := handler.NewSettlementHandler(svc.Settlement, d.Docs)
	documentsH := handler.NewDocumentsHandler(d.Docs)

	r.GET("/health", handler.Health(handler.HealthDeps{
		DB:         d.DB,
		Redis:      d.Redis,
		SMSBreaker: d.SMSBreaker,
		Queue:      d.Queue,
	}))

	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		v1.GET("/contacts/me", contactsH.Me)
		v1.PUT("/contacts/me", contactsH.Upsert)

		stock := v1.Group("/stock")
		{
			stock.POST("", middleware.RequireRole(miller), stockH.Post)
			stock.GET("/mine", middleware.RequireRole(miller), stockH.Mine)
			stock.PUT("/:id", middleware.RequireRole(miller), stockH.Update)
			stock.GET("/:id/history", middleware.RequireRole(miller, admin), stockH.History)
			stock.POST("/:id/bookings", middleware.RequireRole(buyer), bookingsH.Create)
		}
		v1.GET("/market", middleware.RequireRole(buyer, admin), stockH.Market)

		bookings := v1.Group("/bookings")
		{
			bookings.GET("", middleware.RequireRole(buyer), bookingsH.ListForBuyer)
			bookings.GET("/:id", bookingsH.Get)
			bookings.POST("/:id/approve", middleware.RequireRole(miller, admin), bookingsH.Approve)
			bookings.POST("/:id/decline", middleware.RequireRole(miller, admin), bookingsH.Decline)
			bookings.POST("/:id/cancel", middleware.RequireRole(buyer), bookingsH.Cancel)
			bookings.POST("/:id/close", middleware.RequireRole(buyer), trucksH.CloseRemaining)
			bookings.POST("/:id/bill", middleware.RequireRole(miller), bookingsH.AttachBill)

			bookings.POST("/:id/trucks", middleware.RequireRole(buyer), trucksH.RecordLoad)
			bookings.GET("/:id/trucks", trucksH.List)

			bookings.POST("/:id/final-invoice", middleware.RequireRole(miller), settlementH.UploadFinalInvoice)
			bookings.POST("/:id/paid", middleware.RequireRole(miller), settlementH.MarkPaid)
			bookings.GET("/:id/settlement", settlementH.Get)
			bookings.GET("/:id/statement.pdf", settlementH.StatementPDF)
		}

		trucks := v1.Group("/trucks", middleware.RequireRole(miller))
		{
			trucks.POST("/:id/qc", trucksH.RecordQC)
			trucks.POST("/:id/final-invoice", settlementH.UploadTruckFinalInvoice)
			trucks.POST("/:id/paid", settlementH.MarkTruckPaid)
		}

		millerGroup := v1.Group("/miller", middleware.RequireRole(miller))
		{
			millerGroup.GET("/bookings", bookingsH.ListForMiller)
			millerGroup.GET("/bookings/export", bookingsH.Export)
		}

		adminGroup := v1.Group("/admin", middleware.RequireRole(admin))
		{
			adminGroup.GET("/bookings", bookingsH.ListAll)
			adminGroup.PATCH("/stock/:id/deduction", stockH.UpdateDeduction)
		}

		v1.GET("/payments", middleware.RequireRole(buyer), settlementH.Payments)
		v1.GET("/documents/:name", documentsH.Download)
	}

	if !cfg.IsProduction() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
