package router

import (
	"net/http"

	"bookswap/config"
	"bookswap/internal/domain"
	"bookswap/internal/handler"
	"bookswap/internal/ledger"
	"bookswap/internal/metrics"
	"bookswap/internal/middleware"
	"bookswap/internal/payments"
	"bookswap/internal/recommend"
	"bookswap/internal/repository"
	"bookswap/internal/service"
	"bookswap/internal/valuation"
	"bookswap/internal/ws"
	"bookswap/pkg/cloudinary"
	"bookswap/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the clients built once in main. Cloud, Model, Redis and FCM may be nil.
type Deps struct {
	DB       *gorm.DB
	Cloud    cloudinary.Client
	Payments payment.Provider
	Model    valuation.Model
	Redis    redis.UniversalClient
	FCM      *service.FCMService
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// App is the wired HTTP engine plus the pieces the background jobs need.
type App struct {
	Engine    *gin.Engine
	Exchanges *service.ExchangeService
	Limiter   *middleware.RateLimiter
	Hub       *ws.Hub
}

func Setup(cfg *config.Config, d Deps) *App {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Metrics), middleware.RateLimit(limiter))

	// Repositories
	userRepo := repository.NewUserRepository(d.DB)
	bookRepo := repository.NewBookRepository(d.DB)
	exchangeRepo := repository.NewExchangeRepository(d.DB)
	notificationRepo := repository.NewNotificationRepository(d.DB)
	auditRepo := repository.NewAuditLogRepository(d.DB)
	recommendRepo := repository.NewRecommendationRepository(d.DB)
	ledgerRepo := repository.NewLedgerRepository(d.DB)
	adminRepo := repository.NewAdminRepository(d.DB)

	hub := ws.NewHub()

	// Services
	ledgerSvc := ledger.NewService(ledgerRepo, d.Metrics)
	notifSvc := service.NewNotificationService(notificationRepo, userRepo, hub, d.FCM)
	authSvc := service.NewAuthService(&cfg.JWT, userRepo)
	estimator := valuation.NewEstimator(d.Model, cfg.Valuation.Timeout, d.Metrics)
	listingSvc := service.NewListingService(bookRepo, exchangeRepo, userRepo, estimator, ledgerSvc, notifSvc, cfg.Points.ListingBonus)
	exchangeSvc := service.NewExchangeService(bookRepo, exchangeRepo, ledgerSvc, notifSvc, d.Metrics, cfg.Points.RequestExpiry)
	intake := payments.NewIntake(cfg.Payment.WebhookSecret, ledgerSvc, notifSvc, d.Metrics)

	var cache recommend.Cache
	if d.Redis != nil {
		cache = recommend.NewRedisCache(d.Redis)
	}
	scorer := recommend.NewScorer(recommendRepo, cache, recommend.Options{
		CandidateLimit: cfg.Recommend.CandidateLimit,
		Window:         cfg.Recommend.TrendingWindow,
		CacheTTL:       cfg.Recommend.CacheTTL,
	})

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, auditRepo)
	meHandler := handler.NewMeHandler(userRepo)
	pointsHandler := handler.NewPointsHandler(ledgerSvc, d.Payments, &cfg.Payment)
	bookHandler := handler.NewBookHandler(listingSvc, bookRepo, scorer, d.Cloud)
	exchangeHandler := handler.NewExchangeHandler(exchangeSvc)
	notificationHandler := handler.NewNotificationHandler(notificationRepo)
	webhookHandler := handler.NewPaymentWebhookHandler(intake, auditRepo)
	adminHandler := handler.NewAdminHandler(ledgerSvc, adminRepo, auditRepo)

	authMw := middleware.AuthRequired(&cfg.JWT)
	optionalAuth := middleware.OptionalAuth(&cfg.JWT)

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": hub.ClientCount()})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/ws/notifications", ws.UpgradeNotificationsWS(&cfg.JWT, hub))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.PATCH("/change-password", authMw, authHandler.ChangePassword)
		}

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("", meHandler.Profile)
			me.PUT("", meHandler.UpdateProfile)
			me.POST("/fcm-token", meHandler.RegisterFCMToken)
			me.GET("/points", pointsHandler.Balance)
			me.GET("/points/history", pointsHandler.History)
			me.GET("/books", bookHandler.Mine)
			me.GET("/requests", exchangeHandler.Mine)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		}

		points := api.Group("/points")
		{
			points.GET("/packages", pointsHandler.Packages)
			points.POST("/checkout", authMw, pointsHandler.Checkout)
		}

		books := api.Group("/books")
		{
			books.GET("", bookHandler.List)
			books.GET("/recommended", optionalAuth, bookHandler.Recommended)
			books.GET("/:id", optionalAuth, bookHandler.Get)
			books.POST("", authMw, bookHandler.Create)
			books.POST("/:id/requests", authMw, exchangeHandler.Request)
		}

		requests := api.Group("/requests")
		requests.Use(authMw)
		{
			requests.POST("/:id/accept", exchangeHandler.Accept)
			requests.POST("/:id/reject", exchangeHandler.Reject)
			requests.POST("/:id/complete", exchangeHandler.Complete)
			requests.POST("/:id/cancel", exchangeHandler.Cancel)
		}

		api.POST("/webhooks/stripe", webhookHandler.Stripe)

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.RequireRole(domain.RoleAdmin))
		{
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.GET("/users", adminHandler.Users)
			admin.GET("/transactions", adminHandler.Transactions)
			admin.GET("/ledger/:user_id/reconcile", adminHandler.Reconcile)
			admin.GET("/audit-logs", adminHandler.AuditLogs)
		}
	}

	return &App{Engine: r, Exchanges: exchangeSvc, Limiter: limiter, Hub: hub}
}
