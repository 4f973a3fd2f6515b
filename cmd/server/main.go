package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookswap/config"
	"bookswap/internal/database"
	"bookswap/internal/jobs"
	"bookswap/internal/metrics"
	"bookswap/internal/router"
	"bookswap/internal/service"
	"bookswap/internal/valuation"
	"bookswap/pkg/cloudinary"
	"bookswap/pkg/payment"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	if err := database.SeedAdmin(ctx, db, &cfg.Admin); err != nil {
		log.WithError(err).Error("seed admin")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	deps := router.Deps{
		DB:       db,
		Cloud:    newCloud(cfg),
		Payments: newPaymentProvider(cfg),
		Redis:    newRedis(ctx, cfg),
		FCM:      service.NewFCMService(ctx, cfg.Firebase.ServiceAccountPath),
		Metrics:  m,
		Gatherer: reg,
	}
	if model := valuation.NewOpenAIModel(cfg.Valuation.APIKey, cfg.Valuation.BaseURL, cfg.Valuation.Model); model != nil {
		deps.Model = model
		log.WithField("model", cfg.Valuation.Model).Info("valuation model enabled")
	} else {
		log.Info("valuation model disabled: rule-based estimates only")
	}
	if deps.FCM == nil {
		log.Info("push notifications disabled")
	}

	app := router.Setup(cfg, deps)

	scheduler := jobs.NewScheduler(app.Exchanges, app.Limiter)
	if err := scheduler.Start(ctx, cfg.Points.ExpirySpec); err != nil {
		log.WithError(err).Fatal("scheduler")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.Engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.WithField("port", cfg.Server.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	if deps.Redis != nil {
		_ = deps.Redis.Close()
	}
	log.Info("server stopped")
}

func setupLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
}

func newCloud(cfg *config.Config) cloudinary.Client {
	c := cfg.Cloudinary
	if c.CloudName == "" || c.APIKey == "" || c.APISecret == "" {
		log.Info("cloudinary not configured: listings are created without covers")
		return nil
	}
	cloud, err := cloudinary.NewClientFromParams(c.CloudName, c.APIKey, c.APISecret, c.Folder)
	if err != nil {
		log.WithError(err).Fatal("cloudinary")
	}
	return cloud
}

func newPaymentProvider(cfg *config.Config) payment.Provider {
	if cfg.Payment.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY is empty: using the stub checkout provider")
		return &payment.StubProvider{}
	}
	p, err := payment.NewStripeProvider(cfg.Payment.StripeSecretKey, nil)
	if err != nil {
		log.WithError(err).Fatal("stripe")
	}
	return p
}

// newRedis returns nil when Redis is not configured or unreachable; recommendations then run uncached.
func newRedis(ctx context.Context, cfg *config.Config) redis.UniversalClient {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable: recommendations will not be cached")
		_ = client.Close()
		return nil
	}
	return client
}
