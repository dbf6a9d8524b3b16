package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kerhoff/vpcs/internal/api"
	"github.com/Kerhoff/vpcs/internal/auth"
	"github.com/Kerhoff/vpcs/internal/config"
	"github.com/Kerhoff/vpcs/internal/metrics"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/notify"
	"github.com/Kerhoff/vpcs/internal/pending"
	"github.com/Kerhoff/vpcs/internal/repository/postgres"
	"github.com/Kerhoff/vpcs/internal/scheduler"
	"github.com/Kerhoff/vpcs/internal/service"
	"github.com/Kerhoff/vpcs/pkg/logger"
	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.Production())
	l.WithField("environment", cfg.Environment).Info("Starting vpcs...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := config.NewDatabase(ctx, cfg.DatabaseURL, l)
	if err != nil {
		l.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(cfg.MigrationsPath); err != nil {
		l.Fatalf("Failed to run migrations: %v", err)
	}

	// Pending-approval store
	var pendingStore pending.Store
	var memoryStore *pending.MemoryStore
	if cfg.RedisURL != "" {
		rdb, err := config.NewRedis(ctx, cfg.RedisURL, l)
		if err != nil {
			l.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		pendingStore = pending.NewRedisStore(rdb)
	} else {
		l.Warn("REDIS_URL not set, keeping pending approvals in memory")
		memoryStore = pending.NewMemoryStore(time.Now)
		pendingStore = memoryStore
	}

	m := metrics.New()

	// Repositories
	userRepo := postgres.NewUserRepository(db.DB)
	authenticatorRepo := postgres.NewAuthenticatorRepository(db.DB)
	familyRepo := postgres.NewFamilyRepository(db.DB)
	vendorRepo := postgres.NewVendorRepository(db.DB)
	transactionRepo := postgres.NewTransactionRepository(db.DB)
	subscriptionRepo := postgres.NewPushSubscriptionRepository(db.DB)
	logRepo := postgres.NewNotificationLogRepository(db.DB)
	settingsRepo := postgres.NewNotificationSettingsRepository(db.DB)
	jobRepo := postgres.NewJobRepository(db.DB)

	// Push delivery
	vapid := notify.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	}
	if vapid.PublicKey == "" {
		vapid.PrivateKey, vapid.PublicKey, err = webpush.GenerateVAPIDKeys()
		if err != nil {
			l.Fatalf("Failed to generate VAPID keys: %v", err)
		}
		l.Warn("VAPID keys not configured, using ephemeral keys; push subscriptions will not survive a restart")
	}
	dispatcher := notify.NewDispatcher(notify.Config{
		Subscriptions: subscriptionRepo,
		Logs:          logRepo,
		Settings:      settingsRepo,
		Templates:     postgres.NewTemplateRepository(db.DB),
		Sender:        notify.NewWebPushSender(vapid, &http.Client{Timeout: 10 * time.Second}),
		Metrics:       m,
		Logger:        l,
		Location:      cfg.QuietHoursLocation,
	})

	// Authentication
	ceremony, err := auth.NewWebAuthnCeremony(auth.RelyingParty{
		ID:          cfg.RPID,
		DisplayName: cfg.RPName,
		Origins:     cfg.RPOrigins,
	})
	if err != nil {
		l.Fatalf("Failed to configure WebAuthn: %v", err)
	}
	authSvc := auth.NewService(userRepo, authenticatorRepo, ceremony, auth.NewTokenIssuer(cfg.JWTSecret, auth.SessionTTL), l)

	// Service layer
	svc := service.New(service.Deps{
		Users:         userRepo,
		Families:      familyRepo,
		Vendors:       vendorRepo,
		Transactions:  transactionRepo,
		Subscriptions: subscriptionRepo,
		Logs:          logRepo,
		Settings:      settingsRepo,
		Invites:       postgres.NewInviteRepository(db.DB),
		Pending:       pendingStore,
		Notifier:      dispatcher,
		Scheduler:     scheduler.NewQueue(jobRepo, time.Now),
		Auth:          authSvc,
		Metrics:       m,
		Logger:        l,
	}, service.Options{
		ApprovalWindow: cfg.ApprovalWindow,
		PendingTTL:     cfg.PendingTTL,
		DefaultLimit:   cfg.DefaultSpendingLimit,
		MaxAmount:      cfg.MaxPurchaseAmount,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	// Auto-approval scheduler
	runner := scheduler.NewRunner(jobRepo, scheduler.Options{PollInterval: cfg.SchedulerPollInterval}, m, l)
	runner.Handle(models.JobKindAutoApprove, svc.HandleAutoApprove)
	runner.OnTick(svc.SweepStalePending)
	if memoryStore != nil {
		runner.OnTick(func(context.Context) {
			if n := memoryStore.Sweep(); n > 0 {
				l.WithField("evicted", n).Debug("Evicted expired pending approvals")
			}
		})
	}
	go runner.Start(ctx)

	// HTTP API
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	apiServer := api.NewServer(svc, authSvc, api.Options{
		AllowedOrigins:  cfg.FrontendURLs,
		VAPIDPublicKey:  vapid.PublicKey,
		InsecureCookies: !cfg.Production(),
	}, l)
	go apiServer.RunJanitor(ctx)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("HTTP server error: %v", err)
			cancel()
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.PrometheusPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		l.Infof("Metrics server listening on :%s", cfg.PrometheusPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("Metrics server error: %v", err)
		}
	}()

	l.Info("vpcs started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Feed().Close(); err != nil {
		l.WithError(err).Warn("Failed to close vendor feed")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Error("HTTP server shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Error("Metrics server shutdown failed")
	}

	l.Info("vpcs stopped")
}
