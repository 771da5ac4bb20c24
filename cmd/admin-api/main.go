package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	v1 "github.com/MdMirzaShihab/aaroth-fresh-admin-backend/api/v1"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/auth"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/bulk"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/config"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/notifications"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/notifications/stream"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/verification"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/pkg/storage"
)

func main() {
	godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Security.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	// Connect to database
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if cfg.Database.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	// The notification store rides the same connection through gorm.
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to open gorm connection", zap.Error(err))
	}

	// AWS clients for exports and message delivery
	awsCfg, err := storage.LoadAWSConfig(context.Background(),
		cfg.AWS.Region, cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey)
	if err != nil {
		logger.Fatal("Failed to load AWS configuration", zap.Error(err))
	}
	artifacts := storage.NewS3Store(awsCfg, cfg.AWS.ExportBucket)

	// Notification service (email always, SMS when enabled)
	notificationStore, err := notifications.NewGormStore(gormDB)
	if err != nil {
		logger.Fatal("Failed to initialize notification store", zap.Error(err))
	}
	var email *notifications.EmailChannel
	if cfg.AWS.SenderEmail != "" {
		email = notifications.NewEmailChannel(sesv2.NewFromConfig(awsCfg), cfg.AWS.SenderEmail)
	}
	var sms *notifications.SMSChannel
	if cfg.AWS.SMSEnabled {
		sms = notifications.NewSMSChannel(sns.NewFromConfig(awsCfg))
	}
	notifier := notifications.NewService(notificationStore, email, sms, logger)

	// Initialize Verification Module
	verificationAPI, err := v1.SetupVerificationAPI(db, v1.VerificationDeps{
		Notifier: notifier,
		Urgency: verification.UrgencyThresholds{
			CriticalDays: cfg.Verification.CriticalDays,
			HighDays:     cfg.Verification.HighDays,
			MediumDays:   cfg.Verification.MediumDays,
		},
	}, logger)
	if err != nil {
		logger.Fatal("Failed to set up verification module", zap.Error(err))
	}
	defer verificationAPI.Cache.Stop()

	// Progress stream for the admin console
	hub := stream.NewHub(logger)

	// Bulk decisions go to the platform first when one is configured; the
	// local record only changes after the platform confirms.
	var applier bulk.DecisionApplier = verificationAPI.Service
	if cfg.Platform.BaseURL != "" {
		platform := bulk.NewHTTPTransitionClient(
			cfg.Platform.BaseURL, cfg.Platform.APIKey, cfg.Platform.Timeout(), logger)
		applier = bulk.ApplierChain{platform, verificationAPI.Service}
	}

	// Initialize Bulk Operations Module
	bulkAPI, err := v1.SetupBulkAPI(db, v1.BulkDeps{
		Applier:   applier,
		Messages:  notifier,
		Artifacts: artifacts,
		Publisher: hub,
		Run: bulk.Options{
			WorkerCount: cfg.Bulk.WorkerCount,
			ItemTimeout: cfg.Bulk.ItemTimeout(),
			LeaseTTL:    cfg.Bulk.LeaseTTL(),
		},
		Lifecycle: bulk.ServiceOptions{
			Retention: cfg.Bulk.Retention(),
			AutoStart: true,
		},
	}, logger)
	if err != nil {
		logger.Fatal("Failed to set up bulk module", zap.Error(err))
	}

	// Adopt jobs interrupted by a previous crash or deploy, then keep
	// sweeping: a crashed owner's run lease can outlive the boot sweep,
	// and its jobs only become adoptable once the lease lapses.
	recoveryCtx, stopRecovery := context.WithCancel(context.Background())
	if _, err := bulkAPI.Service.RecoverInterrupted(recoveryCtx); err != nil {
		logger.Warn("Failed to recover interrupted bulk jobs", zap.Error(err))
	}
	go func() {
		ticker := time.NewTicker(cfg.Bulk.PollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-recoveryCtx.Done():
				return
			case <-ticker.C:
				if _, err := bulkAPI.Service.RecoverInterrupted(recoveryCtx); err != nil {
					logger.Warn("Failed to recover interrupted bulk jobs", zap.Error(err))
				}
			}
		}
	}()

	// Setup Router
	gin.SetMode(gin.DebugMode)
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":          "healthy",
			"timestamp":       time.Now(),
			"progressClients": hub.ClientCount(),
		})
	})

	// Register Routes
	api := router.Group("/api/v1")
	api.Use(auth.Middleware(cfg.Security.JWTSecret, logger))
	{
		v1.RegisterVerificationRoutes(api, verificationAPI)

		adminOnly := api.Group("")
		adminOnly.Use(auth.RequireRoles(auth.RoleAdmin))
		{
			v1.RegisterBulkRoutes(adminOnly, bulkAPI)
			adminOnly.GET("/ws/progress", hub.HandleProgressSocket)
		}
	}

	// Start Server
	srv := &http.Server{
		Addr:    cfg.Server.GetServerAddr(),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen: %s\n", zap.Error(err))
		}
	}()

	logger.Info("Admin API started", zap.String("addr", cfg.Server.GetServerAddr()))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Drain live bulk runs and release their leases so interrupted jobs
	// are adoptable the moment a replacement boots
	stopRecovery()
	if err := bulkAPI.Service.Shutdown(ctx); err != nil {
		logger.Warn("Bulk run loops did not drain cleanly", zap.Error(err))
	}
	hub.Close()

	logger.Info("Server exiting")
}
