package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/bulk"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/config"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/notifications"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/verification"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/pkg/storage"
)

// JobWorker claims queued bulk jobs and runs them outside the API process.
// Claims take the job's run lease with a guarded update, so several workers
// can poll the same table without adopting the same job twice. The same
// sweep re-adopts interrupted jobs once a dead owner's lease lapses.
type JobWorker struct {
	service      *bulk.Service
	logger       *zap.Logger
	pollInterval time.Duration
	done         chan struct{}
}

// NewJobWorker creates a new job worker
func NewJobWorker(service *bulk.Service, logger *zap.Logger, pollInterval time.Duration) *JobWorker {
	return &JobWorker{
		service:      service,
		logger:       logger,
		pollInterval: pollInterval,
		done:         make(chan struct{}),
	}
}

// Start polls for queued jobs until the context is cancelled or Stop is called
func (w *JobWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting bulk job worker",
		zap.Duration("poll_interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Adopt interrupted jobs and claim queued ones immediately
	w.adoptInterrupted(ctx)
	w.claimQueued(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Bulk job worker shutting down")
			return nil
		case <-w.done:
			w.logger.Info("Bulk job worker stopped")
			return nil
		case <-ticker.C:
			w.adoptInterrupted(ctx)
			w.claimQueued(ctx)
		}
	}
}

// Stop stops the worker
func (w *JobWorker) Stop() {
	close(w.done)
}

func (w *JobWorker) claimQueued(ctx context.Context) {
	started, err := w.service.StartQueued(ctx)
	if err != nil {
		w.logger.Error("Failed to claim queued jobs", zap.Error(err))
		return
	}
	if started > 0 {
		w.logger.Info("Claimed queued bulk jobs", zap.Int("count", started))
	}
}

// adoptInterrupted re-adopts jobs whose owner stopped renewing its run
// lease, typically after a crash in another process. Jobs with a live
// owner are left alone.
func (w *JobWorker) adoptInterrupted(ctx context.Context) {
	if _, err := w.service.RecoverInterrupted(ctx); err != nil {
		w.logger.Error("Failed to recover interrupted jobs", zap.Error(err))
	}
}

func main() {
	godotenv.Load()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect to database
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Test connection
	if err := db.Ping(); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Connected to database")

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

	// The verification service applies transition decisions locally. The
	// worker never serves status reads, so no cache is attached.
	verificationRepo := verification.NewPostgresRepository(db)
	verificationSvc := verification.NewService(verificationRepo, notifier, nil, verification.UrgencyThresholds{
		CriticalDays: cfg.Verification.CriticalDays,
		HighDays:     cfg.Verification.HighDays,
		MediumDays:   cfg.Verification.MediumDays,
	}, logger)

	// Bulk decisions go to the platform first when one is configured; the
	// local record only changes after the platform confirms.
	var applier bulk.DecisionApplier = verificationSvc
	if cfg.Platform.BaseURL != "" {
		platform := bulk.NewHTTPTransitionClient(
			cfg.Platform.BaseURL, cfg.Platform.APIKey, cfg.Platform.Timeout(), logger)
		applier = bulk.ApplierChain{platform, verificationSvc}
	}

	bulkRepo := bulk.NewPostgresRepository(db)
	executors := &bulk.ExecutorSet{
		Transition: bulk.NewTransitionExecutor(applier),
		Message:    bulk.NewMessageExecutor(bulkRepo, notifier),
		Export:     bulk.NewExportExecutor(bulkRepo, artifacts),
	}
	orchestrator := bulk.NewOrchestrator(bulkRepo, executors, nil, logger, bulk.Options{
		WorkerCount: cfg.Bulk.WorkerCount,
		ItemTimeout: cfg.Bulk.ItemTimeout(),
		LeaseTTL:    cfg.Bulk.LeaseTTL(),
	})
	service := bulk.NewService(bulkRepo, orchestrator, artifacts, logger, bulk.ServiceOptions{
		Retention: cfg.Bulk.Retention(),
		AutoStart: false,
	})

	scheduler := cron.New()

	// Hourly retention sweep for expired jobs and their export artifacts
	if _, err := scheduler.AddFunc("@hourly", func() {
		purged, err := service.PurgeExpired(context.Background())
		if err != nil {
			logger.Error("Retention sweep failed", zap.Error(err))
			return
		}
		if purged > 0 {
			logger.Info("Purged expired bulk jobs", zap.Int64("count", purged))
		}
	}); err != nil {
		logger.Fatal("Failed to schedule retention sweep", zap.Error(err))
	}

	// Daily digest of the review queue by urgency band
	if _, err := scheduler.AddFunc("@daily", func() {
		digest, err := verificationSvc.Digest(context.Background())
		if err != nil {
			logger.Error("Review queue digest failed", zap.Error(err))
			return
		}
		logger.Info("Review queue digest",
			zap.Int("pending", digest.Total),
			zap.Int("critical", digest.Critical),
			zap.Int("high", digest.High),
			zap.Int("medium", digest.Medium),
			zap.Int("low", digest.Low),
			zap.Int("oldest_waiting_days", digest.OldestWaitingDays))
	}); err != nil {
		logger.Fatal("Failed to schedule review queue digest", zap.Error(err))
	}

	scheduler.Start()

	// Create worker
	worker := NewJobWorker(service, logger, cfg.Bulk.PollInterval())

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Start worker
	logger.Info("Bulk worker starting")
	if err := worker.Start(ctx); err != nil {
		logger.Error("Worker error", zap.Error(err))
	}

	// Wait for any scheduled run in flight, then drain live runs so
	// interrupted jobs stay adoptable on restart.
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Bulk run loops did not drain cleanly", zap.Error(err))
	}

	logger.Info("Bulk worker stopped")
}
