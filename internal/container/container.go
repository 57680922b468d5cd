// Package container assembles repositories, services and background workers from configuration.
package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/realtime"
	"github.com/noah-isme/signatory-approval-api/internal/repository"
	"github.com/noah-isme/signatory-approval-api/internal/service"
	"github.com/noah-isme/signatory-approval-api/pkg/cache"
	"github.com/noah-isme/signatory-approval-api/pkg/config"
	"github.com/noah-isme/signatory-approval-api/pkg/database"
	"github.com/noah-isme/signatory-approval-api/pkg/jobs"
	"github.com/noah-isme/signatory-approval-api/pkg/storage"
)

// Container owns every long-lived dependency of the API process.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Machine *approval.Machine
	Metrics *service.MetricsService
	Hub     *realtime.Hub

	Auth          *service.AuthService
	Cache         *service.CacheService
	Requests      *service.RequestService
	Queues        *service.QueueService
	Decisions     *service.DecisionService
	Attachments   *service.AttachmentService
	Documents     *service.DocumentService
	Notifications *service.NotificationService
	// Dispatcher is nil when Redis is unavailable, since runs are serialized by a Redis lock.
	Dispatcher *service.NotificationDispatcher

	deliveries *jobs.Queue[int64]
	cancel     context.CancelFunc
}

// Open connects to PostgreSQL and, when reachable, Redis, then assembles the container.
// A Redis outage disables the queue cache and the dispatcher rather than failing startup.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, queue cache and dispatcher disabled", zap.Error(err))
		client = nil
	}
	c, err := Assemble(cfg, logger, db, client)
	if err != nil {
		_ = db.Close()
		if client != nil {
			_ = client.Close()
		}
		return nil, err
	}
	return c, nil
}

// Assemble wires services over already-open connections. redisClient may be nil.
func Assemble(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, redisClient *redis.Client) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	machine := approval.NewMachine(nil)
	registry := machine.Registry()
	metrics := service.NewMetricsService()
	validate := validator.New()
	hub := realtime.NewHub(logger.Named("realtime"))

	requestRepo := repository.NewRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logger)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reviews.QueueCacheTTL, logger, cfg.Reviews.CacheEnabled)

	files, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("prepare attachment storage: %w", err)
	}
	if cfg.Attachments.SigningSecret == "" {
		return nil, errors.New("attachment signing secret is required")
	}
	signer := storage.NewURLSigner(cfg.Attachments.SigningSecret, cfg.Attachments.LinkTTL)

	notifications := service.NewNotificationService(notificationRepo, hub, metrics, logger.Named("notifications"), cfg.Reviews.HistoryPageSize)
	deliveries := jobs.New[int64]("notifications", notifications.HandleJob, jobs.Config{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.QueueRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logger,
	})
	deliveries.OnFailure(func(job jobs.Job[int64], err error) {
		logger.Warn("notification left for dispatcher", zap.Int64("notification_id", job.Payload), zap.Error(err))
	})
	notifications.UseQueue(deliveries)

	queues := service.NewQueueService(requestRepo, machine, cacheSvc, metrics, logger, cfg.Reviews.HistoryPageSize, cfg.Reviews.QueueCacheTTL)

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Redis:   redisClient,
		Machine: machine,
		Metrics: metrics,
		Hub:     hub,
		Auth: service.NewAuthService(registry, logger, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		}),
		Cache:     cacheSvc,
		Requests:  service.NewRequestService(requestRepo, machine, auditRepo, cacheSvc, notifications, validate, logger, cfg.Reviews.HistoryPageSize),
		Queues:    queues,
		Decisions: service.NewDecisionService(requestRepo, machine, auditRepo, cacheSvc, notifications, metrics, validate, logger),
		Attachments: service.NewAttachmentService(requestRepo, attachmentRepo, files, signer, auditRepo, registry, logger, service.AttachmentConfig{
			MaxFileSizeBytes: cfg.Attachments.MaxFileSizeBytes,
			AllowedMIMEs:     cfg.Attachments.AllowedMIMEs,
			DownloadPath:     cfg.APIPrefix + "/attachments/download",
		}),
		Documents:     service.NewDocumentService(requestRepo, attachmentRepo, queues, machine, nil, nil, logger),
		Notifications: notifications,
		deliveries:    deliveries,
	}

	if redisClient != nil {
		c.Dispatcher = service.NewNotificationDispatcher(notificationRepo, notifications, cache.NewLocker(redisClient), metrics, logger.Named("dispatcher"), service.DispatcherConfig{
			LockTTL:       cfg.Notifications.LockTTL,
			Concurrency:   cfg.Notifications.Workers,
			RatePerSecond: cfg.Notifications.RatePerSecond,
			MaxAttempts:   cfg.Notifications.MaxAttempts,
			BatchSize:     cfg.Notifications.BatchSize,
		})
	}
	return c, nil
}

// Start launches the delivery workers and the periodic dispatcher.
func (c *Container) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.deliveries.Start(ctx)
	if c.Dispatcher != nil {
		go c.Dispatcher.Run(ctx, c.Config.Notifications.DispatchPeriod)
	}
}

// Close stops background work and releases connections.
func (c *Container) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.deliveries.Stop()
	c.Hub.Close()
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("close database", zap.Error(err))
		}
	}
}

// Migrate applies pending schema migrations.
func (c *Container) Migrate(ctx context.Context) ([]string, error) {
	return database.Migrate(ctx, c.DB, c.Logger)
}
