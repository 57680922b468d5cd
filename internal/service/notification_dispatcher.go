package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/noah-isme/signatory-approval-api/internal/models"
	"github.com/noah-isme/signatory-approval-api/pkg/cache"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
)

const dispatchLockKey = "notifications:dispatch"

type advisoryLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error)
}

type notificationDeliverer interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

// DispatcherConfig tunes an outbox pass.
type DispatcherConfig struct {
	LockTTL       time.Duration
	Concurrency   int
	RatePerSecond float64
	MaxAttempts   int
	BatchSize     int
}

// DispatchResult summarises one pass.
type DispatchResult struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// NotificationDispatcher re-sends undelivered outbox rows. Runs are serialized across processes by
// a Redis lock that expires on its own, so a crashed run never wedges delivery.
type NotificationDispatcher struct {
	store     notificationStore
	deliverer notificationDeliverer
	locker    advisoryLocker
	limiter   *rate.Limiter
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       DispatcherConfig
	now       func() time.Time
}

// NewNotificationDispatcher wires the batch consumer.
func NewNotificationDispatcher(store notificationStore, deliverer notificationDeliverer, locker advisoryLocker, metrics *MetricsService, logger *zap.Logger, cfg DispatcherConfig) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 60 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &NotificationDispatcher{
		store:     store,
		deliverer: deliverer,
		locker:    locker,
		limiter:   rate.NewLimiter(limit, cfg.Concurrency),
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RunOnce performs one pass. It returns ErrLockHeld when another run owns the lock.
func (d *NotificationDispatcher) RunOnce(ctx context.Context) (DispatchResult, error) {
	var result DispatchResult

	lock, err := d.locker.Acquire(ctx, dispatchLockKey, d.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			d.metrics.RecordDispatchRun("skipped")
			return result, appErrors.Clone(appErrors.ErrLockHeld, "notification dispatch already running")
		}
		d.metrics.RecordDispatchRun("error")
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire dispatch lock")
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			d.logger.Warn("failed to release dispatch lock", zap.Error(err))
		}
	}()

	rows, err := d.store.ListUndelivered(ctx, d.cfg.MaxAttempts, d.cfg.BatchSize, d.now().UTC().Add(-claimLease))
	if err != nil {
		d.metrics.RecordDispatchRun("error")
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outbox")
	}

	var sent, failed, skipped atomic.Int64
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(d.cfg.Concurrency)
	var waitErr error
	for i := range rows {
		if waitErr = d.limiter.Wait(gctx); waitErr != nil {
			break
		}
		n := rows[i]
		result.Attempted++
		group.Go(func() error {
			err := d.deliverer.Deliver(gctx, &n)
			if errors.Is(err, errAlreadyClaimed) {
				skipped.Add(1)
				return nil
			}
			if err != nil {
				failed.Add(1)
				d.logger.Warn("notification delivery failed", zap.Int64("notification_id", n.ID), zap.Int("attempts", n.Attempts+1), zap.Error(err))
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = group.Wait()

	result.Sent = int(sent.Load())
	result.Failed = int(failed.Load())
	result.Skipped = int(skipped.Load())
	if waitErr != nil {
		d.metrics.RecordDispatchRun("error")
		return result, appErrors.Wrap(waitErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "dispatch interrupted")
	}
	d.metrics.RecordDispatchRun("ok")
	if result.Attempted > 0 {
		d.logger.Info("notification dispatch finished",
			zap.Int("attempted", result.Attempted),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}

// Run repeats RunOnce every period until ctx is cancelled.
func (d *NotificationDispatcher) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil && !errors.Is(err, appErrors.ErrLockHeld) && ctx.Err() == nil {
			d.logger.Error("notification dispatch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
