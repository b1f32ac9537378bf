package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/internal/infrastructure/buffer"
	"github.com/fastygo/soup/internal/metrics"
	"github.com/fastygo/soup/repository"
)

// ConnectionHealth abstracts the connection monitor.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how the tracking buffer is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	// Retention drops buffered events older than this on the hourly sweep.
	Retention time.Duration
}

// BufferProcessor replays buffered tracking events into the frecency store.
type BufferProcessor struct {
	store   *buffer.Store
	monitor ConnectionHealth
	repo    repository.FrecencyRepository
	cache   repository.RankingCache
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     ProcessorConfig
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	repo repository.FrecencyRepository,
	cache repository.RankingCache,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 72 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:   store,
		monitor: monitor,
		repo:    repo,
		cache:   cache,
		logger:  logger,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", max(1, int(cfg.Interval.Seconds())))
	_, _ = bp.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if _, err := bp.Drain(ctx); err != nil {
			bp.logger.Error("buffer drain failed", zap.Error(err))
		}
	})
	_, _ = bp.cron.AddFunc("@hourly", func() {
		if _, err := bp.Sweep(time.Now()); err != nil {
			bp.logger.Error("buffer sweep failed", zap.Error(err))
		}
	})

	return bp
}

func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("buffer processor started",
		zap.Duration("interval", bp.cfg.Interval),
		zap.Int("batch_size", bp.cfg.BatchSize))
}

// Stop waits for a running job to finish or for ctx to expire.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil || bp.cron == nil {
		return
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("buffer processor stopped")
}

// Enqueue parks a tracking event for later replay.
func (bp *BufferProcessor) Enqueue(userID string, event domain.TrackingEvent) error {
	if bp == nil || bp.store == nil {
		return errors.New("buffer processor not configured")
	}
	err := bp.store.Enqueue(buffer.Item{
		UserID:    userID,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return err
	}
	bp.reportSize()
	return nil
}

// Drain replays one batch of buffered events, oldest first, and reports how
// many were stored. Nothing is replayed while storage is offline.
func (bp *BufferProcessor) Drain(ctx context.Context) (int, error) {
	if bp == nil || bp.store == nil {
		return 0, nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping buffer drain (offline)")
		return 0, nil
	}

	items, err := bp.store.GetBatch(bp.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	defer bp.reportSize()

	stored := 0
	touched := make(map[string]struct{})
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		_, err := bp.repo.OnEvent(ctx, item.UserID, item.Data, item.Timestamp)
		if err == nil {
			stored++
			touched[item.UserID] = struct{}{}
			if err := bp.store.Remove(item); err != nil {
				bp.logger.Warn("failed to purge replayed event", zap.String("item_id", item.ID), zap.Error(err))
			}
			continue
		}

		log := bp.logger.With(
			zap.String("item_id", item.ID),
			zap.String("entity", item.Data.Entity.String()),
			zap.Int("retries", item.Retries),
			zap.Error(err))

		if domain.IsDomainError(err, domain.ErrCodeInvalid) || item.Retries+1 >= bp.cfg.MaxRetries {
			log.Warn("dropping buffered event")
			metrics.FrecencyEvents.WithLabelValues("failed").Inc()
			_ = bp.store.Remove(item)
			continue
		}
		log.Error("failed to replay buffered event")
		if err := bp.store.Retry(item); err != nil {
			bp.logger.Error("failed to requeue buffered event", zap.Error(err))
		}
	}

	for userID := range touched {
		if bp.cache == nil {
			break
		}
		if err := bp.cache.Invalidate(ctx, userID); err != nil {
			bp.logger.Warn("ranking cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if stored > 0 {
		bp.logger.Info("buffered events replayed", zap.Int("stored", stored), zap.Int("batch", len(items)))
	}
	return stored, nil
}

// Sweep drops events buffered longer than the retention window.
func (bp *BufferProcessor) Sweep(now time.Time) (int, error) {
	if bp == nil || bp.store == nil {
		return 0, nil
	}
	removed, err := bp.store.Cleanup(now.Add(-bp.cfg.Retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		bp.logger.Warn("expired buffered events dropped", zap.Int("count", removed))
		bp.reportSize()
	}
	return removed, nil
}

func (bp *BufferProcessor) Size() int {
	if bp == nil || bp.store == nil {
		return 0
	}
	size, err := bp.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (bp *BufferProcessor) reportSize() {
	metrics.BufferedEvents.Set(float64(bp.Size()))
}
