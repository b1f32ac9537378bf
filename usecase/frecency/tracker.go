package frecency

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/internal/metrics"
	"github.com/fastygo/soup/repository"
	"github.com/fastygo/soup/usecase"
)

// TrackResult is the outcome of one tracked interaction. Aggregate is nil
// when the event was buffered.
type TrackResult struct {
	Aggregate *domain.AggregateFrecency
	Buffered  bool
}

// Tracker records user interactions into frecency aggregates.
type Tracker struct {
	repo   repository.FrecencyRepository
	cache  repository.RankingCache
	buffer usecase.EventBuffer
	logger *zap.Logger
	now    func() time.Time
}

func NewTracker(repo repository.FrecencyRepository, cache repository.RankingCache, buffer usecase.EventBuffer, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		repo:   repo,
		cache:  cache,
		buffer: buffer,
		logger: logger,
		now:    time.Now,
	}
}

func (t *Tracker) Track(ctx context.Context, userID string, data domain.TrackingData) (TrackResult, error) {
	if userID == "" {
		return TrackResult{}, domain.ErrUnauthorized
	}
	if err := data.Validate(); err != nil {
		metrics.FrecencyEvents.WithLabelValues("rejected").Inc()
		return TrackResult{}, err
	}

	now := t.now().UTC()
	agg, err := t.repo.OnEvent(ctx, userID, data, now)
	if err == nil {
		metrics.FrecencyEvents.WithLabelValues("stored").Inc()
		t.invalidate(ctx, userID)
		return TrackResult{Aggregate: agg}, nil
	}

	if domain.IsDomainError(err, domain.ErrCodeInvalid) || domain.IsDomainError(err, domain.ErrCodeConflict) || errors.Is(err, context.Canceled) {
		metrics.FrecencyEvents.WithLabelValues("failed").Inc()
		return TrackResult{}, err
	}

	if t.buffer != nil {
		event := domain.TrackingEvent{Data: data, Timestamp: now}
		if bufErr := t.buffer.BufferEvent(ctx, userID, event); bufErr == nil {
			metrics.FrecencyEvents.WithLabelValues("buffered").Inc()
			t.logger.Warn("tracking event buffered",
				zap.String("user_id", userID),
				zap.String("entity", data.Entity.String()),
				zap.Error(err))
			return TrackResult{Buffered: true}, nil
		} else {
			t.logger.Error("failed to buffer tracking event", zap.String("entity", data.Entity.String()), zap.Error(bufErr))
		}
	}

	metrics.FrecencyEvents.WithLabelValues("failed").Inc()
	t.logger.Error("tracking event lost", zap.String("user_id", userID), zap.Error(err))
	return TrackResult{}, domain.FrecencyStorageError(err)
}

func (t *Tracker) invalidate(ctx context.Context, userID string) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Invalidate(ctx, userID); err != nil {
		t.logger.Warn("ranking cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
