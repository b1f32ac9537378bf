package frecency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/internal/infrastructure/breaker"
	"github.com/fastygo/soup/repository"
)

// RankQuery asks for up to Limit entries strictly after After in frecency order.
type RankQuery struct {
	UserID          string
	Limit           int
	After           *domain.RankPosition
	IncludeFallback bool
}

// Ranker produces a user's frecency ranking: scored aggregates first, then,
// when asked for, untracked items by updated_at.
type Ranker struct {
	repo    repository.FrecencyRepository
	soup    repository.SoupRepository
	cache   repository.RankingCache
	breaker *gobreaker.CircuitBreaker[[]domain.AggregateFrecency]
	group   singleflight.Group
	logger  *zap.Logger
	now     func() time.Time

	flightTimeout time.Duration
}

const defaultFlightTimeout = 5 * time.Second

func NewRanker(
	repo repository.FrecencyRepository,
	soup repository.SoupRepository,
	cache repository.RankingCache,
	cb *gobreaker.CircuitBreaker[[]domain.AggregateFrecency],
	logger *zap.Logger,
) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{
		repo:    repo,
		soup:    soup,
		cache:   cache,
		breaker: cb,
		logger:  logger,
		now:     time.Now,

		flightTimeout: defaultFlightTimeout,
	}
}

func (r *Ranker) GetRanked(ctx context.Context, q RankQuery) ([]domain.RankedEntity, error) {
	if q.Limit <= 0 {
		return []domain.RankedEntity{}, nil
	}

	key := repository.RankingKey{
		UserID:          q.UserID,
		After:           q.After,
		Limit:           q.Limit,
		IncludeFallback: q.IncludeFallback,
	}
	// -1 marks an unknown generation; such pages are not cached.
	gen := int64(-1)
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, key)
		switch {
		case err != nil:
			r.logger.Warn("ranking cache read failed", zap.String("user_id", q.UserID), zap.Error(err))
		case cached.Hit:
			return r.rescore(cached.Ranked), nil
		default:
			gen = cached.Generation
		}
	}

	// The shared computation outlives any single caller: it runs detached
	// from the caller's cancellation, bounded by flightTimeout, and caches
	// its own result. Each caller still stops waiting when its ctx ends.
	ch := r.group.DoChan(fmt.Sprintf("%d|%s", gen, flightKey(q)), func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.flightTimeout)
		defer cancel()

		ranked, err := r.rank(flightCtx, q)
		if err != nil {
			return nil, err
		}
		if gen >= 0 {
			if err := r.cache.Set(flightCtx, key, gen, ranked); err != nil {
				r.logger.Warn("ranking cache write failed", zap.String("user_id", q.UserID), zap.Error(err))
			}
		}
		return ranked, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.RankedEntity), nil
	}
}

func (r *Ranker) rank(ctx context.Context, q RankQuery) ([]domain.RankedEntity, error) {
	now := r.now()
	out := make([]domain.RankedEntity, 0, q.Limit)

	var tailAfter *domain.TimeKeyset
	if q.After == nil || q.After.Value.IsScore() {
		var after *domain.ScoreKeyset
		if q.After != nil {
			after = &domain.ScoreKeyset{ID: q.After.ID, RankKey: q.After.Value.Score}
		}
		aggs, err := r.listRanked(ctx, q.UserID, after, q.Limit)
		if err != nil {
			return nil, err
		}
		for _, agg := range aggs {
			out = append(out, domain.RankedEntity{
				Entity: agg.ID.Entity,
				Value:  domain.FrecencyScoreValue(agg.Data.RankKey()),
				Score:  agg.Data.ScoreAt(now),
			})
		}
		if len(aggs) == q.Limit {
			return out, nil
		}
	} else {
		tailAfter = &domain.TimeKeyset{ID: q.After.ID, LastVal: q.After.Value.UpdatedAt}
	}

	if !q.IncludeFallback {
		return out, nil
	}

	page, err := r.soup.UnexpandedGenericCursorSoup(ctx, q.UserID, q.Limit-len(out), domain.SimpleCursor{
		Sort:  domain.SortUpdatedAt,
		After: tailAfter,
	}, domain.ExcludeTracked)
	if err != nil {
		return nil, err
	}
	for _, item := range page.Items {
		base := item.Base()
		out = append(out, domain.RankedEntity{
			Entity: base.Entity(),
			Value:  domain.UpdatedAtValue(base.UpdatedAt),
		})
	}
	return out, nil
}

func (r *Ranker) listRanked(ctx context.Context, userID string, after *domain.ScoreKeyset, limit int) ([]domain.AggregateFrecency, error) {
	call := func() ([]domain.AggregateFrecency, error) {
		return r.repo.ListRanked(ctx, userID, after, limit)
	}

	var (
		aggs []domain.AggregateFrecency
		err  error
	)
	if r.breaker != nil {
		aggs, err = r.breaker.Execute(call)
	} else {
		aggs, err = call()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if breaker.IsRejected(err) {
			r.logger.Debug("frecency storage breaker rejected call", zap.String("user_id", userID))
		} else {
			r.logger.Error("frecency ranking failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, domain.FrecencyStorageError(err)
	}
	return aggs, nil
}

// rescore refreshes the decayed scores of cached entries. Rank keys do not
// move with time, so the order is still valid.
func (r *Ranker) rescore(ranked []domain.RankedEntity) []domain.RankedEntity {
	now := r.now()
	out := make([]domain.RankedEntity, len(ranked))
	for i, e := range ranked {
		if e.Value.IsScore() {
			e.Score = domain.ScoreFromRankKey(e.Value.Score, now)
		}
		out[i] = e
	}
	return out
}

func flightKey(q RankQuery) string {
	pos := "head"
	if q.After != nil {
		if q.After.Value.IsScore() {
			pos = fmt.Sprintf("s%v/%s", q.After.Value.Score, q.After.ID)
		} else {
			pos = fmt.Sprintf("u%d/%s", q.After.Value.UpdatedAt.UnixNano(), q.After.ID)
		}
	}
	return fmt.Sprintf("%s|%s|%d|%t", q.UserID, pos, q.Limit, q.IncludeFallback)
}
