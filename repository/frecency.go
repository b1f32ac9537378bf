package repository

import (
	"context"
	"time"

	"github.com/fastygo/soup/domain"
)

// FrecencyRepository persists per-(user, entity) frecency aggregates.
type FrecencyRepository interface {
	// OnEvent creates or appends to the aggregate for (userID, data.Entity) as
	// one atomic step. Concurrent events for the same aggregate must all be
	// counted.
	OnEvent(ctx context.Context, userID string, data domain.TrackingData, now time.Time) (*domain.AggregateFrecency, error)
	Get(ctx context.Context, id domain.AggregateID) (*domain.AggregateFrecency, error)
	// ListRanked returns the user's aggregates ordered by descending rank key
	// and entity id, strictly after the keyset when one is given.
	ListRanked(ctx context.Context, userID string, after *domain.ScoreKeyset, limit int) ([]domain.AggregateFrecency, error)
}

// RankingKey identifies one cached ranked page.
type RankingKey struct {
	UserID          string
	After           *domain.RankPosition
	Limit           int
	IncludeFallback bool
}

// CachedRanking is the result of a ranking cache lookup. Generation is the
// user's cache generation seen by the lookup; a page computed after a miss
// is stored under it, so a page raced by an invalidation is never served.
type CachedRanking struct {
	Ranked     []domain.RankedEntity
	Hit        bool
	Generation int64
}

// RankingCache stores ranked pages for a short time.
type RankingCache interface {
	Get(ctx context.Context, key RankingKey) (CachedRanking, error)
	Set(ctx context.Context, key RankingKey, generation int64, ranked []domain.RankedEntity) error
	// Invalidate drops every cached page of the user.
	Invalidate(ctx context.Context, userID string) error
}
