package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/internal/metrics"
	"github.com/fastygo/soup/repository"
)

const generationTTL = 24 * time.Hour

type rankingCache struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewRankingCache creates a Redis-backed RankingCache. Pages of one user are
// invalidated together by bumping a per-user generation counter that is part
// of every page key.
func NewRankingCache(client *redislib.Client, ttl time.Duration) repository.RankingCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &rankingCache{
		client: client,
		prefix: "soup:rank:",
		ttl:    ttl,
	}
}

type rankedWire struct {
	Type      domain.EntityType        `json:"t"`
	ID        string                   `json:"i"`
	Kind      domain.FrecencyValueKind `json:"k"`
	Key       float64                  `json:"r,omitempty"`
	UpdatedAt time.Time                `json:"u,omitempty"`
	Score     float64                  `json:"s,omitempty"`
}

func (c *rankingCache) Get(ctx context.Context, key repository.RankingKey) (repository.CachedRanking, error) {
	gen, err := c.generation(ctx, key.UserID)
	if err != nil {
		metrics.RankingCacheRequests.WithLabelValues("error").Inc()
		return repository.CachedRanking{}, err
	}
	out := repository.CachedRanking{Generation: gen}

	payload, err := c.client.Get(ctx, c.pageKey(key, gen)).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			metrics.RankingCacheRequests.WithLabelValues("miss").Inc()
			return out, nil
		}
		metrics.RankingCacheRequests.WithLabelValues("error").Inc()
		return repository.CachedRanking{}, err
	}

	ranked, err := decodeRanked(payload)
	if err != nil {
		metrics.RankingCacheRequests.WithLabelValues("error").Inc()
		return repository.CachedRanking{}, err
	}
	metrics.RankingCacheRequests.WithLabelValues("hit").Inc()
	out.Ranked, out.Hit = ranked, true
	return out, nil
}

// Set stores ranked under the generation observed by the Get that missed.
// If the user was invalidated since, the page lands under a dead generation.
func (c *rankingCache) Set(ctx context.Context, key repository.RankingKey, generation int64, ranked []domain.RankedEntity) error {
	payload, err := encodeRanked(ranked)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.pageKey(key, generation), payload, c.ttl).Err()
}

func encodeRanked(ranked []domain.RankedEntity) ([]byte, error) {
	wire := make([]rankedWire, 0, len(ranked))
	for _, r := range ranked {
		wire = append(wire, rankedWire{
			Type:      r.Entity.Type,
			ID:        r.Entity.ID,
			Kind:      r.Value.Kind,
			Key:       r.Value.Score,
			UpdatedAt: r.Value.UpdatedAt,
			Score:     r.Score,
		})
	}
	return json.Marshal(wire)
}

func decodeRanked(payload []byte) ([]domain.RankedEntity, error) {
	var wire []rankedWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	ranked := make([]domain.RankedEntity, 0, len(wire))
	for _, w := range wire {
		ranked = append(ranked, domain.RankedEntity{
			Entity: domain.Entity{Type: w.Type, ID: w.ID},
			Value:  domain.FrecencyValue{Kind: w.Kind, Score: w.Key, UpdatedAt: w.UpdatedAt},
			Score:  w.Score,
		})
	}
	return ranked, nil
}

func (c *rankingCache) Invalidate(ctx context.Context, userID string) error {
	genKey := c.generationKey(userID)
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, generationTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *rankingCache) generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(userID)).Int64()
	if errors.Is(err, redislib.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *rankingCache) generationKey(userID string) string {
	return fmt.Sprintf("%sgen:%s", c.prefix, userID)
}

func (c *rankingCache) pageKey(key repository.RankingKey, gen int64) string {
	return fmt.Sprintf("%spage:%s:%d:%s:%d:%t", c.prefix, key.UserID, gen, positionToken(key.After), key.Limit, key.IncludeFallback)
}

func positionToken(p *domain.RankPosition) string {
	if p == nil {
		return "head"
	}
	if p.Value.IsScore() {
		return "s" + strconv.FormatFloat(p.Value.Score, 'g', -1, 64) + "/" + p.ID
	}
	return "u" + strconv.FormatInt(p.Value.UpdatedAt.UnixNano(), 10) + "/" + p.ID
}
