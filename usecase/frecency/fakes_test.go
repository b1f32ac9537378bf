package frecency

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/repository"
)

type memFrecency struct {
	mu    sync.Mutex
	aggs  map[domain.AggregateID]domain.AggregateFrecency
	err   error
	calls int
	// beforeList runs at the start of every ListRanked, outside the lock.
	beforeList func(ctx context.Context)
}

func newMemFrecency() *memFrecency {
	return &memFrecency{aggs: make(map[domain.AggregateID]domain.AggregateFrecency)}
}

func (m *memFrecency) OnEvent(_ context.Context, userID string, data domain.TrackingData, now time.Time) (*domain.AggregateFrecency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	id := domain.AggregateID{Entity: data.Entity, UserID: userID}
	event := domain.TrackingEvent{Data: data, Timestamp: now}
	next := domain.NewFromInitialAction(id, event, now)
	if cur, ok := m.aggs[id]; ok {
		next = cur.AppendEvent(event, now)
	}
	m.aggs[id] = next
	return &next, nil
}

func (m *memFrecency) Get(_ context.Context, id domain.AggregateID) (*domain.AggregateFrecency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg, ok := m.aggs[id]
	if !ok {
		return nil, domain.ErrAggregateNotFound
	}
	return &agg, nil
}

func (m *memFrecency) ListRanked(ctx context.Context, userID string, after *domain.ScoreKeyset, limit int) ([]domain.AggregateFrecency, error) {
	if m.beforeList != nil {
		m.beforeList(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.AggregateFrecency
	for _, agg := range m.aggs {
		if agg.ID.UserID != userID {
			continue
		}
		if after != nil {
			k := agg.Data.RankKey()
			if k > after.RankKey || (k == after.RankKey && agg.ID.Entity.ID >= after.ID) {
				continue
			}
		}
		out = append(out, agg)
	}
	slices.SortFunc(out, func(a, b domain.AggregateFrecency) int {
		if c := cmp.Compare(b.Data.RankKey(), a.Data.RankKey()); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.Entity.ID, a.ID.Entity.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memSoup serves untracked items ordered by updated_at.
type memSoup struct {
	items   []*domain.ItemBase
	tracked func(domain.Entity) bool
	err     error
}

func (s *memSoup) cursor(userID string, limit int, cursor domain.SimpleCursor, exclude domain.SoupExclude) (repository.CursorPage, error) {
	if s.err != nil {
		return repository.CursorPage{}, s.err
	}
	var rows []*domain.ItemBase
	for _, it := range s.items {
		if it.OwnerID != userID {
			continue
		}
		if exclude.Has(domain.ExcludeTracked) && s.tracked != nil && s.tracked(it.Entity()) {
			continue
		}
		key, ok := cursor.Sort.SortKey(it)
		if !ok {
			continue
		}
		if a := cursor.After; a != nil {
			if c := key.Compare(a.LastVal); c > 0 || (c == 0 && it.ID >= a.ID) {
				continue
			}
		}
		rows = append(rows, it)
	}
	slices.SortFunc(rows, func(a, b *domain.ItemBase) int {
		ka, _ := cursor.Sort.SortKey(a)
		kb, _ := cursor.Sort.SortKey(b)
		if c := kb.Compare(ka); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	page := repository.CursorPage{HasMore: len(rows) > limit}
	if page.HasMore {
		rows = rows[:limit]
	}
	for _, r := range rows {
		cp := *r
		page.Items = append(page.Items, &cp)
	}
	return page, nil
}

func (s *memSoup) ExpandedGenericCursorSoup(_ context.Context, userID string, limit int, cursor domain.SimpleCursor, exclude domain.SoupExclude) (repository.CursorPage, error) {
	return s.cursor(userID, limit, cursor, exclude)
}

func (s *memSoup) UnexpandedGenericCursorSoup(_ context.Context, userID string, limit int, cursor domain.SimpleCursor, exclude domain.SoupExclude) (repository.CursorPage, error) {
	return s.cursor(userID, limit, cursor, exclude)
}

func (s *memSoup) ExpandedSoupByIds(context.Context, string, []domain.Entity) ([]domain.SoupItem, error) {
	return nil, nil
}

func (s *memSoup) UnexpandedSoupByIds(context.Context, string, []domain.Entity) ([]domain.SoupItem, error) {
	return nil, nil
}

// memCache mirrors the Redis cache: pages are keyed by the user's
// generation, which Invalidate bumps.
type memCache struct {
	mu          sync.Mutex
	gens        map[string]int64
	pages       map[string][]domain.RankedEntity
	invalidated []string
	err         error
}

func newMemCache() *memCache {
	return &memCache{gens: make(map[string]int64), pages: make(map[string][]domain.RankedEntity)}
}

func cacheKey(k repository.RankingKey, gen int64) string {
	return fmt.Sprintf("%d|%s", gen, flightKey(RankQuery{UserID: k.UserID, Limit: k.Limit, After: k.After, IncludeFallback: k.IncludeFallback}))
}

func (c *memCache) Get(_ context.Context, key repository.RankingKey) (repository.CachedRanking, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return repository.CachedRanking{}, c.err
	}
	gen := c.gens[key.UserID]
	r, ok := c.pages[cacheKey(key, gen)]
	return repository.CachedRanking{Ranked: r, Hit: ok, Generation: gen}, nil
}

func (c *memCache) Set(_ context.Context, key repository.RankingKey, gen int64, ranked []domain.RankedEntity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[cacheKey(key, gen)] = ranked
	return nil
}

func (c *memCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
	if c.err != nil {
		return c.err
	}
	c.gens[userID]++
	return nil
}

func (c *memCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

type memBuffer struct {
	events []domain.TrackingEvent
	err    error
}

func (b *memBuffer) BufferEvent(_ context.Context, _ string, event domain.TrackingEvent) error {
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, event)
	return nil
}
