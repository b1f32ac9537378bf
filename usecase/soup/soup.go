package soup

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/internal/metrics"
	"github.com/fastygo/soup/repository"
	"github.com/fastygo/soup/usecase/frecency"
)

// maxFillRounds bounds how often a frecency page is topped up when ranked
// entities turn out to be deleted or hidden. A page that is still empty keeps
// reading past the bound until it finds a visible item or the ranking ends.
const maxFillRounds = 8

// Ranker is the frecency ranking source of the soup.
type Ranker interface {
	GetRanked(ctx context.Context, q frecency.RankQuery) ([]domain.RankedEntity, error)
}

type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// Request is one soup page request. Cursor is the opaque token of the previous
// page, empty for the first page.
type Request struct {
	UserID  string
	Sort    domain.SortMethod
	Cursor  string
	Limit   int
	Exclude domain.SoupExclude
	Expand  bool
}

type Response struct {
	Items      []domain.SoupItem `json:"items"`
	NextCursor *string           `json:"next_cursor"`
}

type UseCase struct {
	soup   repository.SoupRepository
	ranker Ranker
	cfg    Config
	logger *zap.Logger
}

func New(soup repository.SoupRepository, ranker Ranker, cfg Config, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	return &UseCase{
		soup:   soup,
		ranker: ranker,
		cfg:    cfg,
		logger: logger,
	}
}

// GetUserSoup returns one page of the user's soup and the cursor of the next
// page, nil when the soup is exhausted.
func (uc *UseCase) GetUserSoup(ctx context.Context, req Request) (Response, error) {
	resp, err := uc.getUserSoup(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = string(errorCode(err))
	}
	metrics.SoupRequests.WithLabelValues(sortLabel(req.Sort), outcome).Inc()
	return resp, err
}

func (uc *UseCase) getUserSoup(ctx context.Context, req Request) (Response, error) {
	if req.UserID == "" {
		return Response{}, domain.ErrUnauthorized
	}
	if req.Sort == (domain.SortMethod{}) {
		req.Sort = domain.DefaultSortMethod
	}

	var cursor *domain.Cursor
	if req.Cursor != "" {
		c, err := domain.DecodeCursor(req.Cursor)
		if err != nil {
			return Response{}, err
		}
		cursor = c
	}
	limit := uc.resolveLimit(req.Limit, cursor)

	if !req.Sort.IsAdvanced() {
		after, err := cursor.SimpleKeyset(req.Sort.Simple)
		if err != nil {
			return Response{}, err
		}
		return uc.byTime(ctx, req, req.Sort.Simple, string(req.Sort.Simple), after, limit, req.Exclude)
	}

	switch req.Sort.Advanced {
	case domain.SortFrecency:
		return uc.frecencySoup(ctx, req, cursor, limit)
	}
	return Response{}, domain.NewError(domain.ErrCodeInvalid, "unsupported sort method "+req.Sort.String())
}

func (uc *UseCase) frecencySoup(ctx context.Context, req Request, cursor *domain.Cursor, limit int) (Response, error) {
	if req.Exclude.Has(domain.ExcludeFrecency) || req.Exclude.Has(domain.ExcludeTracked) {
		after, err := unweightedKeyset(cursor)
		if err != nil {
			return Response{}, err
		}
		return uc.unweighted(ctx, req, after, limit)
	}

	pos, err := cursor.RankPosition(domain.SortFrecency)
	if err != nil {
		return Response{}, err
	}

	resp, err := uc.ranked(ctx, req, pos, limit)
	if err == nil {
		return resp, nil
	}
	if !domain.IsDomainError(err, domain.ErrCodeUnavailable) || req.Exclude.Has(domain.ExcludeFallback) {
		return Response{}, err
	}

	metrics.SoupDegraded.Inc()
	uc.logger.Warn("frecency unavailable, serving soup by updated_at",
		zap.String("user_id", req.UserID),
		zap.Error(err))

	var after *domain.TimeKeyset
	if pos != nil && !pos.Value.IsScore() {
		after = &domain.TimeKeyset{ID: pos.ID, LastVal: pos.Value.UpdatedAt}
	}
	// A scored position has no place in the updated_at order; start over.
	return uc.unweighted(ctx, req, after, limit)
}

// unweighted serves a frecency request by updated_at. Cursors keep the
// frecency sort_type so the client does not notice the switch.
func (uc *UseCase) unweighted(ctx context.Context, req Request, after *domain.TimeKeyset, limit int) (Response, error) {
	return uc.byTime(ctx, req, domain.SortUpdatedAt, string(domain.SortFrecency), after, limit, req.Exclude&domain.ExcludeTracked)
}

func (uc *UseCase) byTime(ctx context.Context, req Request, method domain.SimpleSortMethod, sortType string, after *domain.TimeKeyset, limit int, exclude domain.SoupExclude) (Response, error) {
	cursor := domain.SimpleCursor{Sort: method, After: after}

	var (
		page repository.CursorPage
		err  error
	)
	if req.Expand {
		page, err = uc.soup.ExpandedGenericCursorSoup(ctx, req.UserID, limit, cursor, exclude)
	} else {
		page, err = uc.soup.UnexpandedGenericCursorSoup(ctx, req.UserID, limit, cursor, exclude)
	}
	if err != nil {
		uc.logger.Error("soup query failed", zap.String("sort", sortType), zap.Error(err))
		return Response{}, asSoupError(err)
	}

	resp := Response{Items: nonNil(page.Items)}
	if page.HasMore && len(page.Items) > 0 {
		last := page.Items[len(page.Items)-1].Base()
		key, _ := method.SortKey(last)
		next, err := domain.EncodeCursor(domain.NewTimeCursor(last.ID, limit, sortType, key))
		if err != nil {
			return Response{}, err
		}
		resp.NextCursor = &next
	}
	return resp, nil
}

func (uc *UseCase) ranked(ctx context.Context, req Request, pos *domain.RankPosition, limit int) (Response, error) {
	if uc.ranker == nil {
		return Response{}, domain.FrecencyStorageError(errors.New("no frecency ranker configured"))
	}

	items := make([]domain.SoupItem, 0, limit)
	after := pos
	hasMore := false
	var last *domain.RankedEntity

	for round := 0; len(items) < limit; round++ {
		if round >= maxFillRounds && len(items) > 0 {
			break
		}
		need := limit - len(items)
		ranked, err := uc.ranker.GetRanked(ctx, frecency.RankQuery{
			UserID:          req.UserID,
			Limit:           need + 1,
			After:           after,
			IncludeFallback: !req.Exclude.Has(domain.ExcludeFallback),
		})
		if err != nil {
			return Response{}, err
		}
		hasMore = len(ranked) > need
		if hasMore {
			ranked = ranked[:need]
		}
		if len(ranked) == 0 {
			break
		}

		fetched, err := uc.fetchRanked(ctx, req, ranked)
		if err != nil {
			return Response{}, err
		}
		items = append(items, fetched...)

		tail := ranked[len(ranked)-1]
		last = &tail
		after = &domain.RankPosition{ID: tail.Entity.ID, Value: tail.Value}
		if !hasMore {
			break
		}
	}

	resp := Response{Items: items}
	if hasMore && last != nil {
		var c domain.Cursor
		if last.Value.IsScore() {
			c = domain.NewScoreCursor(last.Entity.ID, limit, string(domain.SortFrecency), last.Value.Score)
		} else {
			c = domain.NewTimeCursor(last.Entity.ID, limit, string(domain.SortFrecency), last.Value.UpdatedAt)
		}
		next, err := domain.EncodeCursor(c)
		if err != nil {
			return Response{}, err
		}
		resp.NextCursor = &next
	}
	return resp, nil
}

// fetchRanked loads the items of ranked in rank order and attaches their
// decayed scores. Entities the user can no longer see are dropped.
func (uc *UseCase) fetchRanked(ctx context.Context, req Request, ranked []domain.RankedEntity) ([]domain.SoupItem, error) {
	entities := make([]domain.Entity, 0, len(ranked))
	scores := make(map[domain.Entity]float64, len(ranked))
	for _, r := range ranked {
		entities = append(entities, r.Entity)
		if r.Value.IsScore() {
			scores[r.Entity] = r.Score
		}
	}

	var (
		items []domain.SoupItem
		err   error
	)
	if req.Expand {
		items, err = uc.soup.ExpandedSoupByIds(ctx, req.UserID, entities)
	} else {
		items, err = uc.soup.UnexpandedSoupByIds(ctx, req.UserID, entities)
	}
	if err != nil {
		uc.logger.Error("soup by ids failed", zap.Int("entities", len(entities)), zap.Error(err))
		return nil, asSoupError(err)
	}

	for _, it := range items {
		base := it.Base()
		if score, ok := scores[base.Entity()]; ok {
			s := score
			base.FrecencyScore = &s
		}
	}
	return items, nil
}

func (uc *UseCase) resolveLimit(requested int, cursor *domain.Cursor) int {
	limit := requested
	if limit <= 0 && cursor != nil {
		limit = int(cursor.Limit)
	}
	if limit <= 0 {
		limit = uc.cfg.DefaultLimit
	}
	if limit > uc.cfg.MaxLimit {
		limit = uc.cfg.MaxLimit
	}
	return limit
}

// unweightedKeyset reads a frecency cursor on the updated_at path. Only
// timestamp positions belong to that order.
func unweightedKeyset(cursor *domain.Cursor) (*domain.TimeKeyset, error) {
	pos, err := cursor.RankPosition(domain.SortFrecency)
	if err != nil || pos == nil {
		return nil, err
	}
	if pos.Value.IsScore() {
		return nil, domain.CursorDecodeError(errors.New("score cursor used without frecency ranking"))
	}
	return &domain.TimeKeyset{ID: pos.ID, LastVal: pos.Value.UpdatedAt}, nil
}

func asSoupError(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.SoupDBError(err)
}

func errorCode(err error) domain.ErrorCode {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return domain.ErrCodeInternal
}

func sortLabel(s domain.SortMethod) string {
	if s == (domain.SortMethod{}) {
		return domain.DefaultSortMethod.String()
	}
	return s.String()
}

func nonNil(items []domain.SoupItem) []domain.SoupItem {
	if items == nil {
		return []domain.SoupItem{}
	}
	return items
}
