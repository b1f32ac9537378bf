package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/internal/metrics"
	"github.com/fastygo/soup/repository"
)

type soupRepository struct {
	pool   *pgxpool.Pool
	tables []soupTable
}

// NewSoupRepository creates a SoupRepository over the item tables.
func NewSoupRepository(pool *pgxpool.Pool) repository.SoupRepository {
	return &soupRepository{pool: pool, tables: soupTables}
}

func (r *soupRepository) ExpandedGenericCursorSoup(ctx context.Context, userID string, limit int, cursor domain.SimpleCursor, exclude domain.SoupExclude) (repository.CursorPage, error) {
	defer metrics.ObserveQuery("expanded_cursor_soup", time.Now())
	return r.cursorSoup(ctx, userID, limit, cursor, exclude, true)
}

func (r *soupRepository) UnexpandedGenericCursorSoup(ctx context.Context, userID string, limit int, cursor domain.SimpleCursor, exclude domain.SoupExclude) (repository.CursorPage, error) {
	defer metrics.ObserveQuery("unexpanded_cursor_soup", time.Now())
	return r.cursorSoup(ctx, userID, limit, cursor, exclude, false)
}

func (r *soupRepository) ExpandedSoupByIds(ctx context.Context, userID string, entities []domain.Entity) ([]domain.SoupItem, error) {
	defer metrics.ObserveQuery("expanded_soup_by_ids", time.Now())
	return r.soupByIds(ctx, userID, entities, true)
}

func (r *soupRepository) UnexpandedSoupByIds(ctx context.Context, userID string, entities []domain.Entity) ([]domain.SoupItem, error) {
	defer metrics.ObserveQuery("unexpanded_soup_by_ids", time.Now())
	return r.soupByIds(ctx, userID, entities, false)
}

// readSnapshot runs fn in a read-only repeatable-read transaction so every
// table query of one page sees the same snapshot.
func (r *soupRepository) readSnapshot(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return domain.SoupDBError(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.SoupDBError(err)
	}
	return nil
}

func (r *soupRepository) cursorSoup(ctx context.Context, userID string, limit int, cursor domain.SimpleCursor, exclude domain.SoupExclude, expanded bool) (repository.CursorPage, error) {
	if !cursor.Sort.Valid() {
		return repository.CursorPage{}, domain.NewError(domain.ErrCodeInvalid, "unsupported sort method")
	}
	limit = clampLimit(limit)
	fetch := limit + 1

	streams := make([][]keyedItem, 0, len(r.tables))
	err := r.readSnapshot(ctx, func(tx pgx.Tx) error {
		for _, st := range r.tables {
			rows, err := r.queryTable(ctx, tx, st, userID, fetch, cursor, exclude, expanded)
			if err != nil {
				return err
			}
			streams = append(streams, rows)
		}
		return nil
	})
	if err != nil {
		return repository.CursorPage{}, err
	}

	merged := mergeSorted(streams, fetch)
	page := repository.CursorPage{HasMore: len(merged) > limit}
	if page.HasMore {
		merged = merged[:limit]
	}
	page.Items = make([]domain.SoupItem, 0, len(merged))
	for _, k := range merged {
		page.Items = append(page.Items, k.item)
	}
	return page, nil
}

func (r *soupRepository) queryTable(ctx context.Context, tx pgx.Tx, st soupTable, userID string, fetch int, cursor domain.SimpleCursor, exclude domain.SoupExclude, expanded bool) ([]keyedItem, error) {
	query, err := st.cursorQuery(cursor.Sort, cursor.After != nil, exclude, expanded)
	if err != nil {
		return nil, err
	}
	args := []any{userID}
	if cursor.After != nil {
		args = append(args, cursor.After.LastVal, cursor.After.ID)
	}
	args = append(args, fetch)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.SoupDBError(err)
	}
	defer rows.Close()

	var out []keyedItem
	for rows.Next() {
		item, err := st.scan(rows, expanded)
		if err != nil {
			return nil, domain.SoupDBError(err)
		}
		key, ok := cursor.Sort.SortKey(item.Base())
		if !ok {
			continue
		}
		out = append(out, keyedItem{item: item, key: domain.TimeKeyset{ID: item.Base().ID, LastVal: key}})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.SoupDBError(err)
	}
	return out, nil
}

func (r *soupRepository) soupByIds(ctx context.Context, userID string, entities []domain.Entity, expanded bool) ([]domain.SoupItem, error) {
	if len(entities) == 0 {
		return []domain.SoupItem{}, nil
	}

	idsByType := make(map[domain.EntityType][]string)
	for _, e := range entities {
		idsByType[e.Type] = append(idsByType[e.Type], e.ID)
	}

	var items []domain.SoupItem
	err := r.readSnapshot(ctx, func(tx pgx.Tx) error {
		for _, st := range r.tables {
			ids := idsByType[st.entity]
			if len(ids) == 0 {
				continue
			}
			rows, err := tx.Query(ctx, st.byIDsQuery(expanded), userID, ids)
			if err != nil {
				return domain.SoupDBError(err)
			}
			for rows.Next() {
				item, err := st.scan(rows, expanded)
				if err != nil {
					rows.Close()
					return domain.SoupDBError(err)
				}
				items = append(items, item)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return domain.SoupDBError(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reorderByEntities(items, entities), nil
}
