package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/internal/metrics"
	"github.com/fastygo/soup/repository"
)

const defaultUpsertAttempts = 5

type frecencyRepository struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

// NewFrecencyRepository creates a Postgres-backed FrecencyRepository. Each
// event is applied with an optimistic, version-checked write that is retried
// up to maxAttempts times when another writer got there first.
func NewFrecencyRepository(pool *pgxpool.Pool, maxAttempts int) repository.FrecencyRepository {
	if maxAttempts <= 0 {
		maxAttempts = defaultUpsertAttempts
	}
	return &frecencyRepository{pool: pool, maxAttempts: maxAttempts}
}

func (r *frecencyRepository) OnEvent(ctx context.Context, userID string, data domain.TrackingData, now time.Time) (*domain.AggregateFrecency, error) {
	if userID == "" {
		return nil, domain.ErrInvalidPayload
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	id := domain.AggregateID{Entity: data.Entity, UserID: userID}
	event := domain.TrackingEvent{Data: data, Timestamp: now}

	if data.Action.IsView() {
		if err := r.recordView(ctx, id, now); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.FrecencyUpsertRetries.Inc()
		}

		current, version, err := r.load(ctx, id)
		switch {
		case errors.Is(err, domain.ErrAggregateNotFound):
			next := domain.NewFromInitialAction(id, event, now)
			ok, err := r.insert(ctx, next)
			if err != nil {
				return nil, err
			}
			if ok {
				return &next, nil
			}
		case err != nil:
			return nil, err
		default:
			next := current.AppendEvent(event, now)
			ok, err := r.update(ctx, next, version)
			if err != nil {
				return nil, err
			}
			if ok {
				return &next, nil
			}
		}
	}
	return nil, domain.ErrUpsertContention
}

func (r *frecencyRepository) Get(ctx context.Context, id domain.AggregateID) (*domain.AggregateFrecency, error) {
	agg, _, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *frecencyRepository) ListRanked(ctx context.Context, userID string, after *domain.ScoreKeyset, limit int) ([]domain.AggregateFrecency, error) {
	defer metrics.ObserveQuery("frecency_list_ranked", time.Now())

	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		const query = `
		SELECT user_id, entity_type, entity_id, event_count, frecency_score, first_event, recent_events
		FROM frecency_aggregates
		WHERE user_id = $1
		ORDER BY rank_key DESC, entity_id COLLATE "C" DESC
		LIMIT $2
		`
		rows, err = r.pool.Query(ctx, query, userID, clampLimit(limit))
	} else {
		const query = `
		SELECT user_id, entity_type, entity_id, event_count, frecency_score, first_event, recent_events
		FROM frecency_aggregates
		WHERE user_id = $1
		  AND (rank_key, entity_id COLLATE "C") < ($2, $3::text COLLATE "C")
		ORDER BY rank_key DESC, entity_id COLLATE "C" DESC
		LIMIT $4
		`
		rows, err = r.pool.Query(ctx, query, userID, after.RankKey, after.ID, clampLimit(limit))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AggregateFrecency
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

func (r *frecencyRepository) load(ctx context.Context, id domain.AggregateID) (domain.AggregateFrecency, int64, error) {
	const query = `
	SELECT event_count, frecency_score, first_event, recent_events, version
	FROM frecency_aggregates
	WHERE user_id = $1 AND entity_type = $2 AND entity_id = $3
	`
	var (
		agg     = domain.AggregateFrecency{ID: id}
		events  []byte
		version int64
	)
	err := r.pool.QueryRow(ctx, query, id.UserID, string(id.Entity.Type), id.Entity.ID).Scan(
		&agg.Data.EventCount,
		&agg.Data.FrecencyScore,
		&agg.Data.FirstEvent,
		&events,
		&version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return agg, 0, domain.ErrAggregateNotFound
		}
		return agg, 0, err
	}
	if agg.Data.RecentEvents, err = unmarshalEvents(events); err != nil {
		return agg, 0, err
	}
	return agg, version, nil
}

// insert reports false when another writer created the aggregate first.
func (r *frecencyRepository) insert(ctx context.Context, agg domain.AggregateFrecency) (bool, error) {
	const query = `
	INSERT INTO frecency_aggregates (
		user_id, entity_type, entity_id, event_count, frecency_score, rank_key,
		first_event, last_event, recent_events, version, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, NOW())
	ON CONFLICT (user_id, entity_type, entity_id) DO NOTHING
	`
	events, err := marshalEvents(agg.Data.RecentEvents)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, query,
		agg.ID.UserID,
		string(agg.ID.Entity.Type),
		agg.ID.Entity.ID,
		agg.Data.EventCount,
		agg.Data.FrecencyScore,
		agg.Data.RankKey(),
		agg.Data.FirstEvent,
		agg.Data.LastEvent(),
		events,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// update reports false when the stored version moved since it was loaded.
// first_event is never rewritten.
func (r *frecencyRepository) update(ctx context.Context, agg domain.AggregateFrecency, version int64) (bool, error) {
	const query = `
	UPDATE frecency_aggregates
	SET event_count = $4,
		frecency_score = $5,
		rank_key = $6,
		last_event = $7,
		recent_events = $8,
		version = version + 1,
		updated_at = NOW()
	WHERE user_id = $1 AND entity_type = $2 AND entity_id = $3 AND version = $9
	`
	events, err := marshalEvents(agg.Data.RecentEvents)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, query,
		agg.ID.UserID,
		string(agg.ID.Entity.Type),
		agg.ID.Entity.ID,
		agg.Data.EventCount,
		agg.Data.FrecencyScore,
		agg.Data.RankKey(),
		agg.Data.LastEvent(),
		events,
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *frecencyRepository) recordView(ctx context.Context, id domain.AggregateID, at time.Time) error {
	const query = `
	INSERT INTO item_views (user_id, entity_type, entity_id, viewed_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, entity_type, entity_id) DO UPDATE
	SET viewed_at = GREATEST(item_views.viewed_at, EXCLUDED.viewed_at)
	`
	_, err := r.pool.Exec(ctx, query, id.UserID, string(id.Entity.Type), id.Entity.ID, at)
	return err
}

func scanAggregate(row interface {
	Scan(dest ...interface{}) error
}) (domain.AggregateFrecency, error) {
	var (
		agg        domain.AggregateFrecency
		entityType string
		events     []byte
	)
	if err := row.Scan(
		&agg.ID.UserID,
		&entityType,
		&agg.ID.Entity.ID,
		&agg.Data.EventCount,
		&agg.Data.FrecencyScore,
		&agg.Data.FirstEvent,
		&events,
	); err != nil {
		return agg, err
	}
	agg.ID.Entity.Type = domain.EntityType(entityType)

	var err error
	agg.Data.RecentEvents, err = unmarshalEvents(events)
	return agg, err
}
