//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/internal/config"
	pginfra "github.com/fastygo/soup/internal/infrastructure/postgres"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if exec.Command("docker", "info").Run() != nil {
		t.Skip("docker not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "soup",
			"POSTGRES_PASSWORD": "soup",
			"POSTGRES_DB":       "soup",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:  fmt.Sprintf("postgres://soup:soup@%s:%s/soup?sslmode=disable", host, port.Port()),
			Name: "soup",
		},
		Migrations: config.MigrationsConfig{Enabled: true, Path: "../../assets/migrations"},
	}
	require.NoError(t, pginfra.RunMigrations(cfg, nil))

	pool, err := pginfra.NewPool(ctx, cfg.Database, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func exec1(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()
	_, err := pool.Exec(context.Background(), sql, args...)
	require.NoError(t, err)
}

func TestIntegration_OnEventCountsConcurrentEvents(t *testing.T) {
	pool := startPostgres(t)
	repo := NewFrecencyRepository(pool, 50)
	ctx := context.Background()

	data := domain.TrackingData{
		Entity: domain.Entity{Type: domain.EntityDocument, ID: "doc-1"},
		Action: domain.ActionEdit,
	}
	now := time.Now().UTC()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.OnEvent(ctx, "user-1", data, now.Add(time.Duration(i)*time.Second))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	agg, err := repo.Get(ctx, domain.AggregateID{Entity: data.Entity, UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(writers), agg.Data.EventCount)
	assert.Len(t, agg.Data.RecentEvents, writers)
}

func TestIntegration_ListRankedPaginates(t *testing.T) {
	pool := startPostgres(t)
	repo := NewFrecencyRepository(pool, 5)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		data := domain.TrackingData{Entity: domain.Entity{Type: domain.EntityChat, ID: id}, Action: domain.ActionOpen}
		for n := 0; n <= i; n++ {
			_, err := repo.OnEvent(ctx, "user-1", data, now)
			require.NoError(t, err)
		}
	}

	first, err := repo.ListRanked(ctx, "user-1", nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "c", first[0].ID.Entity.ID)
	assert.Equal(t, "b", first[1].ID.Entity.ID)

	last := first[1]
	rest, err := repo.ListRanked(ctx, "user-1", &domain.ScoreKeyset{ID: last.ID.Entity.ID, RankKey: last.Data.RankKey()}, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a", rest[0].ID.Entity.ID)
}

func TestIntegration_CursorSoupPaginatesByCreatedAt(t *testing.T) {
	pool := startPostgres(t)
	repo := NewSoupRepository(pool)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		exec1(t, pool, `INSERT INTO documents (id, owner_id, name, created_at, updated_at) VALUES ($1, 'user-1', $2, $3, $3)`,
			fmt.Sprintf("doc-%d", i), fmt.Sprintf("Doc %d", i), base.Add(time.Duration(i)*time.Hour))
	}
	exec1(t, pool, `INSERT INTO documents (id, owner_id, name, deleted_at) VALUES ('doc-gone', 'user-1', 'Gone', NOW())`)
	exec1(t, pool, `INSERT INTO documents (id, owner_id, name) VALUES ('doc-other', 'user-2', 'Other')`)

	cursor := domain.SimpleCursor{Sort: domain.SortCreatedAt}
	page, err := repo.UnexpandedGenericCursorSoup(ctx, "user-1", 2, cursor, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "doc-5", page.Items[0].Base().ID)
	assert.Equal(t, "doc-4", page.Items[1].Base().ID)

	var seen []string
	for {
		for _, it := range page.Items {
			seen = append(seen, it.Base().ID)
		}
		if !page.HasMore {
			break
		}
		last := page.Items[len(page.Items)-1].Base()
		cursor.After = &domain.TimeKeyset{ID: last.ID, LastVal: last.CreatedAt}
		page, err = repo.UnexpandedGenericCursorSoup(ctx, "user-1", 2, cursor, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"doc-5", "doc-4", "doc-3", "doc-2", "doc-1"}, seen)
}

func TestIntegration_SoupByIdsKeepsOrderAndVisibility(t *testing.T) {
	pool := startPostgres(t)
	repo := NewSoupRepository(pool)
	ctx := context.Background()

	exec1(t, pool, `INSERT INTO documents (id, owner_id, name, file_type) VALUES ('d1', 'user-1', 'Mine', 'pdf')`)
	exec1(t, pool, `INSERT INTO chats (id, owner_id, name, model) VALUES ('c1', 'user-2', 'Shared', 'gpt')`)
	exec1(t, pool, `INSERT INTO item_access (user_id, entity_type, entity_id) VALUES ('user-1', 'chat', 'c1')`)
	exec1(t, pool, `INSERT INTO chats (id, owner_id, name) VALUES ('c2', 'user-2', 'Private')`)
	exec1(t, pool, `INSERT INTO channels (id, owner_id, name) VALUES ('ch1', 'user-2', 'general')`)
	exec1(t, pool, `INSERT INTO channel_members (channel_id, user_id) VALUES ('ch1', 'user-1')`)
	exec1(t, pool, `INSERT INTO threads (id, channel_id, owner_id, subject, message_count) VALUES ('t1', 'ch1', 'user-2', 'Hello', 3)`)

	items, err := repo.ExpandedSoupByIds(ctx, "user-1", []domain.Entity{
		{Type: domain.EntityThread, ID: "t1"},
		{Type: domain.EntityChat, ID: "c2"},
		{Type: domain.EntityChat, ID: "c1"},
		{Type: domain.EntityDocument, ID: "d1"},
	})
	require.NoError(t, err)
	require.Len(t, items, 3)

	thread, ok := items[0].(*domain.ThreadItem)
	require.True(t, ok)
	assert.Equal(t, int64(3), thread.MessageCount)
	assert.Equal(t, "c1", items[1].Base().ID)
	doc, ok := items[2].(*domain.DocumentItem)
	require.True(t, ok)
	assert.Equal(t, "pdf", doc.FileType)
}

func TestIntegration_ViewedAtTracksViews(t *testing.T) {
	pool := startPostgres(t)
	frecency := NewFrecencyRepository(pool, 5)
	soup := NewSoupRepository(pool)
	ctx := context.Background()

	exec1(t, pool, `INSERT INTO documents (id, owner_id, name) VALUES ('d1', 'user-1', 'One'), ('d2', 'user-1', 'Two')`)

	_, err := frecency.OnEvent(ctx, "user-1", domain.TrackingData{
		Entity: domain.Entity{Type: domain.EntityDocument, ID: "d2"},
		Action: domain.ActionView,
	}, time.Now().UTC())
	require.NoError(t, err)

	page, err := soup.UnexpandedGenericCursorSoup(ctx, "user-1", 10, domain.SimpleCursor{Sort: domain.SortViewedAt}, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "d2", page.Items[0].Base().ID)
	assert.NotNil(t, page.Items[0].Base().ViewedAt)

	untracked, err := soup.UnexpandedGenericCursorSoup(ctx, "user-1", 10, domain.SimpleCursor{Sort: domain.SortUpdatedAt}, domain.ExcludeTracked)
	require.NoError(t, err)
	require.Len(t, untracked.Items, 1)
	assert.Equal(t, "d1", untracked.Items[0].Base().ID)
}
