package buffer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/soup/domain"
)

func openStore(t *testing.T, maxSize int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "buffer.db"), "", maxSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func item(id string, at time.Time) Item {
	return Item{
		ID:     id,
		UserID: "user-1",
		Data: domain.TrackingData{
			Entity: domain.Entity{Type: domain.EntityDocument, ID: "doc-" + id},
			Action: domain.ActionOpen,
		},
		Timestamp: at,
	}
}

func TestStore_BatchIsTimeOrdered(t *testing.T) {
	store := openStore(t, 0)
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Enqueue(item("late", base.Add(time.Minute))))
	require.NoError(t, store.Enqueue(item("early", base)))
	require.NoError(t, store.Enqueue(item("mid", base.Add(30*time.Second))))

	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "early", batch[0].ID)
	assert.Equal(t, "mid", batch[1].ID)
	assert.Equal(t, "late", batch[2].ID)
	assert.Equal(t, domain.ActionOpen, batch[0].Event().Data.Action)
	assert.True(t, base.Equal(batch[0].Event().Timestamp))
}

func TestStore_RemoveAndRetry(t *testing.T) {
	store := openStore(t, 0)
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Enqueue(item("a", base)))
	require.NoError(t, store.Enqueue(item("b", base.Add(time.Second))))

	batch, err := store.GetBatch(1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NoError(t, store.Retry(batch[0]))

	batch, err = store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].ID)
	assert.Equal(t, 1, batch[0].Retries)

	require.NoError(t, store.Remove(batch[0]))
	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestStore_Full(t *testing.T) {
	store := openStore(t, 1)
	now := time.Now()

	require.NoError(t, store.Enqueue(item("a", now)))
	assert.ErrorIs(t, store.Enqueue(item("b", now)), ErrBufferFull)
}

func TestStore_Cleanup(t *testing.T) {
	store := openStore(t, 0)
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Enqueue(item("old", base.Add(-48*time.Hour))))
	require.NoError(t, store.Enqueue(item("older", base.Add(-72*time.Hour))))
	require.NoError(t, store.Enqueue(item("fresh", base)))

	removed, err := store.Cleanup(base.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "fresh", batch[0].ID)
}

func TestStore_Closed(t *testing.T) {
	var store *Store
	assert.Error(t, store.Enqueue(item("a", time.Now())))
	_, err := store.Size()
	assert.Error(t, err)
}
