package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/soup/domain"
)

func tableFor(t *testing.T, entity domain.EntityType) soupTable {
	t.Helper()
	for _, st := range soupTables {
		if st.entity == entity {
			return st
		}
	}
	t.Fatalf("no table for %s", entity)
	return soupTable{}
}

func TestSoupTables_CoverEveryEntityType(t *testing.T) {
	require.Len(t, soupTables, len(domain.EntityTypes))
	for i, typ := range domain.EntityTypes {
		assert.Equal(t, typ, soupTables[i].entity)
	}
}

func TestCursorQuery_FirstPage(t *testing.T) {
	q, err := tableFor(t, domain.EntityDocument).cursorQuery(domain.SortCreatedAt, false, 0, false)
	require.NoError(t, err)

	assert.Contains(t, q, "FROM documents t")
	assert.Contains(t, q, "t.deleted_at IS NULL")
	assert.Contains(t, q, `ORDER BY t.created_at DESC, t.id COLLATE "C" DESC`)
	assert.Contains(t, q, "LIMIT $2")
	assert.NotContains(t, q, "$3")
	assert.NotContains(t, q, "t.file_type")
}

func TestCursorQuery_AfterKeyset(t *testing.T) {
	q, err := tableFor(t, domain.EntityChat).cursorQuery(domain.SortUpdatedAt, true, 0, true)
	require.NoError(t, err)

	assert.Contains(t, q, `(t.updated_at, t.id COLLATE "C") < ($2, $3::text COLLATE "C")`)
	assert.Contains(t, q, "LIMIT $4")
	assert.Contains(t, q, "t.model, t.project_id")
}

func TestCursorQuery_ViewedAtOnlyViewedRows(t *testing.T) {
	q, err := tableFor(t, domain.EntityProject).cursorQuery(domain.SortViewedAt, false, 0, false)
	require.NoError(t, err)
	assert.Contains(t, q, "v.viewed_at IS NOT NULL")
	assert.Contains(t, q, "ORDER BY v.viewed_at DESC")

	q, err = tableFor(t, domain.EntityProject).cursorQuery(domain.SortViewedUpdated, false, 0, false)
	require.NoError(t, err)
	assert.NotContains(t, q, "v.viewed_at IS NOT NULL")
	assert.Contains(t, q, "ORDER BY GREATEST(t.updated_at, v.viewed_at) DESC")
}

func TestCursorQuery_ExcludeTracked(t *testing.T) {
	q, err := tableFor(t, domain.EntityThread).cursorQuery(domain.SortUpdatedAt, false, domain.ExcludeTracked, false)
	require.NoError(t, err)
	assert.Contains(t, q, "NOT EXISTS")
	assert.Contains(t, q, "fa.entity_type = 'thread'")
	assert.Contains(t, q, "t.subject AS name")
}

func TestCursorQuery_UnknownSort(t *testing.T) {
	_, err := tableFor(t, domain.EntityDocument).cursorQuery("score", false, 0, false)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestByIDsQuery(t *testing.T) {
	q := tableFor(t, domain.EntityChannel).byIDsQuery(true)
	assert.True(t, strings.HasSuffix(q, "AND t.id = ANY($2)"))
	assert.Contains(t, q, "channel_members")
	assert.Contains(t, q, "t.channel_type")
}

type fakeRow []any

func (r fakeRow) Scan(dest ...interface{}) error {
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = r[i].(string)
		case *int64:
			*d = r[i].(int64)
		}
	}
	return nil
}

func TestScan_ExpandedThread(t *testing.T) {
	row := fakeRow{"th-1", "u-1", "Standup", nil, nil, nil, "ch-1", int64(7)}

	item, err := tableFor(t, domain.EntityThread).scan(row, true)
	require.NoError(t, err)

	thread, ok := item.(*domain.ThreadItem)
	require.True(t, ok)
	assert.Equal(t, "th-1", thread.ID)
	assert.Equal(t, domain.EntityThread, thread.Type)
	assert.Equal(t, "Standup", thread.Name)
	assert.Equal(t, "ch-1", thread.ChannelID)
	assert.Equal(t, int64(7), thread.MessageCount)
}

func TestScan_Unexpanded(t *testing.T) {
	row := fakeRow{"doc-1", "u-1", "Plan", nil, nil, nil}

	item, err := tableFor(t, domain.EntityDocument).scan(row, false)
	require.NoError(t, err)

	base, ok := item.(*domain.ItemBase)
	require.True(t, ok)
	assert.Equal(t, domain.Entity{Type: domain.EntityDocument, ID: "doc-1"}, base.Entity())
}
