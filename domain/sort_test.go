package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortMethod(t *testing.T) {
	tests := []struct {
		raw  string
		want SortMethod
	}{
		{"", DefaultSortMethod},
		{"frecency", AdvancedSort(SortFrecency)},
		{"created_at", SimpleSort(SortCreatedAt)},
		{" Updated_At ", SimpleSort(SortUpdatedAt)},
		{"viewed_at", SimpleSort(SortViewedAt)},
		{"viewed_updated", SimpleSort(SortViewedUpdated)},
	}
	for _, tt := range tests {
		got, err := ParseSortMethod(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	_, err := ParseSortMethod("relevance")
	assert.True(t, IsDomainError(err, ErrCodeInvalid))
}

func TestSortMethod_String(t *testing.T) {
	assert.Equal(t, "frecency", AdvancedSort(SortFrecency).String())
	assert.Equal(t, "created_at", SimpleSort(SortCreatedAt).String())
	assert.True(t, AdvancedSort(SortFrecency).IsAdvanced())
	assert.False(t, SimpleSort(SortViewedAt).IsAdvanced())
}

func TestSimpleSortMethod_SortKey(t *testing.T) {
	created := baseT.Add(-48 * time.Hour)
	updated := baseT.Add(-24 * time.Hour)
	viewedLater := baseT
	viewedEarlier := baseT.Add(-30 * time.Hour)

	item := &ItemBase{CreatedAt: created, UpdatedAt: updated}

	key, ok := SortCreatedAt.SortKey(item)
	assert.True(t, ok)
	assert.Equal(t, created, key)

	key, _ = SortUpdatedAt.SortKey(item)
	assert.Equal(t, updated, key)

	_, ok = SortViewedAt.SortKey(item)
	assert.False(t, ok, "never viewed items have no viewed_at key")

	key, _ = SortViewedUpdated.SortKey(item)
	assert.Equal(t, updated, key)

	item.ViewedAt = &viewedLater
	key, _ = SortViewedUpdated.SortKey(item)
	assert.Equal(t, viewedLater, key)

	item.ViewedAt = &viewedEarlier
	key, _ = SortViewedUpdated.SortKey(item)
	assert.Equal(t, updated, key)

	key, ok = SortViewedAt.SortKey(item)
	assert.True(t, ok)
	assert.Equal(t, viewedEarlier, key)
}

func TestParseSoupExclude(t *testing.T) {
	got, err := ParseSoupExclude("frecency, TRACKED")
	require.NoError(t, err)
	assert.True(t, got.Has(ExcludeFrecency))
	assert.True(t, got.Has(ExcludeTracked))
	assert.False(t, got.Has(ExcludeFallback))
	assert.Equal(t, "frecency,tracked", got.String())

	empty, err := ParseSoupExclude("")
	require.NoError(t, err)
	assert.Zero(t, empty)

	_, err = ParseSoupExclude("frecency,bogus")
	assert.True(t, IsDomainError(err, ErrCodeInvalid))
}
