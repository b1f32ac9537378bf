package domain

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTripTimestamp(t *testing.T) {
	ts := time.Date(2025, 1, 15, 10, 30, 0, 123456000, time.UTC)
	in := NewTimeCursor("doc-9", 25, string(SortCreatedAt), ts)

	token, err := EncodeCursor(in)
	require.NoError(t, err)

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "doc-9", out.ID)
	assert.EqualValues(t, 25, out.Limit)

	keyset, err := out.SimpleKeyset(SortCreatedAt)
	require.NoError(t, err)
	assert.True(t, keyset.LastVal.Equal(ts), "timestamp must survive with sub-second precision")
}

func TestCursor_RoundTripScorePreservesOrder(t *testing.T) {
	scores := []float64{2877.125, 2877.1250000001, -3.5, 0}
	for _, s := range scores {
		token, err := EncodeCursor(NewScoreCursor("x", 10, string(SortFrecency), s))
		require.NoError(t, err)

		out, err := DecodeCursor(token)
		require.NoError(t, err)
		pos, err := out.RankPosition(SortFrecency)
		require.NoError(t, err)
		assert.True(t, pos.Value.IsScore())
		assert.Equal(t, s, pos.Value.Score)
	}
}

func TestCursor_WireFormat(t *testing.T) {
	ts := time.Date(2025, 6, 20, 14, 0, 0, 0, time.UTC)
	token, err := EncodeCursor(NewTimeCursor("id-1", 2, "updated_at", ts))
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"id-1","limit":2,"val":{"sort_type":"updated_at","last_val":"2025-06-20T14:00:00Z"}}`, string(raw))
}

func TestDecodeCursor_AcceptsStandardBase64(t *testing.T) {
	payload := `{"id":"a/b+c","limit":3,"val":{"sort_type":"frecency","last_val":12.5}}`
	token := base64.StdEncoding.EncodeToString([]byte(payload))

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "a/b+c", out.ID)
	require.NotNil(t, out.Val.Score)
	assert.Equal(t, 12.5, *out.Val.Score)
}

func TestDecodeCursor_Malformed(t *testing.T) {
	enc := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"not json", enc("hello")},
		{"missing id", enc(`{"limit":2,"val":{"sort_type":"created_at","last_val":"2025-01-01T00:00:00Z"}}`)},
		{"missing val", enc(`{"id":"x","limit":2}`)},
		{"null last_val", enc(`{"id":"x","val":{"sort_type":"created_at","last_val":null}}`)},
		{"bad timestamp", enc(`{"id":"x","val":{"sort_type":"created_at","last_val":"yesterday"}}`)},
		{"object last_val", enc(`{"id":"x","val":{"sort_type":"created_at","last_val":{}}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := DecodeCursor(tt.token)
			assert.Nil(t, c)
			require.Error(t, err)
			assert.True(t, IsDomainError(err, ErrCodeInvalid))
		})
	}
}

func TestCursor_SortMismatch(t *testing.T) {
	c := NewTimeCursor("x", 2, string(SortCreatedAt), baseT)

	_, err := c.SimpleKeyset(SortUpdatedAt)
	assert.True(t, IsDomainError(err, ErrCodeInvalid))

	_, err = c.RankPosition(SortFrecency)
	assert.True(t, IsDomainError(err, ErrCodeInvalid))

	score := NewScoreCursor("x", 2, string(SortCreatedAt), 1)
	_, err = score.SimpleKeyset(SortCreatedAt)
	assert.True(t, IsDomainError(err, ErrCodeInvalid), "simple sorts need a timestamp")
}

func TestCursor_RankPositionFallback(t *testing.T) {
	c := NewTimeCursor("chat-1", 5, string(SortFrecency), baseT)
	pos, err := c.RankPosition(SortFrecency)
	require.NoError(t, err)
	assert.False(t, pos.Value.IsScore())
	assert.True(t, pos.Value.UpdatedAt.Equal(baseT))
}

func TestCursor_NilIsFirstPage(t *testing.T) {
	var c *Cursor
	keyset, err := c.SimpleKeyset(SortCreatedAt)
	assert.NoError(t, err)
	assert.Nil(t, keyset)

	pos, err := c.RankPosition(SortFrecency)
	assert.NoError(t, err)
	assert.Nil(t, pos)
}
