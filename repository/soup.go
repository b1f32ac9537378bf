package repository

import (
	"context"

	"github.com/fastygo/soup/domain"
)

// CursorPage is one keyset page of soup items.
type CursorPage struct {
	Items   []domain.SoupItem
	HasMore bool
}

// SoupRepository reads the per-type item tables a soup is built from. Only
// rows the user may see are returned.
type SoupRepository interface {
	// ExpandedGenericCursorSoup returns up to limit full item projections
	// ordered by cursor.Sort, newest first, after cursor.After.
	ExpandedGenericCursorSoup(ctx context.Context, userID string, limit int, cursor domain.SimpleCursor, exclude domain.SoupExclude) (CursorPage, error)
	// UnexpandedGenericCursorSoup is ExpandedGenericCursorSoup with only the
	// shared columns of each item.
	UnexpandedGenericCursorSoup(ctx context.Context, userID string, limit int, cursor domain.SimpleCursor, exclude domain.SoupExclude) (CursorPage, error)
	// ExpandedSoupByIds fetches full projections of the given entities in the
	// given order. Entities that are missing or hidden from the user are skipped.
	ExpandedSoupByIds(ctx context.Context, userID string, entities []domain.Entity) ([]domain.SoupItem, error)
	UnexpandedSoupByIds(ctx context.Context, userID string, entities []domain.Entity) ([]domain.SoupItem, error)
}
