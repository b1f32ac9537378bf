package domain

import (
	"fmt"
	"strings"
	"time"
)

// SimpleSortMethod orders items by one of their timestamps, newest first.
type SimpleSortMethod string

const (
	SortViewedAt      SimpleSortMethod = "viewed_at"
	SortUpdatedAt     SimpleSortMethod = "updated_at"
	SortCreatedAt     SimpleSortMethod = "created_at"
	SortViewedUpdated SimpleSortMethod = "viewed_updated"
)

func (m SimpleSortMethod) Valid() bool {
	switch m {
	case SortViewedAt, SortUpdatedAt, SortCreatedAt, SortViewedUpdated:
		return true
	}
	return false
}

// SortKey returns the value an item is ordered by under m. ok is false when
// the item has no value for the method (an item the user never viewed under
// SortViewedAt).
func (m SimpleSortMethod) SortKey(item *ItemBase) (key time.Time, ok bool) {
	switch m {
	case SortCreatedAt:
		return item.CreatedAt, true
	case SortUpdatedAt:
		return item.UpdatedAt, true
	case SortViewedAt:
		if item.ViewedAt == nil {
			return time.Time{}, false
		}
		return *item.ViewedAt, true
	case SortViewedUpdated:
		if item.ViewedAt != nil && item.ViewedAt.After(item.UpdatedAt) {
			return *item.ViewedAt, true
		}
		return item.UpdatedAt, true
	}
	return time.Time{}, false
}

// AdvancedSortMethod orders items by a computed ranking.
type AdvancedSortMethod string

const SortFrecency AdvancedSortMethod = "frecency"

// SortMethod is either a simple or an advanced method; exactly one is set.
type SortMethod struct {
	Simple   SimpleSortMethod
	Advanced AdvancedSortMethod
}

// DefaultSortMethod is used when a request names none.
var DefaultSortMethod = AdvancedSort(SortFrecency)

func SimpleSort(m SimpleSortMethod) SortMethod     { return SortMethod{Simple: m} }
func AdvancedSort(m AdvancedSortMethod) SortMethod { return SortMethod{Advanced: m} }

func (s SortMethod) IsAdvanced() bool { return s.Advanced != "" }

func (s SortMethod) String() string {
	if s.IsAdvanced() {
		return string(s.Advanced)
	}
	return string(s.Simple)
}

// ParseSortMethod maps the wire name of a sort to a SortMethod. An empty
// string selects DefaultSortMethod.
func ParseSortMethod(raw string) (SortMethod, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return DefaultSortMethod, nil
	}
	if name == string(SortFrecency) {
		return AdvancedSort(SortFrecency), nil
	}
	if m := SimpleSortMethod(name); m.Valid() {
		return SimpleSort(m), nil
	}
	return SortMethod{}, NewError(ErrCodeInvalid, fmt.Sprintf("unsupported sort method %q", raw))
}
