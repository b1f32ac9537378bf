package domain

import (
	"cmp"
	"time"
)

// FrecencyValueKind tells which ranking key a FrecencyValue carries.
type FrecencyValueKind uint8

const (
	// FrecencyScoreKind values come from an aggregate's RankKey.
	FrecencyScoreKind FrecencyValueKind = iota + 1
	// UpdatedAtKind values are the fallback for items without an aggregate.
	UpdatedAtKind
)

// FrecencyValue is the ranking key of one entity in a frecency soup.
type FrecencyValue struct {
	Kind      FrecencyValueKind
	Score     float64
	UpdatedAt time.Time
}

func FrecencyScoreValue(rankKey float64) FrecencyValue {
	return FrecencyValue{Kind: FrecencyScoreKind, Score: rankKey}
}

func UpdatedAtValue(ts time.Time) FrecencyValue {
	return FrecencyValue{Kind: UpdatedAtKind, UpdatedAt: ts}
}

func (v FrecencyValue) IsScore() bool { return v.Kind == FrecencyScoreKind }

// CompareFrecencyValues orders a before b (negative result) when a ranks
// higher. Every scored value ranks above every fallback value; scores rank
// by descending key and fallbacks by descending timestamp.
func CompareFrecencyValues(a, b FrecencyValue) int {
	if a.Kind != b.Kind {
		if a.IsScore() {
			return -1
		}
		return 1
	}
	if a.IsScore() {
		return cmp.Compare(b.Score, a.Score)
	}
	return b.UpdatedAt.Compare(a.UpdatedAt)
}

// RankedEntity is an entity together with its position in a frecency soup.
type RankedEntity struct {
	Entity Entity
	Value  FrecencyValue
	// Score is the decayed score at ranking time; zero for fallback entries.
	Score float64
}

// CompareRanked is the total order of a frecency soup: by value, then by
// descending entity id.
func CompareRanked(a, b RankedEntity) int {
	if c := CompareFrecencyValues(a.Value, b.Value); c != 0 {
		return c
	}
	return cmp.Compare(b.Entity.ID, a.Entity.ID)
}

// RankPosition is the last entity a frecency page ended on.
type RankPosition struct {
	ID    string
	Value FrecencyValue
}

// After reports whether r sorts strictly after the position.
func (p RankPosition) After(r RankedEntity) bool {
	return CompareRanked(r, RankedEntity{Entity: Entity{ID: p.ID}, Value: p.Value}) > 0
}
