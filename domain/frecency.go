package domain

import (
	"math"
	"slices"
	"time"
)

const (
	// MaxRecentEvents bounds the per-aggregate event history.
	MaxRecentEvents = 10

	// HalfLife is the age at which an event contributes half its base weight.
	HalfLife = 7 * 24 * time.Hour
)

// AggregateID keys one (user, entity) frecency aggregate.
type AggregateID struct {
	Entity Entity `json:"entity"`
	UserID string `json:"user_id"`
}

// TimestampWeight is one retained event contribution.
type TimestampWeight struct {
	Timestamp time.Time `json:"timestamp"`
	Weight    float64   `json:"weight"`
}

// FrecencyData is the accumulated state of an aggregate.
type FrecencyData struct {
	EventCount    int64             `json:"event_count"`
	FrecencyScore float64           `json:"frecency_score"`
	FirstEvent    time.Time         `json:"first_event"`
	RecentEvents  []TimestampWeight `json:"recent_events"`
}

// AggregateFrecency is the per-(user, entity) frecency aggregate.
type AggregateFrecency struct {
	ID   AggregateID  `json:"id"`
	Data FrecencyData `json:"data"`
}

// NewFromInitialAction starts an aggregate from its first event.
func NewFromInitialAction(id AggregateID, event TrackingEvent, now time.Time) AggregateFrecency {
	recent := []TimestampWeight{{Timestamp: event.Timestamp, Weight: event.Data.Action.Weight()}}
	data := FrecencyData{
		EventCount:   1,
		FirstEvent:   event.Timestamp,
		RecentEvents: recent,
	}
	data.FrecencyScore = data.ScoreAt(now)
	return AggregateFrecency{ID: id, Data: data}
}

// AppendEvent returns the aggregate that results from adding event. The
// receiver is not modified, so callers must serialize read and write of the
// stored aggregate themselves.
//
// RecentEvents stays ordered by timestamp: a late event, such as one replayed
// from the offline buffer, is inserted at its place in time and the oldest
// entries are the ones trimmed.
func (a AggregateFrecency) AppendEvent(event TrackingEvent, now time.Time) AggregateFrecency {
	tw := TimestampWeight{Timestamp: event.Timestamp, Weight: event.Data.Action.Weight()}
	recent := make([]TimestampWeight, 0, len(a.Data.RecentEvents)+1)
	recent = append(recent, a.Data.RecentEvents...)
	at, _ := slices.BinarySearchFunc(recent, tw, func(e, target TimestampWeight) int {
		if e.Timestamp.After(target.Timestamp) {
			return 1
		}
		return -1
	})
	recent = slices.Insert(recent, at, tw)
	if over := len(recent) - MaxRecentEvents; over > 0 {
		recent = recent[over:]
	}

	first := a.Data.FirstEvent
	if first.IsZero() {
		first = event.Timestamp
	}

	data := FrecencyData{
		EventCount:   a.Data.EventCount + 1,
		FirstEvent:   first,
		RecentEvents: recent,
	}
	data.FrecencyScore = data.ScoreAt(now)
	return AggregateFrecency{ID: a.ID, Data: data}
}

// ScoreAt is the decayed score of the retained events as seen at now:
//
//	(EventCount / len(RecentEvents)) * sum(w * 2^(-(now - t) / HalfLife))
//
// The count ratio keeps events trimmed from the history contributing to the
// frequency half of the score.
func (d FrecencyData) ScoreAt(now time.Time) float64 {
	if len(d.RecentEvents) == 0 {
		return 0
	}
	h := HalfLife.Seconds()
	n := unixSeconds(now)
	var sum float64
	for _, ev := range d.RecentEvents {
		sum += ev.Weight * math.Exp2(-(n-unixSeconds(ev.Timestamp))/h)
	}
	return d.frequencyFactor() * sum
}

// RankKey is log2 of the score expressed at the Unix epoch. Because every
// event decays at the same rate, ordering aggregates by RankKey is the same as
// ordering them by ScoreAt(now) for any single now, and the key does not
// change while no new events arrive.
func (d FrecencyData) RankKey() float64 {
	if len(d.RecentEvents) == 0 {
		return math.Inf(-1)
	}
	h := HalfLife.Seconds()
	ref := unixSeconds(d.RecentEvents[0].Timestamp)
	for _, ev := range d.RecentEvents[1:] {
		ref = math.Max(ref, unixSeconds(ev.Timestamp))
	}
	var sum float64
	for _, ev := range d.RecentEvents {
		sum += ev.Weight * math.Exp2((unixSeconds(ev.Timestamp)-ref)/h)
	}
	return math.Log2(d.frequencyFactor()*sum) + ref/h
}

// ScoreFromRankKey converts a rank key back to a score as seen at now.
func ScoreFromRankKey(key float64, now time.Time) float64 {
	return math.Exp2(key - unixSeconds(now)/HalfLife.Seconds())
}

// LastEvent returns the latest event timestamp in the history.
func (d FrecencyData) LastEvent() time.Time {
	if len(d.RecentEvents) == 0 {
		return d.FirstEvent
	}
	return d.RecentEvents[len(d.RecentEvents)-1].Timestamp
}

func (d FrecencyData) frequencyFactor() float64 {
	count := d.EventCount
	if count < int64(len(d.RecentEvents)) {
		count = int64(len(d.RecentEvents))
	}
	return float64(count) / float64(len(d.RecentEvents))
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
