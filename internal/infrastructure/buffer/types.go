package buffer

import (
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/soup/domain"
)

// Item is a tracking event that could not reach the frecency store and waits
// to be replayed.
type Item struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	Data      domain.TrackingData `json:"data"`
	Retries   int                 `json:"retries"`
	Timestamp time.Time           `json:"timestamp"`

	bucketKey []byte
}

// Event is the tracking event the item replays, at its original time.
func (i Item) Event() domain.TrackingEvent {
	return domain.TrackingEvent{Data: i.Data, Timestamp: i.Timestamp}
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
	i.Timestamp = i.Timestamp.UTC()
}
