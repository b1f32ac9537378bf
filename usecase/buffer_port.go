package usecase

import (
	"context"

	"github.com/fastygo/soup/domain"
)

// EventBuffer parks tracking events that could not be stored so they can be
// replayed once storage is back.
type EventBuffer interface {
	BufferEvent(ctx context.Context, userID string, event domain.TrackingEvent) error
}
