package services

import (
	"context"

	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/usecase"
)

// BufferBridge hands events the tracker could not store to the processor.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) BufferEvent(ctx context.Context, userID string, event domain.TrackingEvent) error {
	if b.processor == nil || userID == "" {
		return domain.ErrInvalidPayload
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.processor.Enqueue(userID, event)
}

var _ usecase.EventBuffer = (*BufferBridge)(nil)
