package handler

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/soup/api/transport"
	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/pkg/httpcontext"
	"github.com/fastygo/soup/usecase/frecency"
)

// EventTracker records user interactions.
type EventTracker interface {
	Track(ctx context.Context, userID string, data domain.TrackingData) (frecency.TrackResult, error)
}

type TrackHandler struct {
	baseHandler
	tracker EventTracker
}

func NewTrackHandler(tracker EventTracker, adapter *httpcontext.Adapter, logger *zap.Logger) *TrackHandler {
	return &TrackHandler{
		baseHandler: newBaseHandler(adapter, logger),
		tracker:     tracker,
	}
}

// @Summary Track an interaction
// @Tags frecency
// @Router /api/v1/track [post]
func (h *TrackHandler) Track(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	var req transport.TrackRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return
	}
	if err := transport.Validate(&req); err != nil {
		h.respondInvalid(ctx, err.Error())
		return
	}

	data := domain.TrackingData{
		Entity: domain.Entity{Type: domain.EntityType(req.EntityType), ID: req.EntityID},
		Action: domain.TrackingAction(req.Action),
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.tracker.Track(stdCtx, userID, data)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}

	out := transport.TrackResponse{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Buffered:   res.Buffered,
	}
	if res.Buffered {
		h.respondSuccess(ctx, http.StatusAccepted, out)
		return
	}
	out.EventCount = res.Aggregate.Data.EventCount
	score := res.Aggregate.Data.FrecencyScore
	out.Score = &score
	h.respondSuccess(ctx, http.StatusCreated, out)
}
