package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/soup/api/transport"
	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/pkg/httpcontext"
	soupUC "github.com/fastygo/soup/usecase/soup"
)

// SoupService builds soup pages.
type SoupService interface {
	GetUserSoup(ctx context.Context, req soupUC.Request) (soupUC.Response, error)
}

type SoupHandler struct {
	baseHandler
	uc SoupService
}

func NewSoupHandler(uc SoupService, adapter *httpcontext.Adapter, logger *zap.Logger) *SoupHandler {
	return &SoupHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary User soup
// @Tags soup
// @Param cursor query string false "opaque cursor of the previous page"
// @Param sort query string false "frecency, created_at, updated_at, viewed_at or viewed_updated"
// @Param limit query int false "page size"
// @Param exclude query string false "comma separated: frecency, fallback, tracked"
// @Param expand query bool false "return full item projections"
// @Router /api/v1/soup [get]
func (h *SoupHandler) GetSoup(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	req, ok := h.parseSoupRequest(ctx)
	if !ok {
		return
	}
	req.UserID = userID

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	resp, err := h.uc.GetUserSoup(stdCtx, req)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, resp)
}

func (h *SoupHandler) parseSoupRequest(ctx *fasthttp.RequestCtx) (soupUC.Request, bool) {
	args := ctx.QueryArgs()
	q := transport.SoupQuery{
		Cursor:  string(args.Peek("cursor")),
		Sort:    string(args.Peek("sort")),
		Exclude: string(args.Peek("exclude")),
	}

	if raw := string(args.Peek("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.respondInvalid(ctx, "limit must be an integer")
			return soupUC.Request{}, false
		}
		q.Limit = limit
	}
	if raw := string(args.Peek("expand")); raw != "" {
		expand, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondInvalid(ctx, "expand must be a boolean")
			return soupUC.Request{}, false
		}
		q.Expand = expand
	}

	if err := transport.Validate(&q); err != nil {
		h.respondInvalid(ctx, err.Error())
		return soupUC.Request{}, false
	}

	sort, err := domain.ParseSortMethod(q.Sort)
	if err != nil {
		h.respondInvalid(ctx, err.Error())
		return soupUC.Request{}, false
	}
	exclude, err := domain.ParseSoupExclude(q.Exclude)
	if err != nil {
		h.respondInvalid(ctx, err.Error())
		return soupUC.Request{}, false
	}

	return soupUC.Request{
		Sort:    sort,
		Cursor:  q.Cursor,
		Limit:   q.Limit,
		Exclude: exclude,
		Expand:  q.Expand,
	}, true
}
