package router

import (
	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"github.com/valyala/fasthttp/pprofhandler"

	apiHandler "github.com/fastygo/soup/api/handler"
	"github.com/fastygo/soup/internal/middleware"
)

type Handlers struct {
	Soup   *apiHandler.SoupHandler
	Track  *apiHandler.TrackHandler
	Health *apiHandler.HealthHandler
}

type Options struct {
	Auth          middleware.Middleware
	TrackLimiter  middleware.Middleware
	EnableMetrics bool
	EnablePprof   bool
}

func New(handlers Handlers, opts Options) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	if opts.EnableMetrics {
		r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	}
	if opts.EnablePprof {
		r.GET("/debug/pprof/{profile:*}", pprofhandler.PprofHandler)
	}

	auth := opts.Auth
	if auth == nil {
		auth = passthrough
	}
	limit := opts.TrackLimiter
	if limit == nil {
		limit = passthrough
	}

	v1 := r.Group("/api/v1")
	v1.GET("/soup", auth(handlers.Soup.GetSoup))
	v1.POST("/track", auth(limit(handlers.Track.Track)))

	return r
}

func passthrough(next fasthttp.RequestHandler) fasthttp.RequestHandler { return next }
