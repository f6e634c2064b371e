package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryanbastic/go-ladderwatch/internal/metrics"
)

// Deps are the collaborators served by the status API. Nil sources leave
// their routes unregistered.
type Deps struct {
	Status     StatusSource
	Watermarks WatermarkSource
	Frames     map[string]time.Duration
	Ladder     LadderSource
	Backends   map[string]Pinger
	Gatherer   prometheus.Gatherer
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(logger *slog.Logger, deps Deps) http.Handler {
	mux := chi.NewRouter()

	mux.Use(RequestID)
	mux.Use(Logging(logger))
	mux.Use(Recovery(logger))
	mux.Use(metrics.Metrics)

	health := NewHealthHandler(deps.Backends, logger)
	mux.Get("/v1/livez", health.Livez)
	mux.Get("/v1/readyz", health.Readyz)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle(metrics.ScrapePath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	config := huma.DefaultConfig("ladderwatch", "1.0.0")
	config.Info.Description = "Ladder freshness and synced data."
	api := humachi.New(mux, config)

	if deps.Status != nil {
		registerStatusRoutes(api, NewStatusHandler(deps.Status))
	}
	if deps.Watermarks != nil {
		registerWatermarkRoutes(api, NewWatermarkHandler(deps.Watermarks, deps.Frames))
	}
	if deps.Ladder != nil {
		registerLadderRoutes(api, NewLadderHandler(deps.Ladder, logger))
	}

	return mux
}
