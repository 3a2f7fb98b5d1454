// Package api exposes the map engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/engine"
)

// MapService generates aggregated maps. *engine.Engine satisfies it.
type MapService interface {
	RiskMap(ctx context.Context, req engine.RiskMapRequest) (*engine.AggregatedMap, error)
	ImpactMap(ctx context.Context, req engine.ImpactMapRequest) (*engine.AggregatedMap, error)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegistryCache reports and clears the registry cache.
// *dataset.CachedLookup satisfies it.
type RegistryCache interface {
	Stats() dataset.CacheStats
	Invalidate(ownerID string)
	Purge()
}

// Deps holds the router's collaborators. Store and Cache are optional.
type Deps struct {
	Maps        MapService
	Store       Pinger
	Cache       RegistryCache
	CORSOrigins []string
	// MaxRPS caps the request rate across all clients; <= 0 disables it.
	MaxRPS float64
}

// Handler serves map, health and registry endpoints.
type Handler struct {
	maps  MapService
	store Pinger
	cache RegistryCache
}

// NewRouter builds the HTTP routes and middleware stack.
func NewRouter(d Deps) http.Handler {
	h := &Handler{maps: d.Maps, store: d.Store, cache: d.Cache}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if d.MaxRPS > 0 {
			r.Use(rateLimit(d.MaxRPS))
		}
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/h3/map/risk", h.handleRiskMap)
		r.Get("/h3/map/impact", h.handleImpactMap)
		r.Get("/registry/stats", h.handleRegistryStats)
		r.Delete("/registry/cache", h.handlePurgeCache)
		r.Delete("/registry/cache/{ownerId}", h.handleInvalidateOwner)
	})

	return r
}
