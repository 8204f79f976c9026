package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"shuttletrack/internal/cache"
	"shuttletrack/internal/catalog"
	"shuttletrack/internal/domain"
)

// CatalogHandler serves the static schedule catalog: routes, stops and
// driver assignments. When a Redis cache is configured, list responses
// come from warmed entries and only fall through to the catalog on a
// miss.
type CatalogHandler struct {
	catalog *catalog.Catalog
	cache   *cache.RedisCache
	logger  *slog.Logger
}

func NewCatalogHandler(cat *catalog.Catalog, redisCache *cache.RedisCache, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: cat,
		cache:   redisCache,
		logger:  logger.With("handler", "catalog"),
	}
}

// GetCatalog serves the full catalog snapshot clients fetch on startup.
// The warmed payload is stored compressed; on a miss the snapshot is
// built from the catalog directly.
func (h *CatalogHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		var payload cache.CatalogPayload
		if hit, err := h.cache.GetJSONCompressed(r.Context(), cache.KeyCatalogFull, &payload); err == nil && hit {
			h.logger.Debug("GetCatalog served from cache")
			respondJSON(w, http.StatusOK, payload)
			return
		}
	}

	respondJSON(w, http.StatusOK, cache.CatalogPayload{
		Routes:      h.catalog.AllRoutes(),
		Stops:       h.catalog.AllStops(),
		GeneratedAt: time.Now(),
	})
}

type RoutesResponse struct {
	Routes     []domain.Route `json:"routes"`
	Count      int            `json:"count"`
	ServerTime time.Time      `json:"serverTime"`
}

func (h *CatalogHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var routes []domain.Route
	if h.cache != nil {
		if hit, err := h.cache.GetJSON(r.Context(), cache.KeyRoutes, &routes); err == nil && hit {
			h.logger.Debug("ListRoutes served from cache", "count", len(routes))
			respondJSON(w, http.StatusOK, RoutesResponse{
				Routes: routes, Count: len(routes), ServerTime: time.Now(),
			})
			return
		}
	}

	routes = h.catalog.AllRoutes()

	h.logger.Debug("ListRoutes response",
		"count", len(routes),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, RoutesResponse{
		Routes:     routes,
		Count:      len(routes),
		ServerTime: time.Now(),
	})
}

type RouteResponse struct {
	Route domain.Route  `json:"route"`
	Stops []domain.Stop `json:"stops"`
}

func (h *CatalogHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing route id")
		return
	}

	if h.cache != nil {
		var route domain.Route
		var stops []domain.Stop
		routeHit, err := h.cache.GetJSON(r.Context(), cache.KeyRoute(id), &route)
		if err == nil && routeHit {
			stopsHit, err := h.cache.GetJSON(r.Context(), cache.KeyRouteStops(id), &stops)
			if err == nil && stopsHit {
				h.logger.Debug("GetRoute served from cache", "route_id", id)
				respondJSON(w, http.StatusOK, RouteResponse{Route: route, Stops: stops})
				return
			}
		}
	}

	route, err := h.catalog.Route(id)
	if err != nil {
		if errors.Is(err, domain.ErrRouteNotFound) {
			respondError(w, http.StatusNotFound, "route not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load route")
		return
	}

	stops, err := h.catalog.StopsForRoute(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load route stops")
		return
	}

	respondJSON(w, http.StatusOK, RouteResponse{Route: route, Stops: stops})
}

type StopsResponse struct {
	Stops      []domain.Stop `json:"stops"`
	Count      int           `json:"count"`
	ServerTime time.Time     `json:"serverTime"`
}

func (h *CatalogHandler) ListStops(w http.ResponseWriter, r *http.Request) {
	var stops []domain.Stop
	if h.cache != nil {
		if hit, err := h.cache.GetJSON(r.Context(), cache.KeyStops, &stops); err == nil && hit {
			h.logger.Debug("ListStops served from cache", "count", len(stops))
			respondJSON(w, http.StatusOK, StopsResponse{
				Stops: stops, Count: len(stops), ServerTime: time.Now(),
			})
			return
		}
	}

	stops = h.catalog.AllStops()

	respondJSON(w, http.StatusOK, StopsResponse{
		Stops:      stops,
		Count:      len(stops),
		ServerTime: time.Now(),
	})
}

func (h *CatalogHandler) GetStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing stop id")
		return
	}

	if h.cache != nil {
		var stop domain.Stop
		if hit, err := h.cache.GetJSON(r.Context(), cache.KeyStop(id), &stop); err == nil && hit {
			h.logger.Debug("GetStop served from cache", "stop_id", id)
			respondJSON(w, http.StatusOK, stop)
			return
		}
	}

	stop, err := h.catalog.Stop(domain.StopID(id))
	if err != nil {
		if errors.Is(err, domain.ErrStopNotFound) {
			respondError(w, http.StatusNotFound, "stop not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load stop")
		return
	}

	respondJSON(w, http.StatusOK, stop)
}

type AssignmentsResponse struct {
	Assignments []domain.Assignment `json:"assignments"`
	Count       int                 `json:"count"`
	ServerTime  time.Time           `json:"serverTime"`
}

func (h *CatalogHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments := h.catalog.AllAssignments()

	respondJSON(w, http.StatusOK, AssignmentsResponse{
		Assignments: assignments,
		Count:       len(assignments),
		ServerTime:  time.Now(),
	})
}
