package cache

import (
	"context"
	"log/slog"
	"time"

	"shuttletrack/internal/catalog"
	"shuttletrack/internal/domain"
)

// CatalogWarmer pre-computes the schedule catalog's read payloads into
// Redis so the HTTP layer can serve them without touching the catalog
// locks. The catalog only changes on reload, so warming happens once at
// startup and again whenever Refresh is called.
type CatalogWarmer struct {
	cache   *RedisCache
	catalog *catalog.Catalog
	ttl     time.Duration
	logger  *slog.Logger
}

func NewCatalogWarmer(cache *RedisCache, cat *catalog.Catalog, ttl time.Duration, logger *slog.Logger) *CatalogWarmer {
	return &CatalogWarmer{
		cache:   cache,
		catalog: cat,
		ttl:     ttl,
		logger:  logger.With("component", "catalog_warmer"),
	}
}

func (w *CatalogWarmer) WarmAll(ctx context.Context) error {
	start := time.Now()
	w.logger.Info("starting catalog warming")

	if err := w.warmCatalog(ctx); err != nil {
		w.logger.Error("failed to warm catalog payload", "error", err)
	}
	if err := w.warmRoutes(ctx); err != nil {
		w.logger.Error("failed to warm routes", "error", err)
	}
	if err := w.warmStops(ctx); err != nil {
		w.logger.Error("failed to warm stops", "error", err)
	}

	w.logger.Info("catalog warming completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// CatalogPayload is the full snapshot clients fetch on startup.
type CatalogPayload struct {
	Routes      []domain.Route `json:"routes"`
	Stops       []domain.Stop  `json:"stops"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

func (w *CatalogWarmer) warmCatalog(ctx context.Context) error {
	payload := CatalogPayload{
		Routes:      w.catalog.AllRoutes(),
		Stops:       w.catalog.AllStops(),
		GeneratedAt: time.Now(),
	}
	return w.cache.SetJSONCompressed(ctx, KeyCatalogFull, payload, w.ttl)
}

func (w *CatalogWarmer) warmRoutes(ctx context.Context) error {
	routes := w.catalog.AllRoutes()

	if err := w.cache.SetJSON(ctx, KeyRoutes, routes, w.ttl); err != nil {
		return err
	}

	warmed := 0
	for _, route := range routes {
		if err := w.cache.SetJSON(ctx, KeyRoute(route.ID), route, w.ttl); err != nil {
			w.logger.Debug("failed to cache route", "route_id", route.ID, "error", err)
			continue
		}
		stops, err := w.catalog.StopsForRoute(route.ID)
		if err == nil {
			if err := w.cache.SetJSON(ctx, KeyRouteStops(route.ID), stops, w.ttl); err != nil {
				w.logger.Debug("failed to cache route stops", "route_id", route.ID, "error", err)
			}
		}
		warmed++
	}

	w.logger.Info("warmed routes", "count", warmed)
	return nil
}

func (w *CatalogWarmer) warmStops(ctx context.Context) error {
	stops := w.catalog.AllStops()

	if err := w.cache.SetJSON(ctx, KeyStops, stops, w.ttl); err != nil {
		return err
	}

	warmed := 0
	for _, stop := range stops {
		if err := w.cache.SetJSON(ctx, KeyStop(string(stop.ID)), stop, w.ttl); err != nil {
			w.logger.Debug("failed to cache stop", "stop_id", stop.ID, "error", err)
			continue
		}
		warmed++
	}

	w.logger.Info("warmed stops", "count", warmed)
	return nil
}

// Refresh drops the warmed entries and rebuilds them, for use after a
// catalog reload.
func (w *CatalogWarmer) Refresh(ctx context.Context) error {
	if err := w.cache.DeletePattern(ctx, "*"); err != nil {
		w.logger.Warn("failed to clear warmed entries", "error", err)
	}
	return w.WarmAll(ctx)
}
