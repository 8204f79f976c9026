package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"shuttletrack/internal/cache"
	"shuttletrack/internal/catalog"
	"shuttletrack/internal/config"
	"shuttletrack/internal/engine"
	"shuttletrack/internal/geofence"
	"shuttletrack/internal/handler"
	"shuttletrack/internal/hub"
	"shuttletrack/internal/ingestor"
	"shuttletrack/internal/metrics"
	"shuttletrack/internal/middleware"
	"shuttletrack/internal/progress"
	"shuttletrack/internal/publisher"
	"shuttletrack/internal/sink"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting shuttletrack server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"catalog_path", cfg.CatalogPath,
		"redis_enabled", cfg.RedisEnabled,
		"nats_enabled", cfg.NATSEnabled,
	)

	scheduleCatalog := catalog.New()
	if err := catalog.LoadFile(scheduleCatalog, cfg.CatalogPath); err != nil {
		logger.Error("failed to load schedule catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}
	stats := scheduleCatalog.GetStats()
	logger.Info("schedule catalog loaded",
		"routes", stats.RoutesCount,
		"stops", stats.StopsCount,
		"drivers", stats.DriversCount,
	)

	progressStore := progress.New()
	fence := geofence.NewRadiusResolver(cfg.GeofenceDefaultRadiusM)
	resolver := engine.New(scheduleCatalog, fence, logger)

	memorySink := sink.NewMemory()
	var recordSink sink.Sink = memorySink

	var redisSink *sink.Redis
	var redisCache *cache.RedisCache
	if cfg.RedisEnabled {
		redisSink, err = sink.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Error("failed to connect redis sink", "error", err)
			os.Exit(1)
		}
		defer redisSink.Close()
		recordSink = sink.NewTee(redisSink, memorySink)

		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Error("failed to connect redis cache", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
	}

	wsHub := hub.NewHub(logger)

	trackerOpts := []engine.TrackerOption{
		engine.WithNotifier(wsHub),
		engine.WithAppendRetryBudget(cfg.SinkAppendRetryBudget),
	}

	var natsPublisher *publisher.NATS
	if cfg.NATSEnabled {
		natsPublisher, err = publisher.NewNATS(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect nats", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		trackerOpts = append(trackerOpts, engine.WithNotifier(natsPublisher))
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector(progressStore.Count, handler.ServerStats.WSConnections)
		trackerOpts = append(trackerOpts, engine.WithMetrics(collector))
	}

	tracker := engine.NewTracker(resolver, progressStore, recordSink, logger, trackerOpts...)

	var replay *ingestor.Replay
	if cfg.ReplayFile != "" {
		replay = ingestor.NewReplay(cfg.ReplayFile, cfg.ReplayInterval, tracker, logger)
	}

	var readinessProbes []handler.ReadinessProbe
	if replay != nil {
		readinessProbes = append(readinessProbes, replay)
	}

	trackingHandler := handler.NewTrackingHandler(tracker, progressStore, memorySink, logger)
	catalogHandler := handler.NewCatalogHandler(scheduleCatalog, redisCache, logger)
	wsHandler := handler.NewWSHandler(wsHub, scheduleCatalog, progressStore, logger)
	healthHandler := handler.NewHealthHandler(scheduleCatalog, progressStore, readinessProbes...)
	statsHandler := handler.NewStatsHandler(scheduleCatalog, progressStore, memorySink)

	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimitPerWindow,
		cfg.RateLimitWindow,
		cfg.RateLimitWhitelist,
		handler.ServerStats.IncRateLimitBlocked,
		logger,
	)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/locations", trackingHandler.SubmitLocations)
	mux.HandleFunc("GET /v1/vehicles", trackingHandler.ListVehicles)
	mux.HandleFunc("GET /v1/vehicles/{id}/progress", trackingHandler.GetVehicleProgress)
	mux.HandleFunc("GET /v1/arrivals", trackingHandler.ListArrivals)
	mux.HandleFunc("GET /v1/skips", trackingHandler.ListSkipErrors)
	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)

	mux.HandleFunc("GET /v1/catalog", catalogHandler.GetCatalog)
	mux.HandleFunc("GET /v1/routes", catalogHandler.ListRoutes)
	mux.HandleFunc("GET /v1/routes/{id}", catalogHandler.GetRoute)
	mux.HandleFunc("GET /v1/stops", catalogHandler.ListStops)
	mux.HandleFunc("GET /v1/stops/{id}", catalogHandler.GetStop)
	mux.HandleFunc("GET /v1/assignments", catalogHandler.ListAssignments)
	mux.HandleFunc("GET /v1/stats", statsHandler.GetStats)

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	root := handler.CountingMiddleware(
		handler.CORSMiddleware(
			handler.GzipMiddleware(
				rateLimiter.Middleware(mux),
			),
		),
	)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go wsHub.Run(ctx)
	go rateLimiter.Run(ctx)

	var warmer *cache.CatalogWarmer
	if redisCache != nil {
		warmer = cache.NewCatalogWarmer(redisCache, scheduleCatalog, cfg.CacheTTL, logger)
		if cfg.CacheWarmOnStart {
			go func() {
				if err := warmer.WarmAll(ctx); err != nil {
					logger.Error("catalog warming failed", "error", err)
				}
			}()
		}
	}

	// SIGHUP reloads the schedule seed and rebuilds the warmed cache.
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(reloadChan, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloadChan:
				logger.Info("reloading schedule catalog", "path", cfg.CatalogPath)
				if err := catalog.LoadFile(scheduleCatalog, cfg.CatalogPath); err != nil {
					logger.Error("catalog reload failed", "error", err)
					continue
				}
				if warmer != nil {
					if err := warmer.Refresh(ctx); err != nil {
						logger.Error("catalog cache refresh failed", "error", err)
					}
				}
			}
		}
	}()

	var metricsSrv *http.Server
	if collector != nil {
		metricsSrv = collector.Serve(cfg.MetricsAddr, logger)
	}

	if replay != nil {
		go func() {
			if err := replay.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("replay failed", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
