package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"shuttletrack/internal/catalog"
	"shuttletrack/internal/progress"
)

// Stats tracks server-wide counters cheap enough to bump on every
// request. The heavier instrumentation lives in the metrics collector.
type Stats struct {
	startTime        time.Time
	requestCount     atomic.Int64
	wsConnections    atomic.Int64
	wsMessagesIn     atomic.Int64
	wsMessagesOut    atomic.Int64
	rateLimitBlocked atomic.Int64
}

// Global stats instance
var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()         { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections()    { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections()    { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()     { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut()    { s.wsMessagesOut.Add(1) }
func (s *Stats) IncRateLimitBlocked() { s.rateLimitBlocked.Add(1) }

func (s *Stats) WSConnections() int { return int(s.wsConnections.Load()) }

type StatsHandler struct {
	catalog  *catalog.Catalog
	progress *progress.Store
	records  RecordReader
}

func NewStatsHandler(cat *catalog.Catalog, store *progress.Store, records RecordReader) *StatsHandler {
	return &StatsHandler{
		catalog:  cat,
		progress: store,
		records:  records,
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Catalog   CatalogStatsResponse   `json:"catalog"`
	Tracking  TrackingStatsResponse  `json:"tracking"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
	Version       string    `json:"version"`
}

type CatalogStatsResponse struct {
	Routes     int       `json:"routes"`
	Stops      int       `json:"stops"`
	Drivers    int       `json:"drivers"`
	IsLoaded   bool      `json:"is_loaded"`
	LastUpdate time.Time `json:"last_update"`
}

type TrackingStatsResponse struct {
	TrackedVehicles int `json:"tracked_vehicles"`
	Arrivals        int `json:"arrivals"`
	SkipErrors      int `json:"skip_errors"`
}

type WebSocketStatsResponse struct {
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	uptime := time.Since(ServerStats.startTime)

	catalogStats := h.catalog.GetStats()
	arrivals, skipErrors := h.records.Counts()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			RateLimited:   ServerStats.rateLimitBlocked.Load(),
			Version:       "1.0.0",
		},
		Catalog: CatalogStatsResponse{
			Routes:     catalogStats.RoutesCount,
			Stops:      catalogStats.StopsCount,
			Drivers:    catalogStats.DriversCount,
			IsLoaded:   catalogStats.IsLoaded,
			LastUpdate: catalogStats.LastUpdate,
		},
		Tracking: TrackingStatsResponse{
			TrackedVehicles: h.progress.Count(),
			Arrivals:        arrivals,
			SkipErrors:      skipErrors,
		},
		WebSocket: WebSocketStatsResponse{
			Connections: ServerStats.wsConnections.Load(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
