package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"shuttletrack/internal/catalog"
	"shuttletrack/internal/progress"
)

// ReadinessProbe is implemented by event sources that need time before
// the service can usefully resolve reports (the replay ingestor).
type ReadinessProbe interface {
	IsReady() bool
}

type HealthHandler struct {
	catalog  *catalog.Catalog
	progress *progress.Store
	probes   []ReadinessProbe
}

func NewHealthHandler(cat *catalog.Catalog, store *progress.Store, probes ...ReadinessProbe) *HealthHandler {
	return &HealthHandler{
		catalog:  cat,
		progress: store,
		probes:   probes,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready           bool      `json:"ready"`
	TrackedVehicles int       `json:"trackedVehicles"`
	ServerTime      time.Time `json:"serverTime"`
}

// Readyz reports ready once the schedule catalog is loaded and every
// registered event source is up; without the catalog no geolocation
// report can resolve.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.catalog.GetStats().IsLoaded
	for _, probe := range h.probes {
		if !probe.IsReady() {
			ready = false
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:           ready,
		TrackedVehicles: h.progress.Count(),
		ServerTime:      time.Now(),
	})
}
