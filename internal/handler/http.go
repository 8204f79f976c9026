package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"shuttletrack/internal/domain"
	"shuttletrack/internal/engine"
	"shuttletrack/internal/progress"
)

const maxBatchSize = 1000

// RecordReader is the read side of the record sink.
type RecordReader interface {
	Arrivals(limit int) []domain.Arrival
	SkipErrors(limit int) []domain.SkipError
	Counts() (arrivals, skipErrors int)
}

// TrackingHandler serves the location ingest endpoint and the tracking
// read API on top of it.
type TrackingHandler struct {
	tracker  *engine.Tracker
	progress *progress.Store
	records  RecordReader
	logger   *slog.Logger
}

func NewTrackingHandler(tracker *engine.Tracker, store *progress.Store, records RecordReader, logger *slog.Logger) *TrackingHandler {
	return &TrackingHandler{
		tracker:  tracker,
		progress: store,
		records:  records,
		logger:   logger.With("handler", "tracking"),
	}
}

type LocationsRequest struct {
	Events []domain.GeolocationEvent `json:"events"`
}

type LocationResult struct {
	VehicleID  string             `json:"vehicleId"`
	Status     string             `json:"status"` // resolved | unmatched | error
	Error      string             `json:"error,omitempty"`
	Resolution *domain.Resolution `json:"resolution,omitempty"`
}

type LocationsResponse struct {
	Results    []LocationResult `json:"results"`
	Count      int              `json:"count"`
	ServerTime time.Time        `json:"serverTime"`
}

func (h *TrackingHandler) SubmitLocations(w http.ResponseWriter, r *http.Request) {
	var req LocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "events must not be empty")
		return
	}
	if len(req.Events) > maxBatchSize {
		respondError(w, http.StatusRequestEntityTooLarge, "batch exceeds maximum size")
		return
	}

	results := h.tracker.ProcessBatch(r.Context(), req.Events)

	out := make([]LocationResult, 0, len(results))
	for _, res := range results {
		entry := LocationResult{VehicleID: res.Event.VehicleID}
		switch {
		case res.Err != nil:
			entry.Status = "error"
			entry.Error = res.Err.Error()
		case !res.Resolution.Matched:
			entry.Status = "unmatched"
		default:
			entry.Status = "resolved"
			entry.Resolution = res.Resolution
		}
		out = append(out, entry)
	}

	respondJSON(w, http.StatusOK, LocationsResponse{
		Results:    out,
		Count:      len(out),
		ServerTime: time.Now(),
	})
}

type VehiclesResponse struct {
	Vehicles   []domain.VehicleProgress `json:"vehicles"`
	Count      int                      `json:"count"`
	ServerTime time.Time                `json:"serverTime"`
}

func (h *TrackingHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles := h.progress.Snapshot()

	respondJSON(w, http.StatusOK, VehiclesResponse{
		Vehicles:   vehicles,
		Count:      len(vehicles),
		ServerTime: time.Now(),
	})
}

func (h *TrackingHandler) GetVehicleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing vehicle id")
		return
	}

	prog, err := h.progress.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrVehicleUnassigned) {
			respondError(w, http.StatusNotFound, "vehicle not tracked")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}

	respondJSON(w, http.StatusOK, prog)
}

type ArrivalsResponse struct {
	Arrivals   []domain.Arrival `json:"arrivals"`
	Count      int              `json:"count"`
	ServerTime time.Time        `json:"serverTime"`
}

func (h *TrackingHandler) ListArrivals(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	arrivals := h.records.Arrivals(limit)

	respondJSON(w, http.StatusOK, ArrivalsResponse{
		Arrivals:   arrivals,
		Count:      len(arrivals),
		ServerTime: time.Now(),
	})
}

type SkipErrorsResponse struct {
	SkipErrors []domain.SkipError `json:"skipErrors"`
	Count      int                `json:"count"`
	ServerTime time.Time          `json:"serverTime"`
}

func (h *TrackingHandler) ListSkipErrors(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	skips := h.records.SkipErrors(limit)

	respondJSON(w, http.StatusOK, SkipErrorsResponse{
		SkipErrors: skips,
		Count:      len(skips),
		ServerTime: time.Now(),
	})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 100, true
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		respondError(w, http.StatusBadRequest, "invalid limit parameter")
		return 0, false
	}
	return limit, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
