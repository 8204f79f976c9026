package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"shuttletrack/internal/catalog"
	"shuttletrack/internal/engine"
	"shuttletrack/internal/geofence"
	"shuttletrack/internal/progress"
	"shuttletrack/internal/sink"
)

const seedYAML = `
stops:
  - id: "1"
    title: Depot Gate
    latitude: 46.21076
    longitude: -47.09877
  - id: "2"
    title: Riverside Terminal
    latitude: 46.21343
    longitude: -47.10563
  - id: "3"
    title: Market Square
    latitude: 46.2102
    longitude: -47.10281
  - id: "4"
    title: Hillcrest Campus
    latitude: 46.2178
    longitude: -47.10836
routes:
  - id: "0"
    stops: ["1", "4", "3", "2"]
    rides:
      - id: "100"
        times: ["9:00am", "9:30am", "10:00am", "10:30am"]
drivers:
  - id: "0"
    name: Mark
assignments:
  - vehicle: "0"
    driver: "0"
    route: "0"
    ride: "100"
`

type testServer struct {
	mux      *http.ServeMux
	catalog  *catalog.Catalog
	progress *progress.Store
	sink     *sink.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cat := catalog.New()
	if err := catalog.Load(cat, []byte(seedYAML)); err != nil {
		t.Fatalf("loading seed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := progress.New()
	mem := sink.NewMemory()
	resolver := engine.New(cat, geofence.NewRadiusResolver(150), logger)
	tracker := engine.NewTracker(resolver, store, mem, logger)

	tracking := NewTrackingHandler(tracker, store, mem, logger)
	catalogHandler := NewCatalogHandler(cat, nil, logger)
	health := NewHealthHandler(cat, store)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/locations", tracking.SubmitLocations)
	mux.HandleFunc("GET /v1/vehicles", tracking.ListVehicles)
	mux.HandleFunc("GET /v1/vehicles/{id}/progress", tracking.GetVehicleProgress)
	mux.HandleFunc("GET /v1/arrivals", tracking.ListArrivals)
	mux.HandleFunc("GET /v1/skips", tracking.ListSkipErrors)
	mux.HandleFunc("GET /v1/catalog", catalogHandler.GetCatalog)
	mux.HandleFunc("GET /v1/routes", catalogHandler.ListRoutes)
	mux.HandleFunc("GET /v1/routes/{id}", catalogHandler.GetRoute)
	mux.HandleFunc("GET /v1/stops/{id}", catalogHandler.GetStop)
	mux.HandleFunc("GET /readyz", health.Readyz)

	return &testServer{mux: mux, catalog: cat, progress: store, sink: mem}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func locationBody(t *testing.T, vehicleID, timeStr string, lat, lon float64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"events": []map[string]interface{}{
			{"vehicle": vehicleID, "driver": "0", "latitude": lat, "longitude": lon, "time": timeStr},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestSubmitLocationsResolvesArrival(t *testing.T) {
	ts := newTestServer(t)

	// Just north of Depot Gate, well inside the fence.
	rec := ts.do(t, http.MethodPost, "/v1/locations", locationBody(t, "0", "8:59am", 46.21106, -47.09877))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp LocationsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 || resp.Results[0].Status != "resolved" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Results[0].Resolution.Arrival == nil || !resp.Results[0].Resolution.Arrival.OnTime {
		t.Errorf("expected on-time arrival, got %+v", resp.Results[0].Resolution)
	}
}

func TestSubmitLocationsUnmatched(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/locations", locationBody(t, "0", "9:00am", 50.0, -40.0))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp LocationsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Results[0].Status != "unmatched" {
		t.Errorf("status = %q, want unmatched", resp.Results[0].Status)
	}
}

func TestSubmitLocationsReportsPerEventErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/locations", locationBody(t, "ghost", "9:00am", 46.21106, -47.09877))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp LocationsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Results[0].Status != "error" || resp.Results[0].Error == "" {
		t.Errorf("expected error result, got %+v", resp.Results[0])
	}
}

func TestSubmitLocationsRejectsEmptyBatch(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/locations", []byte(`{"events":[]}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetVehicleProgress(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/v1/vehicles/0/progress", nil); rec.Code != http.StatusNotFound {
		t.Errorf("untracked vehicle status = %d, want 404", rec.Code)
	}

	ts.do(t, http.MethodPost, "/v1/locations", locationBody(t, "0", "8:59am", 46.21106, -47.09877))

	rec := ts.do(t, http.MethodGet, "/v1/vehicles/0/progress", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var prog struct {
		NextStopIndex int `json:"nextStopIndex"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &prog); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if prog.NextStopIndex != 1 {
		t.Errorf("nextStopIndex = %d, want 1", prog.NextStopIndex)
	}
}

func TestListArrivalsAndSkips(t *testing.T) {
	ts := newTestServer(t)

	// Arrive at the third stop on the route straight away: two skips.
	ts.do(t, http.MethodPost, "/v1/locations", locationBody(t, "0", "10:05am", 46.2105, -47.10281))

	rec := ts.do(t, http.MethodGet, "/v1/arrivals", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("arrivals status = %d", rec.Code)
	}
	var arrivals ArrivalsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &arrivals); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if arrivals.Count != 1 {
		t.Fatalf("arrivals count = %d, want 1", arrivals.Count)
	}

	rec = ts.do(t, http.MethodGet, "/v1/skips", nil)
	var skips SkipErrorsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &skips); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if skips.Count != 1 || skips.SkipErrors[0].StopsSkipped != 2 {
		t.Errorf("unexpected skips: %+v", skips)
	}
}

func TestListArrivalsRejectsBadLimit(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/v1/arrivals?limit=nope", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/routes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("routes status = %d", rec.Code)
	}
	var routes RoutesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &routes); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if routes.Count != 1 {
		t.Errorf("routes count = %d, want 1", routes.Count)
	}

	rec = ts.do(t, http.MethodGet, "/v1/routes/0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("route status = %d", rec.Code)
	}
	var route RouteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &route); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(route.Stops) != 4 {
		t.Errorf("route stops = %d, want 4", len(route.Stops))
	}

	if rec := ts.do(t, http.MethodGet, "/v1/routes/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing route status = %d, want 404", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/v1/stops/3", nil); rec.Code != http.StatusOK {
		t.Errorf("stop status = %d, want 200", rec.Code)
	}
}

func TestGetCatalogSnapshot(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/catalog", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var payload struct {
		Routes []json.RawMessage `json:"routes"`
		Stops  []json.RawMessage `json:"stops"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.Routes) != 1 || len(payload.Stops) != 4 {
		t.Errorf("snapshot has %d routes and %d stops, want 1 and 4", len(payload.Routes), len(payload.Stops))
	}
}

type stubProbe struct {
	ready bool
}

func (s *stubProbe) IsReady() bool { return s.ready }

func TestReadyzWaitsForEventSources(t *testing.T) {
	cat := catalog.New()
	if err := catalog.Load(cat, []byte(seedYAML)); err != nil {
		t.Fatalf("loading seed: %v", err)
	}

	probe := &stubProbe{}
	health := NewHealthHandler(cat, progress.New(), probe)

	rec := httptest.NewRecorder()
	health.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 while the event source is starting", rec.Code)
	}

	probe.ready = true
	rec = httptest.NewRecorder()
	health.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 once the event source is ready", rec.Code)
	}
}

func TestReadyzReflectsCatalogLoad(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ReadyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Ready {
		t.Error("expected ready with loaded catalog")
	}
}
