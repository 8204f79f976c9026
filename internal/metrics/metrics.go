package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry with the service's instrumentation.
type Collector struct {
	reg *prometheus.Registry

	Resolutions  *prometheus.CounterVec // outcome label: resolved|unmatched|conflict|assignment_error|time_parse_error|sink_error|error
	ArrivalsOn   prometheus.Counter
	ArrivalsLate prometheus.Counter
	StopsSkipped prometheus.Counter
	SinkErrors   prometheus.Counter

	ResolveDuration prometheus.Histogram

	TrackedVehicles prometheus.GaugeFunc
	WSClients       prometheus.GaugeFunc
}

func NewCollector(trackedVehicles, wsClients func() int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shuttletrack_resolutions_total",
			Help: "Geolocation reports resolved, by outcome.",
		}, []string{"outcome"}),
		ArrivalsOn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttletrack_arrivals_on_time_total",
			Help: "Arrivals at or before the scheduled time.",
		}),
		ArrivalsLate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttletrack_arrivals_late_total",
			Help: "Arrivals after the scheduled time.",
		}),
		StopsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttletrack_stops_skipped_total",
			Help: "Stops skipped across all skip errors.",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttletrack_sink_append_errors_total",
			Help: "Failed record sink appends.",
		}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shuttletrack_resolve_duration_seconds",
			Help:    "End-to-end duration of one event resolution.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		TrackedVehicles: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "shuttletrack_tracked_vehicles",
			Help: "Vehicles with progress state.",
		}, func() float64 { return float64(trackedVehicles()) }),
		WSClients: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "shuttletrack_ws_clients",
			Help: "Connected websocket clients.",
		}, func() float64 { return float64(wsClients()) }),
	}

	reg.MustRegister(
		c.Resolutions,
		c.ArrivalsOn, c.ArrivalsLate,
		c.StopsSkipped, c.SinkErrors,
		c.ResolveDuration,
		c.TrackedVehicles, c.WSClients,
	)

	return c
}

// ObserveResolution implements the tracker's metrics hook.
func (c *Collector) ObserveResolution(outcome string, d time.Duration) {
	c.Resolutions.WithLabelValues(outcome).Inc()
	c.ResolveDuration.Observe(d.Seconds())
}

func (c *Collector) RecordArrival(onTime bool, skipped int) {
	if onTime {
		c.ArrivalsOn.Inc()
	} else {
		c.ArrivalsLate.Inc()
	}
	if skipped > 0 {
		c.StopsSkipped.Add(float64(skipped))
	}
}

func (c *Collector) IncSinkError() {
	c.SinkErrors.Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on its own listener.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
