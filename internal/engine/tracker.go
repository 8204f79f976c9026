package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"shuttletrack/internal/domain"
	"shuttletrack/internal/progress"
	"shuttletrack/internal/sink"
)

// Notifier receives committed resolutions for fan-out (websocket hub,
// message bus). Called after the records are appended and the progress
// swap has landed.
type Notifier interface {
	ResolutionCommitted(res domain.Resolution)
}

// Metrics is the subset of the metrics collector the tracker reports to.
type Metrics interface {
	ObserveResolution(outcome string, d time.Duration)
	RecordArrival(onTime bool, skipped int)
	IncSinkError()
}

// Tracker owns the stateful half of resolution: per-vehicle
// serialization, the progress snapshot/commit cycle, and the sink
// append. Resolution itself stays in Engine.
//
// Commit order per event: resolve, append records, swap progress. A sink
// outage therefore aborts before any progress commit, so no committed
// progress ever lacks its arrival record, and the event can simply be
// retried by the transport. When a swap is lost to an out-of-band reset
// the retry reuses the already-appended records if the fresh resolution
// is identical, so the log gains no duplicates.
type Tracker struct {
	engine  *Engine
	store   *progress.Store
	sink    sink.Sink
	logger  *slog.Logger
	metrics Metrics

	notifiers []Notifier

	appendBudget time.Duration
	swapRetries  int

	vehicleLocks sync.Map // vehicle id -> *sync.Mutex
}

type TrackerOption func(*Tracker)

func WithNotifier(n Notifier) TrackerOption {
	return func(t *Tracker) {
		if n != nil {
			t.notifiers = append(t.notifiers, n)
		}
	}
}

func WithMetrics(m Metrics) TrackerOption {
	return func(t *Tracker) { t.metrics = m }
}

func WithAppendRetryBudget(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.appendBudget = d }
}

func NewTracker(engine *Engine, store *progress.Store, s sink.Sink, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		engine:       engine,
		store:        store,
		sink:         s,
		logger:       logger.With("component", "tracker"),
		appendBudget: 5 * time.Second,
		swapRetries:  3,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// EventResult pairs one submitted event with its outcome.
type EventResult struct {
	Event      domain.GeolocationEvent `json:"event"`
	Resolution *domain.Resolution      `json:"resolution,omitempty"`
	Err        error                   `json:"-"`
}

// Process resolves one geolocation event end to end. Events for the
// same vehicle are serialized; events for different vehicles run
// concurrently.
func (t *Tracker) Process(ctx context.Context, ev domain.GeolocationEvent) (domain.Resolution, error) {
	start := time.Now()

	mu := t.lockFor(ev.VehicleID)
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	var pending *appendedRecords
	for attempt := 0; attempt < t.swapRetries; attempt++ {
		res, committed, err := t.resolveOnce(ctx, ev, &pending)
		if err != nil {
			t.observe(outcomeFor(err), start)
			return domain.Resolution{}, err
		}
		if !res.Matched {
			t.observe("unmatched", start)
			return res, nil
		}
		if committed {
			t.observe("resolved", start)
			if t.metrics != nil {
				t.metrics.RecordArrival(res.Arrival.OnTime, res.StopsSkipped)
			}
			for _, n := range t.notifiers {
				n.ResolutionCommitted(res)
			}
			return res, nil
		}
		// Progress changed underneath us (assignment reset mid-flight);
		// re-read and resolve against the fresh state.
		lastErr = fmt.Errorf("%w: vehicle %s attempt %d", domain.ErrUpdateConflict, ev.VehicleID, attempt+1)
		t.logger.Warn("progress swap lost, retrying resolution", "vehicle", ev.VehicleID, "attempt", attempt+1)
	}

	t.observe("conflict", start)
	return domain.Resolution{}, lastErr
}

// appendedRecords remembers a sink append whose progress swap was lost,
// so a retry against fresh state can reuse the records instead of
// appending duplicates when the resolution comes out the same.
type appendedRecords struct {
	receipt sink.Receipt
	res     domain.Resolution
}

func (t *Tracker) resolveOnce(ctx context.Context, ev domain.GeolocationEvent, pending **appendedRecords) (domain.Resolution, bool, error) {
	snapshot, err := t.store.Get(ev.VehicleID)
	created := false
	if errors.Is(err, domain.ErrVehicleUnassigned) {
		snapshot = t.store.Init(ev.VehicleID)
		created = true
	} else if err != nil {
		return domain.Resolution{}, false, err
	}

	res, err := t.engine.Resolve(ev, snapshot)
	if err != nil {
		if created {
			// Don't keep progress for a vehicle that turned out to have
			// no usable assignment.
			t.store.Reset(ev.VehicleID)
		}
		return domain.Resolution{}, false, err
	}
	if !res.Matched {
		return res, false, nil
	}

	var receipt sink.Receipt
	if prior := *pending; prior != nil && sameRecords(prior.res, res) {
		receipt = prior.receipt
	} else {
		receipt, err = t.appendWithRetry(ctx, *res.Arrival, res.Skip)
		if err != nil {
			if t.metrics != nil {
				t.metrics.IncSinkError()
			}
			return domain.Resolution{}, false, err
		}
		if prior != nil {
			// The earlier records no longer describe this resolution;
			// they stay in the log as superseded.
			t.logger.Warn("resolution changed after lost swap, earlier records superseded",
				"vehicle", ev.VehicleID, "superseded_arrival_id", prior.receipt.ArrivalID)
		}
		*pending = &appendedRecords{receipt: receipt, res: res}
	}
	res.Arrival.ID = receipt.ArrivalID
	if res.Skip != nil {
		res.Skip.ID = receipt.SkipErrorID
	}

	if !t.store.CompareAndSwap(snapshot, res.Updated) {
		return res, false, nil
	}

	committed, err := t.store.Get(ev.VehicleID)
	if err == nil {
		res.Updated = committed
	}
	return res, true, nil
}

// ProcessBatch resolves a slice of events in order, returning one result
// per event. A failing event does not stop the rest of the batch.
func (t *Tracker) ProcessBatch(ctx context.Context, events []domain.GeolocationEvent) []EventResult {
	results := make([]EventResult, 0, len(events))
	for _, ev := range events {
		res, err := t.Process(ctx, ev)
		r := EventResult{Event: ev, Err: err}
		if err == nil {
			resolution := res
			r.Resolution = &resolution
		}
		results = append(results, r)
	}
	return results
}

func (t *Tracker) appendWithRetry(ctx context.Context, arrival domain.Arrival, skip *domain.SkipError) (sink.Receipt, error) {
	var receipt sink.Receipt

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = t.appendBudget

	operation := func() error {
		var err error
		receipt, err = t.sink.Append(ctx, arrival, skip)
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if errors.Is(err, domain.ErrSinkUnavailable) {
			return sink.Receipt{}, err
		}
		return sink.Receipt{}, fmt.Errorf("%w: %v", domain.ErrSinkUnavailable, err)
	}
	return receipt, nil
}

// sameRecords reports whether two resolutions would produce identical
// sink records, ignoring sink-assigned ids and timestamps.
func sameRecords(a, b domain.Resolution) bool {
	if a.Arrival == nil || b.Arrival == nil {
		return false
	}
	x, y := *a.Arrival, *b.Arrival
	x.ID, y.ID = 0, 0
	x.RecordedAt, y.RecordedAt = time.Time{}, time.Time{}
	if x != y {
		return false
	}

	if (a.Skip == nil) != (b.Skip == nil) {
		return false
	}
	if a.Skip != nil {
		s, u := *a.Skip, *b.Skip
		s.ID, u.ID = 0, 0
		s.RecordedAt, u.RecordedAt = time.Time{}, time.Time{}
		if s != u {
			return false
		}
	}
	return true
}

func (t *Tracker) lockFor(vehicleID string) *sync.Mutex {
	if mu, ok := t.vehicleLocks.Load(vehicleID); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := t.vehicleLocks.LoadOrStore(vehicleID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (t *Tracker) observe(outcome string, start time.Time) {
	if t.metrics != nil {
		t.metrics.ObserveResolution(outcome, time.Since(start))
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrAssignmentNotFound), errors.Is(err, domain.ErrAssignmentAmbiguous):
		return "assignment_error"
	case errors.Is(err, domain.ErrTimeParse):
		return "time_parse_error"
	case errors.Is(err, domain.ErrSinkUnavailable):
		return "sink_error"
	default:
		return "error"
	}
}
