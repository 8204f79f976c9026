package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"shuttletrack/internal/domain"
	"shuttletrack/internal/progress"
	"shuttletrack/internal/sink"
)

type failingSink struct {
	calls int
}

func (f *failingSink) Append(_ context.Context, _ domain.Arrival, _ *domain.SkipError) (sink.Receipt, error) {
	f.calls++
	return sink.Receipt{}, domain.ErrSinkUnavailable
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []domain.Resolution
}

func (r *recordingNotifier) ResolutionCommitted(res domain.Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, res)
}

func newTestTracker(t *testing.T, s sink.Sink, opts ...TrackerOption) (*Tracker, *progress.Store) {
	t.Helper()
	store := progress.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := NewTracker(testEngine(t), store, s, logger, opts...)
	return tr, store
}

func TestProcessCommitsArrivalAndProgress(t *testing.T) {
	mem := sink.NewMemory()
	notifier := &recordingNotifier{}
	tr, store := newTestTracker(t, mem, WithNotifier(notifier))

	res, err := tr.Process(context.Background(), eventAt(testStops[0], "8:59am"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.Arrival.ID == 0 {
		t.Error("arrival id not assigned by sink")
	}
	committed, err := store.Get("0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if committed.NextStopIndex != 1 {
		t.Errorf("committed NextStopIndex = %d, want 1", committed.NextStopIndex)
	}
	if arrivals, _ := mem.Counts(); arrivals != 1 {
		t.Errorf("sink arrivals = %d, want 1", arrivals)
	}
	if len(notifier.got) != 1 {
		t.Errorf("notifier calls = %d, want 1", len(notifier.got))
	}
}

func TestProcessInitializesFirstSeenVehicle(t *testing.T) {
	tr, store := newTestTracker(t, sink.NewMemory())

	if _, err := store.Get("0"); !errors.Is(err, domain.ErrVehicleUnassigned) {
		t.Fatalf("precondition: %v", err)
	}

	if _, err := tr.Process(context.Background(), eventAt(testStops[0], "9:00am")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if _, err := store.Get("0"); err != nil {
		t.Errorf("progress not initialized: %v", err)
	}
}

func TestProcessRejectsUnassignedVehicleWithoutLeakingProgress(t *testing.T) {
	tr, store := newTestTracker(t, sink.NewMemory())

	_, err := tr.Process(context.Background(), domain.GeolocationEvent{
		VehicleID: "ghost", Lat: 46.2, Lon: -47.0, Time: "9:00am",
	})
	if !errors.Is(err, domain.ErrAssignmentNotFound) {
		t.Fatalf("error = %v, want ErrAssignmentNotFound", err)
	}

	if _, err := store.Get("ghost"); !errors.Is(err, domain.ErrVehicleUnassigned) {
		t.Error("progress entry leaked for unassignable vehicle")
	}
}

func TestProcessUnmatchedLeavesEverythingUntouched(t *testing.T) {
	mem := sink.NewMemory()
	tr, store := newTestTracker(t, mem)

	// Establish progress first.
	if _, err := tr.Process(context.Background(), eventAt(testStops[0], "9:00am")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	before, _ := store.Get("0")

	res, err := tr.Process(context.Background(), domain.GeolocationEvent{
		VehicleID: "0", DriverID: "0", Lat: 50.0, Lon: -45.0, Time: "9:10am",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Matched {
		t.Fatal("expected unmatched outcome")
	}

	after, _ := store.Get("0")
	if after != before {
		t.Errorf("progress changed on unmatched report: %+v -> %+v", before, after)
	}
	if arrivals, skips := mem.Counts(); arrivals != 1 || skips != 0 {
		t.Errorf("sink counts = (%d, %d), want (1, 0)", arrivals, skips)
	}
}

func TestProcessSinkFailureAbortsBeforeCommit(t *testing.T) {
	failing := &failingSink{}
	tr, store := newTestTracker(t, failing, WithAppendRetryBudget(200*time.Millisecond))

	before := store.Init("0")

	_, err := tr.Process(context.Background(), eventAt(testStops[0], "9:00am"))
	if !errors.Is(err, domain.ErrSinkUnavailable) {
		t.Fatalf("error = %v, want ErrSinkUnavailable", err)
	}
	if failing.calls < 2 {
		t.Errorf("append attempted %d times, want retries before giving up", failing.calls)
	}

	after, err := store.Get("0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after != before {
		t.Errorf("progress committed despite sink failure: %+v", after)
	}
}

// resettingSink appends to the wrapped memory sink and wipes the
// vehicle's progress on one chosen call, forcing the swap after that
// append to fail.
type resettingSink struct {
	mem     *sink.Memory
	store   *progress.Store
	vehicle string
	resetAt int
	calls   int
}

func (r *resettingSink) Append(ctx context.Context, a domain.Arrival, s *domain.SkipError) (sink.Receipt, error) {
	receipt, err := r.mem.Append(ctx, a, s)
	r.calls++
	if r.calls == r.resetAt {
		r.store.Reset(r.vehicle)
	}
	return receipt, err
}

func TestLostSwapReusesAppendedRecords(t *testing.T) {
	store := progress.New()
	mem := sink.NewMemory()
	rs := &resettingSink{mem: mem, store: store, vehicle: "0", resetAt: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := NewTracker(testEngine(t), store, rs, logger)

	// The reset lands between the append and the swap; the retry
	// resolves to the same records and must not append them again.
	res, err := tr.Process(context.Background(), eventAt(testStops[0], "8:59am"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if arrivals, _ := mem.Counts(); arrivals != 1 {
		t.Errorf("sink arrivals = %d, want 1 (no duplicate append)", arrivals)
	}
	if res.Arrival.ID != 1 {
		t.Errorf("arrival id = %d, want the originally appended 1", res.Arrival.ID)
	}
	committed, err := store.Get("0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if committed.NextStopIndex != 1 {
		t.Errorf("committed NextStopIndex = %d, want 1", committed.NextStopIndex)
	}
}

func TestLostSwapAppendsAgainWhenResolutionChanges(t *testing.T) {
	store := progress.New()
	mem := sink.NewMemory()
	rs := &resettingSink{mem: mem, store: store, vehicle: "0", resetAt: 3}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := NewTracker(testEngine(t), store, rs, logger)
	ctx := context.Background()

	// Advance to the third stop first.
	if _, err := tr.Process(ctx, eventAt(testStops[0], "9:00am")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := tr.Process(ctx, eventAt(testStops[3], "9:30am")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// The reset after the third append rewinds the expected stop to 0,
	// so the retried resolution carries a skip record the first one did
	// not; the fresh records get appended and the stale pair stays
	// behind as superseded.
	res, err := tr.Process(ctx, eventAt(testStops[2], "10:05am"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	arrivals, skips := mem.Counts()
	if arrivals != 4 || skips != 1 {
		t.Errorf("sink counts = (%d, %d), want (4, 1)", arrivals, skips)
	}
	if res.Skip == nil || res.Skip.StopsSkipped != 2 {
		t.Errorf("retried resolution skip = %+v, want 2 stops skipped", res.Skip)
	}
	if res.Arrival.ID != 4 {
		t.Errorf("arrival id = %d, want the superseding 4", res.Arrival.ID)
	}
}

func TestProcessSerializesPerVehicle(t *testing.T) {
	mem := sink.NewMemory()
	tr, store := newTestTracker(t, mem)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = tr.Process(context.Background(), eventAt(testStops[0], "9:00am"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Process[%d]: %v", i, err)
		}
	}

	// Both events resolved against each other's committed state, never
	// the same stale snapshot: two commits on top of the initial entry.
	committed, _ := store.Get("0")
	if committed.Version != 3 {
		t.Errorf("version = %d, want 3 (init + two commits)", committed.Version)
	}
	if arrivals, _ := mem.Counts(); arrivals != 2 {
		t.Errorf("sink arrivals = %d, want 2", arrivals)
	}
}

func TestProcessBatchReportsPerEventResults(t *testing.T) {
	tr, _ := newTestTracker(t, sink.NewMemory())

	results := tr.ProcessBatch(context.Background(), []domain.GeolocationEvent{
		eventAt(testStops[0], "9:00am"),
		{VehicleID: "ghost", Lat: 46.2, Lon: -47.0, Time: "9:00am"},
	})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err != nil || results[0].Resolution == nil {
		t.Errorf("first event should resolve: %+v", results[0].Err)
	}
	if !errors.Is(results[1].Err, domain.ErrAssignmentNotFound) {
		t.Errorf("second event error = %v, want ErrAssignmentNotFound", results[1].Err)
	}
}
