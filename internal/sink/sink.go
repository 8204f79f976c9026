package sink

import (
	"context"
	"sync"
	"time"

	"shuttletrack/internal/domain"
)

// Receipt reports the sequence ids assigned to one resolution's records.
// SkipErrorID is zero when no skip error was part of the append.
type Receipt struct {
	ArrivalID   uint64
	SkipErrorID uint64
}

// Sink is the append-only destination for resolution records. The
// arrival and its optional skip error land atomically: no reader sees
// one without the other. Ids are strictly increasing per record type.
type Sink interface {
	Append(ctx context.Context, arrival domain.Arrival, skip *domain.SkipError) (Receipt, error)
}

// Memory is the in-process sink: mutex-guarded append-only slices with
// monotonic counters. It backs the read API and serves as the default
// when no durable sink is configured.
type Memory struct {
	mu         sync.RWMutex
	arrivals   []domain.Arrival
	skipErrors []domain.SkipError
	arrivalSeq uint64
	skipSeq    uint64
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, arrival domain.Arrival, skip *domain.SkipError) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	m.arrivalSeq++
	arrival.ID = m.arrivalSeq
	if arrival.RecordedAt.IsZero() {
		arrival.RecordedAt = now
	}
	m.arrivals = append(m.arrivals, arrival)

	receipt := Receipt{ArrivalID: arrival.ID}

	if skip != nil {
		m.skipSeq++
		record := *skip
		record.ID = m.skipSeq
		if record.RecordedAt.IsZero() {
			record.RecordedAt = now
		}
		m.skipErrors = append(m.skipErrors, record)
		receipt.SkipErrorID = record.ID
	}

	return receipt, nil
}

// Mirror stores records whose ids were already assigned elsewhere,
// keeping the local counters at least as high as the mirrored ids.
func (m *Memory) Mirror(arrival domain.Arrival, skip *domain.SkipError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	if arrival.RecordedAt.IsZero() {
		arrival.RecordedAt = now
	}
	m.arrivals = append(m.arrivals, arrival)
	if arrival.ID > m.arrivalSeq {
		m.arrivalSeq = arrival.ID
	}

	if skip != nil {
		record := *skip
		if record.RecordedAt.IsZero() {
			record.RecordedAt = now
		}
		m.skipErrors = append(m.skipErrors, record)
		if record.ID > m.skipSeq {
			m.skipSeq = record.ID
		}
	}
}

// Arrivals returns the most recent arrivals, newest last. limit <= 0
// returns everything.
func (m *Memory) Arrivals(limit int) []domain.Arrival {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if limit > 0 && len(m.arrivals) > limit {
		start = len(m.arrivals) - limit
	}
	return append([]domain.Arrival(nil), m.arrivals[start:]...)
}

func (m *Memory) SkipErrors(limit int) []domain.SkipError {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if limit > 0 && len(m.skipErrors) > limit {
		start = len(m.skipErrors) - limit
	}
	return append([]domain.SkipError(nil), m.skipErrors[start:]...)
}

func (m *Memory) Counts() (arrivals, skipErrors int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.arrivals), len(m.skipErrors)
}
