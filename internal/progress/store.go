package progress

import (
	"fmt"
	"sync"
	"time"

	"shuttletrack/internal/domain"
)

// Store holds one VehicleProgress per active vehicle. Writers follow a
// read-compute-swap discipline: take a snapshot with Get, build the next
// value, and commit it with CompareAndSwap. The version check makes two
// resolutions racing on the same stale snapshot impossible to both land.
type Store struct {
	mu       sync.RWMutex
	vehicles map[string]domain.VehicleProgress
}

func New() *Store {
	return &Store{
		vehicles: make(map[string]domain.VehicleProgress),
	}
}

// Get returns a snapshot of the vehicle's progress.
func (s *Store) Get(vehicleID string) (domain.VehicleProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.vehicles[vehicleID]
	if !ok {
		return domain.VehicleProgress{}, fmt.Errorf("%w: %s", domain.ErrVehicleUnassigned, vehicleID)
	}
	return p, nil
}

// Init creates progress for a first-seen vehicle, pointing at the start
// of its route. Existing progress is returned untouched.
func (s *Store) Init(vehicleID string) domain.VehicleProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.vehicles[vehicleID]; ok {
		return p
	}
	p := domain.VehicleProgress{
		VehicleID:     vehicleID,
		NextStopIndex: 0,
		UpdatedAt:     time.Now(),
		Version:       1,
	}
	s.vehicles[vehicleID] = p
	return p
}

// CompareAndSwap commits next only if the stored entry still matches the
// snapshot the caller computed from. The committed value gets a bumped
// version and a fresh UpdatedAt.
func (s *Store) CompareAndSwap(expected, next domain.VehicleProgress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.vehicles[expected.VehicleID]
	if !ok || current.Version != expected.Version {
		return false
	}

	next.VehicleID = expected.VehicleID
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now()
	s.vehicles[expected.VehicleID] = next
	return true
}

// Reset drops a vehicle's progress, e.g. when its assignment changes.
func (s *Store) Reset(vehicleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vehicles, vehicleID)
}

func (s *Store) Snapshot() []domain.VehicleProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.VehicleProgress, 0, len(s.vehicles))
	for _, p := range s.vehicles {
		result = append(result, p)
	}
	return result
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vehicles)
}
