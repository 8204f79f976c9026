package engine

import (
	"fmt"
	"log/slog"

	"shuttletrack/internal/domain"
	"shuttletrack/internal/geofence"
)

// ScheduleCatalog is the read-only reference data the engine resolves
// against.
type ScheduleCatalog interface {
	Assignment(vehicleID string) (domain.Assignment, error)
	Route(id string) (domain.Route, error)
	Ride(routeID, rideID string) (domain.Ride, error)
	StopsForRoute(routeID string) ([]domain.Stop, error)
}

// Engine turns one geolocation event plus a progress snapshot into a
// Resolution. It is a pure function of its inputs: no stores are
// mutated and no records are persisted here.
type Engine struct {
	catalog ScheduleCatalog
	fence   geofence.Resolver
	logger  *slog.Logger
}

func New(catalog ScheduleCatalog, fence geofence.Resolver, logger *slog.Logger) *Engine {
	return &Engine{
		catalog: catalog,
		fence:   fence,
		logger:  logger.With("component", "engine"),
	}
}

// Resolve determines which stop (if any) the vehicle occupies, how many
// stops it skipped since the last resolved report, whether it arrived on
// schedule, and where it should head next.
//
// A report outside every fence is a normal outcome, not an error: the
// vehicle is between stops, nothing is recorded and the progress
// snapshot comes back unchanged. When the observed stop is ahead of the
// expected one the engine trusts the fresh location evidence and
// resynchronizes to it rather than rejecting the event.
func (e *Engine) Resolve(ev domain.GeolocationEvent, prog domain.VehicleProgress) (domain.Resolution, error) {
	assignment, err := e.catalog.Assignment(ev.VehicleID)
	if err != nil {
		return domain.Resolution{}, err
	}

	// The assignment is authoritative for attribution; a device sending
	// a different driver id is suspicious but not fatal.
	if ev.DriverID != "" && ev.DriverID != assignment.DriverID {
		e.logger.Warn("driver mismatch in geolocation report",
			"vehicle", ev.VehicleID,
			"reported_driver", ev.DriverID,
			"assigned_driver", assignment.DriverID,
		)
	}

	route, err := e.catalog.Route(assignment.RouteID)
	if err != nil {
		return domain.Resolution{}, err
	}
	ride, err := e.catalog.Ride(assignment.RouteID, assignment.RideID)
	if err != nil {
		return domain.Resolution{}, err
	}
	stops, err := e.catalog.StopsForRoute(assignment.RouteID)
	if err != nil {
		return domain.Resolution{}, err
	}

	routeLen := len(route.StopIDs)
	if routeLen == 0 || len(ride.Times) != routeLen {
		return domain.Resolution{}, fmt.Errorf("%w: route %s schedule misaligned", domain.ErrRideNotFound, route.ID)
	}

	stopID, matched := e.fence.Resolve(ev.Lat, ev.Lon, stops)
	if !matched {
		e.logger.Debug("location unmatched", "vehicle", ev.VehicleID, "lat", ev.Lat, "lon", ev.Lon)
		return domain.Resolution{Matched: false, Updated: prog}, nil
	}

	expected := prog.NextStopIndex
	observed := forwardIndexOf(route.StopIDs, stopID, expected)
	if observed < 0 {
		return domain.Resolution{}, fmt.Errorf("%w: %s not on route %s", domain.ErrStopNotFound, stopID, route.ID)
	}

	// Forward cyclic distance from the expected stop. A distance of L
	// would mean a full lap, which is indistinguishable from standing
	// still, so the modulo's zero is the conservative reading.
	skipped := (observed - expected + routeLen) % routeLen

	reported, err := domain.ParseClock(ev.Time)
	if err != nil {
		return domain.Resolution{}, err
	}
	scheduled := ride.Times[observed]

	arrival := &domain.Arrival{
		DriverID:      assignment.DriverID,
		RouteID:       assignment.RouteID,
		RideID:        assignment.RideID,
		VehicleID:     ev.VehicleID,
		StopID:        stopID,
		StopIndex:     observed,
		ReportedTime:  reported,
		ScheduledTime: scheduled,
		OnTime:        !reported.After(scheduled),
	}

	var skip *domain.SkipError
	if skipped > 0 {
		skip = &domain.SkipError{
			VehicleID:    ev.VehicleID,
			StopsSkipped: skipped,
			FromIndex:    expected,
			ToIndex:      observed,
		}
	}

	updated := prog
	updated.NextStopIndex = (observed + 1) % routeLen
	updated.LastLat = ev.Lat
	updated.LastLon = ev.Lon

	return domain.Resolution{
		Matched:      true,
		StopID:       stopID,
		StopIndex:    observed,
		StopsSkipped: skipped,
		Arrival:      arrival,
		Skip:         skip,
		Updated:      updated,
	}, nil
}

// forwardIndexOf finds the position of stopID in the cyclic sequence,
// searching forward from the expected index. When a stop id appears at
// several positions the nearest forward match keeps the skip count
// minimal.
func forwardIndexOf(stopIDs []domain.StopID, stopID domain.StopID, from int) int {
	n := len(stopIDs)
	if n == 0 {
		return -1
	}
	for step := 0; step < n; step++ {
		idx := (from + step) % n
		if stopIDs[idx] == stopID {
			return idx
		}
	}
	return -1
}
