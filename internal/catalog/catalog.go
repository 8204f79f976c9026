package catalog

import (
	"fmt"
	"sync"
	"time"

	"shuttletrack/internal/domain"
)

// Catalog is the read-mostly schedule reference store: stops, routes with
// their rides, drivers, and vehicle assignments. The resolution engine
// only reads it; ReplaceAll swaps the whole data set on reload.
type Catalog struct {
	mu          sync.RWMutex
	stops       map[domain.StopID]*domain.Stop
	routes      map[string]*domain.Route
	drivers     map[string]*domain.Driver
	assignments map[string][]domain.Assignment

	lastUpdate time.Time
}

func New() *Catalog {
	return &Catalog{
		stops:       make(map[domain.StopID]*domain.Stop),
		routes:      make(map[string]*domain.Route),
		drivers:     make(map[string]*domain.Driver),
		assignments: make(map[string][]domain.Assignment),
	}
}

func (c *Catalog) ReplaceAll(stops []domain.Stop, routes []domain.Route, drivers []domain.Driver, assignments []domain.Assignment) {
	stopsByID := make(map[domain.StopID]*domain.Stop, len(stops))
	for i := range stops {
		stopsByID[stops[i].ID] = &stops[i]
	}
	routesByID := make(map[string]*domain.Route, len(routes))
	for i := range routes {
		routesByID[routes[i].ID] = &routes[i]
	}
	driversByID := make(map[string]*domain.Driver, len(drivers))
	for i := range drivers {
		driversByID[drivers[i].ID] = &drivers[i]
	}
	byVehicle := make(map[string][]domain.Assignment, len(assignments))
	for _, a := range assignments {
		byVehicle[a.VehicleID] = append(byVehicle[a.VehicleID], a)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops = stopsByID
	c.routes = routesByID
	c.drivers = driversByID
	c.assignments = byVehicle
	c.lastUpdate = time.Now()
}

// Assignment returns the single active assignment for a vehicle. Zero or
// multiple matches are catalog consistency faults the caller cannot fix
// by retrying.
func (c *Catalog) Assignment(vehicleID string) (domain.Assignment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := c.assignments[vehicleID]
	switch len(matches) {
	case 0:
		return domain.Assignment{}, fmt.Errorf("%w: vehicle %s", domain.ErrAssignmentNotFound, vehicleID)
	case 1:
		return matches[0], nil
	default:
		return domain.Assignment{}, fmt.Errorf("%w: vehicle %s has %d", domain.ErrAssignmentAmbiguous, vehicleID, len(matches))
	}
}

func (c *Catalog) Route(id string) (domain.Route, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	route, ok := c.routes[id]
	if !ok {
		return domain.Route{}, fmt.Errorf("%w: %s", domain.ErrRouteNotFound, id)
	}
	return copyRoute(route), nil
}

func (c *Catalog) Ride(routeID, rideID string) (domain.Ride, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	route, ok := c.routes[routeID]
	if !ok {
		return domain.Ride{}, fmt.Errorf("%w: %s", domain.ErrRouteNotFound, routeID)
	}
	for _, ride := range route.Rides {
		if ride.ID == rideID {
			out := ride
			out.Times = append([]domain.TimeOfDay(nil), ride.Times...)
			return out, nil
		}
	}
	return domain.Ride{}, fmt.Errorf("%w: %s on route %s", domain.ErrRideNotFound, rideID, routeID)
}

func (c *Catalog) Stop(id domain.StopID) (domain.Stop, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stop, ok := c.stops[id]
	if !ok {
		return domain.Stop{}, fmt.Errorf("%w: %s", domain.ErrStopNotFound, id)
	}
	return *stop, nil
}

// StopsForRoute returns the route's stops in sequence order, one entry
// per position. Unknown ids are rejected at load time, so lookups here
// cannot miss.
func (c *Catalog) StopsForRoute(routeID string) ([]domain.Stop, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	route, ok := c.routes[routeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRouteNotFound, routeID)
	}

	stops := make([]domain.Stop, 0, len(route.StopIDs))
	for _, id := range route.StopIDs {
		stop, ok := c.stops[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s referenced by route %s", domain.ErrStopNotFound, id, routeID)
		}
		stops = append(stops, *stop)
	}
	return stops, nil
}

func (c *Catalog) Driver(id string) (domain.Driver, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	driver, ok := c.drivers[id]
	if !ok {
		return domain.Driver{}, false
	}
	return *driver, true
}

func (c *Catalog) AllStops() []domain.Stop {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Stop, 0, len(c.stops))
	for _, stop := range c.stops {
		result = append(result, *stop)
	}
	return result
}

func (c *Catalog) AllRoutes() []domain.Route {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Route, 0, len(c.routes))
	for _, route := range c.routes {
		result = append(result, copyRoute(route))
	}
	return result
}

func (c *Catalog) AllAssignments() []domain.Assignment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []domain.Assignment
	for _, list := range c.assignments {
		result = append(result, list...)
	}
	return result
}

type Stats struct {
	StopsCount   int       `json:"stops_count"`
	RoutesCount  int       `json:"routes_count"`
	DriversCount int       `json:"drivers_count"`
	LastUpdate   time.Time `json:"last_update"`
	IsLoaded     bool      `json:"is_loaded"`
}

func (c *Catalog) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		StopsCount:   len(c.stops),
		RoutesCount:  len(c.routes),
		DriversCount: len(c.drivers),
		LastUpdate:   c.lastUpdate,
		IsLoaded:     !c.lastUpdate.IsZero(),
	}
}

func copyRoute(route *domain.Route) domain.Route {
	out := domain.Route{
		ID:      route.ID,
		StopIDs: append([]domain.StopID(nil), route.StopIDs...),
		Days:    append([]time.Weekday(nil), route.Days...),
		Rides:   make([]domain.Ride, len(route.Rides)),
	}
	for i, ride := range route.Rides {
		out.Rides[i] = domain.Ride{
			ID:    ride.ID,
			Times: append([]domain.TimeOfDay(nil), ride.Times...),
		}
	}
	return out
}
