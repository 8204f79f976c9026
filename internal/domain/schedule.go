package domain

import "time"

// StopID identifies a stop in the catalog. It is distinct from a stop's
// position within a route: all skip and advance arithmetic works on
// positions, never on ids.
type StopID string

// Stop is a named, geofenced location. RadiusM is the fence radius in
// meters; zero means the resolver's default applies.
type Stop struct {
	ID          StopID  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	RadiusM     float64 `json:"radiusM,omitempty"`
}

// Ride is one scheduled run of a route. Times align index-for-index with
// the route's stop sequence.
type Ride struct {
	ID    string      `json:"id"`
	Times []TimeOfDay `json:"times"`
}

// Route is an ordered, cyclic sequence of stops: after the last stop the
// route wraps back to the first.
type Route struct {
	ID      string         `json:"id"`
	StopIDs []StopID       `json:"stops"`
	Days    []time.Weekday `json:"days"`
	Rides   []Ride         `json:"rides"`
}

// Driver is reference data only; the engine uses it for cross-checks and
// record attribution.
type Driver struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Assignment binds a vehicle and driver to a route/ride. A vehicle has
// exactly one active assignment at any moment.
type Assignment struct {
	VehicleID string `json:"vehicle"`
	DriverID  string `json:"driver"`
	RouteID   string `json:"route"`
	RideID    string `json:"ride"`
}
