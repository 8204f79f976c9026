package domain

import "time"

// VehicleProgress is the per-vehicle pointer into its assigned route.
// NextStopIndex is a position in the route's stop sequence, always in
// [0, len(route.StopIDs)). Version increments on every committed update
// and backs the progress store's compare-and-swap.
type VehicleProgress struct {
	VehicleID     string    `json:"vehicleId"`
	NextStopIndex int       `json:"nextStopIndex"`
	LastLat       float64   `json:"lastLat"`
	LastLon       float64   `json:"lastLon"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Version       uint64    `json:"version"`
}

// GeolocationEvent is one position report from a vehicle's device. Time
// is the device clock reading in meridiem form ("9:05am"); the driver id
// duplicates the assignment and is only cross-checked.
type GeolocationEvent struct {
	VehicleID string  `json:"vehicle"`
	DriverID  string  `json:"driver"`
	Lat       float64 `json:"latitude"`
	Lon       float64 `json:"longitude"`
	Time      string  `json:"time"`
}

// Arrival records a vehicle landing inside a scheduled stop's fence.
// ID is assigned by the sink on append, strictly increasing.
type Arrival struct {
	ID            uint64    `json:"id"`
	DriverID      string    `json:"driver"`
	RouteID       string    `json:"route"`
	RideID        string    `json:"ride"`
	VehicleID     string    `json:"vehicle"`
	StopID        StopID    `json:"stop"`
	StopIndex     int       `json:"stopIndex"`
	ReportedTime  TimeOfDay `json:"reportedTime"`
	ScheduledTime TimeOfDay `json:"scheduledTime"`
	OnTime        bool      `json:"onTime"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// SkipError records stops bypassed between two consecutive resolved
// reports, typically after a device outage. FromIndex is the stop the
// vehicle was expected at, ToIndex the stop it actually reached.
type SkipError struct {
	ID           uint64    `json:"id"`
	VehicleID    string    `json:"vehicle"`
	StopsSkipped int       `json:"numStopsSkipped"`
	FromIndex    int       `json:"fromIndex"`
	ToIndex      int       `json:"toIndex"`
	RecordedAt   time.Time `json:"recordedAt"`
}

// Resolution is the outcome of resolving one geolocation event against a
// progress snapshot. When Matched is false the vehicle was between stops:
// no records are produced and Updated equals the input snapshot. Arrival
// and Skip carry zero IDs until the sink appends them.
type Resolution struct {
	Matched      bool            `json:"matched"`
	StopID       StopID          `json:"stop,omitempty"`
	StopIndex    int             `json:"stopIndex"`
	StopsSkipped int             `json:"stopsSkipped"`
	Arrival      *Arrival        `json:"arrival,omitempty"`
	Skip         *SkipError      `json:"skipError,omitempty"`
	Updated      VehicleProgress `json:"updatedProgress"`
}
