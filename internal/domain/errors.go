package domain

import "errors"

// Resolution errors. Catalog inconsistencies (missing or duplicated
// assignments, dangling route/ride/stop references) are surfaced to the
// caller and are not retryable; ErrUpdateConflict and ErrSinkUnavailable
// are transient.
var (
	ErrAssignmentNotFound  = errors.New("no assignment for vehicle")
	ErrAssignmentAmbiguous = errors.New("multiple assignments for vehicle")
	ErrVehicleUnassigned   = errors.New("no progress state for vehicle")
	ErrRouteNotFound       = errors.New("route not found")
	ErrRideNotFound        = errors.New("ride not found")
	ErrStopNotFound        = errors.New("stop not found")
	ErrTimeParse           = errors.New("malformed clock time")
	ErrUpdateConflict      = errors.New("progress updated concurrently")
	ErrSinkUnavailable     = errors.New("record sink unavailable")
)
