package catalog

import (
	"errors"
	"strings"
	"testing"

	"shuttletrack/internal/domain"
)

const seedYAML = `
stops:
  - id: "1"
    title: Stop 1
    description: The corner of x and y
    latitude: 46.2
    longitude: -47.0
    radius_m: 150
  - id: "2"
    title: Stop 2
    latitude: 48.5
    longitude: -50.3
  - id: "3"
    title: Stop 3
    latitude: 52.1
    longitude: -39.9
  - id: "4"
    title: Stop 4
    latitude: 45.2
    longitude: -48.2
routes:
  - id: "0"
    stops: ["1", "4", "3", "2"]
    days: [1, 3, 5]
    rides:
      - id: "100"
        times: ["9:00am", "9:30am", "10:00am", "10:30am"]
      - id: "101"
        times: ["9:15am", "9:45am", "10:15am", "10:45am"]
drivers:
  - id: "0"
    name: Mark
assignments:
  - vehicle: "0"
    driver: "0"
    route: "0"
    ride: "100"
`

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := New()
	if err := Load(c, []byte(seedYAML)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestLoadAndAccessors(t *testing.T) {
	c := loadTestCatalog(t)

	a, err := c.Assignment("0")
	if err != nil {
		t.Fatalf("Assignment: %v", err)
	}
	if a.RouteID != "0" || a.RideID != "100" || a.DriverID != "0" {
		t.Errorf("unexpected assignment: %+v", a)
	}

	route, err := c.Route("0")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(route.StopIDs) != 4 || route.StopIDs[1] != "4" {
		t.Errorf("unexpected route stops: %v", route.StopIDs)
	}

	ride, err := c.Ride("0", "101")
	if err != nil {
		t.Fatalf("Ride: %v", err)
	}
	if got := ride.Times[0].String(); got != "9:15am" {
		t.Errorf("first ride time = %s, want 9:15am", got)
	}

	stops, err := c.StopsForRoute("0")
	if err != nil {
		t.Fatalf("StopsForRoute: %v", err)
	}
	if len(stops) != 4 || stops[2].ID != "3" {
		t.Errorf("unexpected route stop order: %+v", stops)
	}
}

func TestAssignmentNotFound(t *testing.T) {
	c := loadTestCatalog(t)

	_, err := c.Assignment("ghost")
	if !errors.Is(err, domain.ErrAssignmentNotFound) {
		t.Errorf("error = %v, want ErrAssignmentNotFound", err)
	}
}

func TestAssignmentAmbiguous(t *testing.T) {
	c := New()
	c.ReplaceAll(nil, nil, nil, []domain.Assignment{
		{VehicleID: "0", DriverID: "0", RouteID: "0", RideID: "100"},
		{VehicleID: "0", DriverID: "1", RouteID: "1", RideID: "101"},
	})

	_, err := c.Assignment("0")
	if !errors.Is(err, domain.ErrAssignmentAmbiguous) {
		t.Errorf("error = %v, want ErrAssignmentAmbiguous", err)
	}
}

func TestLoadRejectsMisalignedRideTimes(t *testing.T) {
	bad := strings.Replace(seedYAML,
		`times: ["9:00am", "9:30am", "10:00am", "10:30am"]`,
		`times: ["9:00am", "9:30am"]`, 1)

	if err := Load(New(), []byte(bad)); err == nil {
		t.Fatal("expected error for ride/stop length mismatch")
	}
}

func TestLoadRejectsUnknownStopReference(t *testing.T) {
	bad := strings.Replace(seedYAML, `stops: ["1", "4", "3", "2"]`, `stops: ["1", "4", "3", "9"]`, 1)

	if err := Load(New(), []byte(bad)); err == nil {
		t.Fatal("expected error for unknown stop id in route")
	}
}

func TestLoadRejectsMalformedRideTime(t *testing.T) {
	bad := strings.Replace(seedYAML, `"10:30am"`, `"25:30am"`, 1)

	err := Load(New(), []byte(bad))
	if !errors.Is(err, domain.ErrTimeParse) {
		t.Errorf("error = %v, want ErrTimeParse", err)
	}
}

func TestLoadRejectsDuplicateAssignment(t *testing.T) {
	bad := seedYAML + `
  - vehicle: "0"
    driver: "1"
    route: "0"
    ride: "101"
`
	if err := Load(New(), []byte(bad)); err == nil {
		t.Fatal("expected error for duplicate vehicle assignment")
	}
}
