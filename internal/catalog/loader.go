package catalog

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"shuttletrack/internal/domain"
)

// Seed file shapes. Ride times stay strings here and are parsed into
// domain.TimeOfDay during conversion so malformed schedules fail the
// load instead of the first resolution that touches them.

type seedFile struct {
	Stops       []seedStop       `yaml:"stops" validate:"required,min=1,dive"`
	Routes      []seedRoute      `yaml:"routes" validate:"required,min=1,dive"`
	Drivers     []seedDriver     `yaml:"drivers" validate:"dive"`
	Assignments []seedAssignment `yaml:"assignments" validate:"dive"`
}

type seedStop struct {
	ID          string  `yaml:"id" validate:"required"`
	Title       string  `yaml:"title" validate:"required"`
	Description string  `yaml:"description"`
	Lat         float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Lon         float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	RadiusM     float64 `yaml:"radius_m" validate:"gte=0"`
}

type seedRoute struct {
	ID    string     `yaml:"id" validate:"required"`
	Stops []string   `yaml:"stops" validate:"required,min=1"`
	Days  []int      `yaml:"days" validate:"dive,gte=0,lte=6"`
	Rides []seedRide `yaml:"rides" validate:"required,min=1,dive"`
}

type seedRide struct {
	ID    string   `yaml:"id" validate:"required"`
	Times []string `yaml:"times" validate:"required,min=1,dive,required"`
}

type seedDriver struct {
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"name" validate:"required"`
}

type seedAssignment struct {
	Vehicle string `yaml:"vehicle" validate:"required"`
	Driver  string `yaml:"driver" validate:"required"`
	Route   string `yaml:"route" validate:"required"`
	Ride    string `yaml:"ride" validate:"required"`
}

// LoadFile reads a YAML schedule seed, validates it, and populates the
// catalog.
func LoadFile(c *Catalog, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading schedule seed: %w", err)
	}
	return Load(c, data)
}

func Load(c *Catalog, data []byte) error {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing schedule seed: %w", err)
	}

	if err := validator.New().Struct(seed); err != nil {
		return fmt.Errorf("validating schedule seed: %w", err)
	}

	stops, routes, drivers, assignments, err := convert(seed)
	if err != nil {
		return err
	}

	c.ReplaceAll(stops, routes, drivers, assignments)
	return nil
}

func convert(seed seedFile) ([]domain.Stop, []domain.Route, []domain.Driver, []domain.Assignment, error) {
	stops := make([]domain.Stop, 0, len(seed.Stops))
	stopIDs := make(map[domain.StopID]struct{}, len(seed.Stops))
	for _, s := range seed.Stops {
		id := domain.StopID(s.ID)
		if _, dup := stopIDs[id]; dup {
			return nil, nil, nil, nil, fmt.Errorf("duplicate stop id %s", s.ID)
		}
		stopIDs[id] = struct{}{}
		stops = append(stops, domain.Stop{
			ID:          id,
			Title:       s.Title,
			Description: s.Description,
			Lat:         s.Lat,
			Lon:         s.Lon,
			RadiusM:     s.RadiusM,
		})
	}

	routes := make([]domain.Route, 0, len(seed.Routes))
	for _, r := range seed.Routes {
		route := domain.Route{ID: r.ID}

		for _, sid := range r.Stops {
			id := domain.StopID(sid)
			if _, ok := stopIDs[id]; !ok {
				return nil, nil, nil, nil, fmt.Errorf("route %s references unknown stop %s", r.ID, sid)
			}
			route.StopIDs = append(route.StopIDs, id)
		}
		for _, d := range r.Days {
			route.Days = append(route.Days, time.Weekday(d))
		}

		for _, seedR := range r.Rides {
			if len(seedR.Times) != len(r.Stops) {
				return nil, nil, nil, nil, fmt.Errorf("ride %s on route %s has %d times for %d stops",
					seedR.ID, r.ID, len(seedR.Times), len(r.Stops))
			}
			ride := domain.Ride{ID: seedR.ID}
			for _, raw := range seedR.Times {
				parsed, err := domain.ParseClock(raw)
				if err != nil {
					return nil, nil, nil, nil, fmt.Errorf("ride %s on route %s: %w", seedR.ID, r.ID, err)
				}
				ride.Times = append(ride.Times, parsed)
			}
			route.Rides = append(route.Rides, ride)
		}
		routes = append(routes, route)
	}

	drivers := make([]domain.Driver, 0, len(seed.Drivers))
	for _, d := range seed.Drivers {
		drivers = append(drivers, domain.Driver{ID: d.ID, Name: d.Name})
	}

	assignments := make([]domain.Assignment, 0, len(seed.Assignments))
	assigned := make(map[string]struct{}, len(seed.Assignments))
	for _, a := range seed.Assignments {
		if _, dup := assigned[a.Vehicle]; dup {
			return nil, nil, nil, nil, fmt.Errorf("vehicle %s assigned more than once", a.Vehicle)
		}
		assigned[a.Vehicle] = struct{}{}
		assignments = append(assignments, domain.Assignment{
			VehicleID: a.Vehicle,
			DriverID:  a.Driver,
			RouteID:   a.Route,
			RideID:    a.Ride,
		})
	}

	return stops, routes, drivers, assignments, nil
}
