package geofence

import (
	"math"

	"shuttletrack/internal/domain"
)

// Resolver maps a reported coordinate to the stop whose fence contains
// it, or reports no match. Device coordinates never equal catalog
// coordinates exactly, so membership is always a distance test.
type Resolver interface {
	Resolve(lat, lon float64, stops []domain.Stop) (domain.StopID, bool)
}

// RadiusResolver implements circular fences around stop centers. Stops
// may carry their own radius; defaultRadiusM applies otherwise. When a
// point falls inside several overlapping fences the nearest center wins.
type RadiusResolver struct {
	defaultRadiusM float64
}

func NewRadiusResolver(defaultRadiusM float64) *RadiusResolver {
	return &RadiusResolver{defaultRadiusM: defaultRadiusM}
}

func (r *RadiusResolver) Resolve(lat, lon float64, stops []domain.Stop) (domain.StopID, bool) {
	var (
		best     domain.StopID
		bestDist float64
		found    bool
	)

	for _, stop := range stops {
		radius := stop.RadiusM
		if radius <= 0 {
			radius = r.defaultRadiusM
		}

		dist := HaversineMeters(lat, lon, stop.Lat, stop.Lon)
		if dist > radius {
			continue
		}
		if !found || dist < bestDist {
			best = stop.ID
			bestDist = dist
			found = true
		}
	}

	return best, found
}

const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance between two
// coordinates in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180.0
	phi2 := lat2 * math.Pi / 180.0
	dPhi := (lat2 - lat1) * math.Pi / 180.0
	dLambda := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}
