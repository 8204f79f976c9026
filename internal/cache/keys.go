package cache

import "fmt"

const (
	KeyCatalogFull = "catalog:full"
	KeyRoutes      = "routes"
	KeyStops       = "stops"
)

func KeyRoute(routeID string) string {
	return fmt.Sprintf("route:%s", routeID)
}

func KeyStop(stopID string) string {
	return fmt.Sprintf("stop:%s", stopID)
}

func KeyRouteStops(routeID string) string {
	return fmt.Sprintf("route_stops:%s", routeID)
}
