// README: Pure geographic computation: haversine distance, bearings, traffic-scaled ETAs, routes.
package geo

import (
	"errors"
	"fmt"
	"math"
	"time"

	"dishpatch/internal/types"
)

const (
	earthRadiusM = 6371000.0

	// baseSpeedKmh is the assumed average courier speed before traffic scaling.
	baseSpeedKmh = 30.0

	// pickupBuffer covers restaurant handoff and pickup on top of travel time.
	pickupBuffer = 15 * time.Minute
)

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinate = errors.New("coordinate out of range")

// Route is a snapshot of the driver -> restaurant -> delivery path.
type Route struct {
	Waypoints      []types.Point `json:"waypoints"`
	DistanceMeters float64       `json:"distanceMeters"`
	Duration       time.Duration `json:"duration"`
	Bearing        float64       `json:"bearing"`
	ETA            time.Time     `json:"eta"`
}

// Distance returns the haversine great-circle distance in meters between a and b.
func Distance(a, b types.Point) (float64, error) {
	if err := validate(a, b); err != nil {
		return 0, err
	}
	return haversineM(a, b), nil
}

// Bearing returns the initial compass bearing from a to b in degrees [0,360).
func Bearing(a, b types.Point) (float64, error) {
	if err := validate(a, b); err != nil {
		return 0, err
	}
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLng := radians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180.0 / math.Pi
	return math.Mod(deg+360.0, 360.0), nil
}

// TrafficMultiplier scales travel time by hour of day: 1.5 during the
// 07:00-09:00 and 16:00-19:00 rush windows, 0.8 during the 23:00-05:00
// light-traffic window, 1.0 otherwise. Window ends are exclusive: hour 9
// is already past the morning rush.
func TrafficMultiplier(hour int) float64 {
	switch {
	case hour >= 7 && hour < 9:
		return 1.5
	case hour >= 16 && hour < 19:
		return 1.5
	case hour >= 23 || hour < 5:
		return 0.8
	default:
		return 1.0
	}
}

// EstimateDeliveryTime returns now plus travel time at the base speed scaled
// by the traffic multiplier, plus the fixed pickup buffer.
func EstimateDeliveryTime(distanceMeters, multiplier float64, now time.Time) time.Time {
	return now.Add(TravelDuration(distanceMeters, multiplier) + pickupBuffer)
}

// TravelDuration is the traffic-scaled travel time for a distance, without
// the pickup buffer.
func TravelDuration(distanceMeters, multiplier float64) time.Duration {
	hours := (distanceMeters / 1000.0) / baseSpeedKmh * multiplier
	return time.Duration(hours * float64(time.Hour))
}

// OptimalRoute concatenates the driver->restaurant and restaurant->delivery
// legs. Duration and ETA use the traffic multiplier for now's hour.
func OptimalRoute(driver, restaurant, delivery types.Point, now time.Time) (Route, error) {
	if err := validate(driver, restaurant, delivery); err != nil {
		return Route{}, err
	}

	total := haversineM(driver, restaurant) + haversineM(restaurant, delivery)
	mult := TrafficMultiplier(now.Hour())
	dur := TravelDuration(total, mult) + pickupBuffer

	brg, _ := Bearing(driver, restaurant)
	return Route{
		Waypoints:      []types.Point{driver, restaurant, delivery},
		DistanceMeters: total,
		Duration:       dur,
		Bearing:        brg,
		ETA:            now.Add(dur),
	}, nil
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}

func haversineM(a, b types.Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	rLat1 := radians(a.Lat)
	rLat2 := radians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

func validate(pts ...types.Point) error {
	for _, p := range pts {
		if !p.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidCoordinate, p)
		}
	}
	return nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
