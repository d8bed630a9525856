// README: Geo computation tests (distances, bearings, traffic windows, routes).
package geo

import (
	"math"
	"testing"
	"time"

	"dishpatch/internal/types"
)

func TestDistance_KnownValues(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantM     float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 40.7128, Lng: -74.0060},
			wantM:     0,
			tolerance: 0.001,
		},
		{
			name:      "one degree of longitude at the equator",
			a:         types.Point{Lat: 0, Lng: 0},
			b:         types.Point{Lat: 0, Lng: 1},
			wantM:     111195,
			tolerance: 1112, // 1%
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantM:     3944000,
			tolerance: 50000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Distance() error: %v", err)
			}
			if math.Abs(got-tt.wantM) > tt.tolerance {
				t.Errorf("Distance() = %f, want %f (±%f)", got, tt.wantM, tt.tolerance)
			}
		})
	}
}

func TestDistance_Symmetry(t *testing.T) {
	a := types.Point{Lat: 25.0, Lng: 121.0}
	b := types.Point{Lat: 26.0, Lng: 122.0}
	d1, _ := Distance(a, b)
	d2, _ := Distance(b, a)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("distance is not symmetric: %f vs %f", d1, d2)
	}
}

func TestDistance_RejectsOutOfRange(t *testing.T) {
	bad := []types.Point{
		{Lat: 91, Lng: 0},
		{Lat: -91, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: 0, Lng: -181},
	}
	good := types.Point{Lat: 0, Lng: 0}
	for _, p := range bad {
		if _, err := Distance(p, good); err == nil {
			t.Errorf("Distance(%v, origin) accepted out-of-range coordinate", p)
		}
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		want      float64
		tolerance float64
	}{
		{name: "due north", a: types.Point{Lat: 0, Lng: 0}, b: types.Point{Lat: 1, Lng: 0}, want: 0, tolerance: 0.01},
		{name: "due east", a: types.Point{Lat: 0, Lng: 0}, b: types.Point{Lat: 0, Lng: 1}, want: 90, tolerance: 0.01},
		{name: "due south", a: types.Point{Lat: 1, Lng: 0}, b: types.Point{Lat: 0, Lng: 0}, want: 180, tolerance: 0.01},
		{name: "due west", a: types.Point{Lat: 0, Lng: 1}, b: types.Point{Lat: 0, Lng: 0}, want: 270, tolerance: 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bearing(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Bearing() error: %v", err)
			}
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Bearing() = %f, want %f", got, tt.want)
			}
			if got < 0 || got >= 360 {
				t.Errorf("Bearing() = %f, outside [0,360)", got)
			}
		})
	}
}

func TestTrafficMultiplier(t *testing.T) {
	cases := []struct {
		hour int
		want float64
	}{
		{7, 1.5}, {8, 1.5}, // morning rush
		{16, 1.5}, {18, 1.5}, // evening rush
		{23, 0.8}, {0, 0.8}, {2, 0.8}, {4, 0.8}, // light traffic
		{6, 1.0}, {10, 1.0}, {13, 1.0}, {22, 1.0},
		// window ends are exclusive
		{9, 1.0}, {19, 1.0}, {5, 1.0},
	}
	for _, tc := range cases {
		if got := TrafficMultiplier(tc.hour); got != tc.want {
			t.Errorf("TrafficMultiplier(%d) = %v, want %v", tc.hour, got, tc.want)
		}
	}
}

func TestEstimateDeliveryTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)

	// 10km at 30km/h and multiplier 1.0 is 20 minutes, plus the 15 minute buffer.
	got := EstimateDeliveryTime(10000, 1.0, now)
	want := now.Add(35 * time.Minute)
	if !got.Equal(want) {
		t.Errorf("EstimateDeliveryTime = %v, want %v", got, want)
	}

	// Rush multiplier stretches travel time only, not the buffer.
	got = EstimateDeliveryTime(10000, 1.5, now)
	want = now.Add(30*time.Minute + 15*time.Minute)
	if !got.Equal(want) {
		t.Errorf("EstimateDeliveryTime rush = %v, want %v", got, want)
	}
}

func TestOptimalRoute(t *testing.T) {
	now := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	driver := types.Point{Lat: 0, Lng: 0}
	restaurant := types.Point{Lat: 0, Lng: 0.05}
	delivery := types.Point{Lat: 0, Lng: 0.1}

	route, err := OptimalRoute(driver, restaurant, delivery, now)
	if err != nil {
		t.Fatalf("OptimalRoute() error: %v", err)
	}

	if len(route.Waypoints) != 3 {
		t.Fatalf("expected 3 waypoints, got %d", len(route.Waypoints))
	}

	leg1, _ := Distance(driver, restaurant)
	leg2, _ := Distance(restaurant, delivery)
	if math.Abs(route.DistanceMeters-(leg1+leg2)) > 0.001 {
		t.Errorf("route distance %f != leg sum %f", route.DistanceMeters, leg1+leg2)
	}

	if !route.ETA.Equal(now.Add(route.Duration)) {
		t.Errorf("ETA %v is not now + duration", route.ETA)
	}

	if _, err := OptimalRoute(types.Point{Lat: 99, Lng: 0}, restaurant, delivery, now); err == nil {
		t.Error("expected error for out-of-range driver location")
	}
}

func TestSortByDistance(t *testing.T) {
	type candidate struct {
		id   string
		dist float64
	}
	items := []candidate{{"c", 5.0}, {"a", 1.0}, {"b", 3.0}}

	SortByDistance(items, func(c candidate) float64 { return c.dist })

	if items[0].id != "a" || items[1].id != "b" || items[2].id != "c" {
		t.Errorf("unexpected sort order: %v", items)
	}

	var empty []candidate
	SortByDistance(empty, func(c candidate) float64 { return c.dist })
}
