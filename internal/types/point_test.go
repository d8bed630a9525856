// README: GeoJSON encoding tests for Point.
package types

import (
	"encoding/json"
	"testing"
)

func TestPointGeoJSON(t *testing.T) {
	p := Point{Lat: 37.7749, Lng: -122.4194}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// GeoJSON order: longitude first.
	want := `{"type":"Point","coordinates":[-122.4194,37.7749]}`
	if string(raw) != want {
		t.Errorf("marshal = %s, want %s", raw, want)
	}

	var back Point
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != p {
		t.Errorf("round trip = %+v, want %+v", back, p)
	}
}

func TestPointValid(t *testing.T) {
	cases := []struct {
		p  Point
		ok bool
	}{
		{Point{0, 0}, true},
		{Point{90, 180}, true},
		{Point{-90, -180}, true},
		{Point{90.01, 0}, false},
		{Point{0, -180.5}, false},
	}
	for _, tc := range cases {
		if got := tc.p.Valid(); got != tc.ok {
			t.Errorf("Valid(%+v) = %v, want %v", tc.p, got, tc.ok)
		}
	}
}
