// README: Geographic point with GeoJSON wire encoding.
package types

import (
	"encoding/json"
	"fmt"
)

// Point is a WGS84 coordinate pair. On the wire it is GeoJSON:
// {"type":"Point","coordinates":[longitude,latitude]}, longitude first.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether both coordinates are in range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

type geoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSONPoint{
		Type:        "Point",
		Coordinates: [2]float64{p.Lng, p.Lat},
	})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var g geoJSONPoint
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	if g.Type != "Point" {
		return fmt.Errorf("unexpected geometry type %q", g.Type)
	}
	p.Lng = g.Coordinates[0]
	p.Lat = g.Coordinates[1]
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", p.Lat, p.Lng)
}
