// README: Tracking types: drivers, order snapshots, location pings.
package tracking

import (
	"time"

	"dishpatch/internal/geo"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

type Driver struct {
	ID       types.ID
	Name     string
	Vehicle  string
	Position types.Point
	// DistanceM is the distance from the search origin, filled by FindNearby.
	DistanceM float64
}

// Snapshot is the read-only tracking projection for one order.
type Snapshot struct {
	OrderID   types.ID              `json:"orderId"`
	Status    order.Status          `json:"status"`
	DriverID  *types.ID             `json:"driverId,omitempty"`
	Route     *geo.Route            `json:"route,omitempty"`
	Events    []order.TrackingEvent `json:"events"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// LocationPing is one driver position report. At is the device timestamp,
// used to detect out-of-order delivery.
type LocationPing struct {
	OrderID  types.ID
	DriverID types.ID
	Position types.Point
	At       time.Time
}
