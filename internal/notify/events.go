// README: Push event definitions (wire shapes for customer and driver notifications).
package notify

import (
	"time"

	"dishpatch/internal/geo"
	"dishpatch/internal/types"
)

// Event is anything publishable to the gateway. Kind is the wire event name.
type Event interface {
	Kind() string
}

type StatusUpdated struct {
	OrderID   types.ID  `json:"orderId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

func (StatusUpdated) Kind() string { return "statusUpdated" }

type LocationUpdate struct {
	OrderID               types.ID    `json:"orderId"`
	Location              types.Point `json:"location"`
	EstimatedDeliveryTime time.Time   `json:"estimatedDeliveryTime"`
	Status                string      `json:"status"`
}

func (LocationUpdate) Kind() string { return "locationUpdate" }

type DriverAssigned struct {
	OrderID               types.ID   `json:"orderId"`
	DriverID              types.ID   `json:"driverId"`
	DriverName            string     `json:"driverName"`
	EstimatedDeliveryTime time.Time  `json:"estimatedDeliveryTime"`
	Route                 *geo.Route `json:"route"`
	Vehicle               string     `json:"vehicle,omitempty"`
}

func (DriverAssigned) Kind() string { return "driverAssigned" }

type DeliveryTimeUpdate struct {
	OrderID          types.ID  `json:"orderId"`
	NewEstimatedTime time.Time `json:"newEstimatedTime"`
	Reason           string    `json:"reason"`
}

func (DeliveryTimeUpdate) Kind() string { return "deliveryTimeUpdate" }

type GroupOrderUpdate struct {
	OrderID     types.ID `json:"orderId"`
	Type        string   `json:"type"`
	Participant types.ID `json:"participant,omitempty"`
}

func (GroupOrderUpdate) Kind() string { return "groupOrderUpdate" }

type RatingRequested struct {
	OrderID types.ID `json:"orderId"`
	UserID  types.ID `json:"userId"`
}

func (RatingRequested) Kind() string { return "ratingRequested" }
