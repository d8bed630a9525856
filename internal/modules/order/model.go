// README: Order aggregate, status state machine, group and schedule value types.
package order

import (
	"time"

	"dishpatch/internal/geo"
	"dishpatch/internal/types"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// allowedTransitions represents the order state flow as code. Cancellation is
// reachable from every non-terminal state; delivered and cancelled are final.
var allowedTransitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReadyForPickup, StatusCancelled},
	StatusReadyForPickup: {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type Customization struct {
	Name       string      `json:"name"`
	PriceDelta types.Money `json:"priceDelta"`
}

type LineItem struct {
	MenuItemID     types.ID        `json:"menuItemId"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      types.Money     `json:"unitPrice"`
	Customizations []Customization `json:"customizations,omitempty"`
	LineTotal      types.Money     `json:"lineTotal"`
}

type DeliveryLocation struct {
	Position     types.Point `json:"position"`
	Address      string      `json:"address"`
	Instructions string      `json:"instructions,omitempty"`
}

// TrackingEvent is an append-only entry in the order's tracking history.
type TrackingEvent struct {
	Status    Status      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Location  types.Point `json:"location"`
	Note      string      `json:"note,omitempty"`
}

type ParticipantStatus string

const (
	ParticipantInvited  ParticipantStatus = "invited"
	ParticipantJoined   ParticipantStatus = "joined"
	ParticipantDeclined ParticipantStatus = "declined"
)

type Participant struct {
	UserID   types.ID          `json:"userId"`
	Items    []LineItem        `json:"items,omitempty"`
	Subtotal types.Money       `json:"subtotal"`
	Status   ParticipantStatus `json:"status"`
	JoinedAt *time.Time        `json:"joinedAt,omitempty"`
}

type GroupOrder struct {
	Participants []Participant `json:"participants"`
	JoinDeadline time.Time     `json:"joinDeadline"`
	Finalized    bool          `json:"finalized"`
}

// Participant returns the entry for userID, or nil. One entry per user.
func (g *GroupOrder) Participant(userID types.ID) *Participant {
	for i := range g.Participants {
		if g.Participants[i].UserID == userID {
			return &g.Participants[i]
		}
	}
	return nil
}

// Settle finalizes the group on a terminal transition: participants who never
// joined are marked declined and contribute nothing to the totals.
func (g *GroupOrder) Settle() {
	for i := range g.Participants {
		if g.Participants[i].Status == ParticipantInvited {
			g.Participants[i].Status = ParticipantDeclined
		}
	}
	g.Finalized = true
}

type Frequency string

const (
	FreqOnce    Frequency = "once"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
)

// ScheduleConfig describes when a scheduled order fires and, for recurring
// frequencies, how the next instance is derived from the anchor time.
type ScheduleConfig struct {
	Frequency   Frequency      `json:"frequency"`
	ScheduledAt time.Time      `json:"scheduledAt"`
	EndDate     *time.Time     `json:"endDate,omitempty"`
	DaysOfWeek  []time.Weekday `json:"daysOfWeek,omitempty"`
	DaysOfMonth []int          `json:"daysOfMonth,omitempty"`
}

// Order is the aggregate root. It is mutated only through Service operations;
// writers race on StatusVersion (optimistic concurrency, one writer wins).
type Order struct {
	ID           types.ID
	UserID       types.ID
	RestaurantID types.ID
	Items        []LineItem

	Subtotal    types.Money
	Tax         types.Money
	DeliveryFee types.Money
	Total       types.Money

	Status        Status
	PaymentStatus PaymentStatus
	StatusVersion int

	Delivery DeliveryLocation
	DriverID *types.ID

	EstimatedDeliveryAt *time.Time
	ActualDeliveryAt    *time.Time

	Tracking []TrackingEvent
	Route    *geo.Route

	Group *GroupOrder

	Schedule     *ScheduleConfig
	IsScheduled  bool
	ScheduledFor *time.Time
	TemplateID   *types.ID

	RefundTxID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalsConsistent reports whether total == subtotal + tax + deliveryFee and
// no component is negative.
func (o *Order) TotalsConsistent() bool {
	if o.Subtotal.Amount < 0 || o.Tax.Amount < 0 || o.DeliveryFee.Amount < 0 || o.Total.Amount < 0 {
		return false
	}
	return o.Total.Amount == o.Subtotal.Amount+o.Tax.Amount+o.DeliveryFee.Amount
}

// LastTracking returns the newest tracking entry, or nil for a fresh order.
func (o *Order) LastTracking() *TrackingEvent {
	if len(o.Tracking) == 0 {
		return nil
	}
	return &o.Tracking[len(o.Tracking)-1]
}

// TemplateKey is the identity used for idempotent scheduled materialization:
// the original template's id, or the order's own id for a first instance.
func (o *Order) TemplateKey() types.ID {
	if o.TemplateID != nil {
		return *o.TemplateID
	}
	return o.ID
}
