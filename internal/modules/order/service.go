// README: Order service implements lifecycle transitions, pricing, and payment side effects.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dishpatch/internal/geo"
	"dishpatch/internal/notify"
	"dishpatch/internal/payments"
	"dishpatch/internal/restaurants"
	"dishpatch/internal/types"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("order modified concurrently, re-read and retry")
	ErrForbidden         = errors.New("order does not belong to user")
	ErrPaymentCapture    = errors.New("payment capture failed")
	ErrPaymentRefund     = errors.New("refund failed")
)

// Store is the persistence contract for orders. Update is an optimistic
// compare-and-swap on StatusVersion; a stale write returns ErrConflict.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	ListByUser(ctx context.Context, userID types.ID) ([]*Order, error)
	Update(ctx context.Context, o *Order) error
	AppendTracking(ctx context.Context, orderID types.ID, ev TrackingEvent) error
	UpsertParticipant(ctx context.Context, orderID types.ID, p Participant) error
	DueScheduled(ctx context.Context, now time.Time) ([]*Order, error)
	ScheduledInstanceExists(ctx context.Context, templateID types.ID, at time.Time) (bool, error)
}

// DriverAssigner is implemented by the tracking service; declared here so the
// order package does not import it.
type DriverAssigner interface {
	Assign(ctx context.Context, orderID types.ID) error
	Release(ctx context.Context, driverID types.ID) error
}

type Config struct {
	Pricing            PricingConfig
	RatingRequestDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Pricing:            DefaultPricingConfig(),
		RatingRequestDelay: 30 * time.Minute,
	}
}

type Service struct {
	store       Store
	restaurants restaurants.Directory
	payments    payments.Gateway
	notifier    notify.Gateway
	assigner    DriverAssigner
	cfg         Config
	now         func() time.Time
}

type Option func(*Service)

// WithClock overrides the service clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, dir restaurants.Directory, pay payments.Gateway, notifier notify.Gateway, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:       store,
		restaurants: dir,
		payments:    pay,
		notifier:    notifier,
		cfg:         cfg,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDriverAssigner wires the tracking service in after construction; both
// services exist before either knows about the other.
func (s *Service) SetDriverAssigner(a DriverAssigner) {
	s.assigner = a
}

func (s *Service) Store() Store {
	return s.store
}

type ItemInput struct {
	MenuItemID     types.ID
	Quantity       int
	Customizations []Customization
}

type CreateCommand struct {
	UserID       types.ID
	RestaurantID types.ID
	Items        []ItemInput
	Delivery     DeliveryLocation

	// Set by the group coordinator and the scheduler, never by API clients.
	Group        *GroupOrder
	Schedule     *ScheduleConfig
	ScheduledFor *time.Time
	TemplateID   *types.ID
}

type TransitionCommand struct {
	OrderID  types.ID
	To       Status
	Location *types.Point
	Note     string
}

// Create validates the restaurant is open and the delivery point in radius,
// prices the items, and persists a pending order. The first tracking event is
// appended on the first transition, not here.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.UserID.IsZero() || cmd.RestaurantID.IsZero() {
		return nil, fmt.Errorf("%w: user and restaurant are required", ErrValidation)
	}
	if len(cmd.Items) == 0 && cmd.Group == nil {
		return nil, fmt.Errorf("%w: order has no items", ErrValidation)
	}
	if !cmd.Delivery.Position.Valid() {
		return nil, fmt.Errorf("%w: delivery coordinates out of range", ErrValidation)
	}

	rest, err := s.restaurants.Get(ctx, cmd.RestaurantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	// Scheduled orders are validated against their fire time, not creation time.
	effective := now
	if cmd.ScheduledFor != nil {
		effective = *cmd.ScheduledFor
	}
	if !rest.OpenAt(effective) {
		return nil, fmt.Errorf("%w: restaurant %s is closed at %s", ErrValidation, rest.ID, effective.Format(time.RFC3339))
	}

	distM, err := geo.Distance(rest.Location, cmd.Delivery.Position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	distKm := distM / 1000.0
	if distKm > rest.DeliveryRadiusKm {
		return nil, fmt.Errorf("%w: delivery point is %.1f km from restaurant %s, radius is %.1f km",
			ErrValidation, distKm, rest.ID, rest.DeliveryRadiusKm)
	}

	items, err := PriceItems(rest, cmd.Items)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:            types.NewID(),
		UserID:        cmd.UserID,
		RestaurantID:  cmd.RestaurantID,
		Items:         items,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Delivery:      cmd.Delivery,
		Group:         cmd.Group,
		Schedule:      cmd.Schedule,
		IsScheduled:   cmd.Schedule != nil,
		ScheduledFor:  cmd.ScheduledFor,
		TemplateID:    cmd.TemplateID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	applyTotals(o, distKm, s.cfg.Pricing)

	eta := geo.EstimateDeliveryTime(distM, geo.TrafficMultiplier(effective.Hour()), effective)
	o.EstimatedDeliveryAt = &eta

	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Transition moves the order along the state machine, appends a tracking
// event and runs the status-specific side effects. A ConcurrencyConflict from
// the store surfaces as ErrConflict; the caller re-reads and retries.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, cmd.To) {
		return nil, fmt.Errorf("%w: order %s cannot go %s -> %s", ErrInvalidTransition, o.ID, o.Status, cmd.To)
	}
	if cmd.To == StatusOutForDelivery && o.DriverID == nil {
		return nil, fmt.Errorf("%w: order %s has no assigned driver", ErrValidation, o.ID)
	}

	now := s.now()
	o.Status = cmd.To
	o.UpdatedAt = now

	switch cmd.To {
	case StatusDelivered:
		t := now
		o.ActualDeliveryAt = &t
		if o.Group != nil {
			o.Group.Settle()
		}
	case StatusCancelled:
		if o.Group != nil {
			o.Group.Settle()
		}
	}

	if err := s.store.Update(ctx, o); err != nil {
		return nil, err
	}

	// Participant rows are written through their own path, so a settle has to
	// flush the status changes explicitly.
	if o.Group != nil && o.Status.Terminal() {
		for _, p := range o.Group.Participants {
			if err := s.store.UpsertParticipant(ctx, o.ID, p); err != nil {
				return nil, err
			}
		}
	}

	ev := TrackingEvent{Status: cmd.To, Timestamp: now, Note: cmd.Note}
	if cmd.Location != nil {
		ev.Location = *cmd.Location
	}
	if err := s.store.AppendTracking(ctx, o.ID, ev); err != nil {
		return nil, err
	}
	o.Tracking = append(o.Tracking, ev)

	s.notifier.Publish(ctx, notify.StatusUpdated{OrderID: o.ID, Status: string(cmd.To), Timestamp: now, Note: cmd.Note})

	// Side effects run after the state write has won the race.
	switch cmd.To {
	case StatusConfirmed:
		if err := s.capturePayment(ctx, o); err != nil {
			return o, err
		}
	case StatusPreparing:
		if s.assigner != nil {
			// No driver available is surfaced, not retried; the order stays preparing.
			if err := s.assigner.Assign(ctx, o.ID); err != nil {
				return o, err
			}
		}
	case StatusDelivered:
		s.deferRatingRequest(o.ID, o.UserID)
		if o.Group != nil {
			s.notifier.Publish(ctx, notify.GroupOrderUpdate{OrderID: o.ID, Type: "finalized"})
		}
	case StatusCancelled:
		if o.DriverID != nil && s.assigner != nil {
			if err := s.assigner.Release(ctx, *o.DriverID); err != nil {
				log.Printf("order: release driver %s for order %s: %v", *o.DriverID, o.ID, err)
			}
		}
		if o.Group != nil {
			s.notifier.Publish(ctx, notify.GroupOrderUpdate{OrderID: o.ID, Type: "finalized"})
		}
		if o.PaymentStatus == PaymentPaid {
			if err := s.refund(ctx, o, cmd.Note); err != nil {
				return o, err
			}
		}
	}
	return o, nil
}

// Reorder re-creates a past order with its items and address at current
// prices. Only the original owner may reorder.
func (s *Service) Reorder(ctx context.Context, orderID, userID types.ID) (*Order, error) {
	prev, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if prev.UserID != userID {
		return nil, fmt.Errorf("%w: order %s, user %s", ErrForbidden, orderID, userID)
	}

	inputs := make([]ItemInput, len(prev.Items))
	for i, li := range prev.Items {
		inputs[i] = ItemInput{MenuItemID: li.MenuItemID, Quantity: li.Quantity, Customizations: li.Customizations}
	}
	return s.Create(ctx, CreateCommand{
		UserID:       userID,
		RestaurantID: prev.RestaurantID,
		Items:        inputs,
		Delivery:     prev.Delivery,
	})
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID types.ID) ([]*Order, error) {
	return s.store.ListByUser(ctx, userID)
}

// PriceItems resolves menu prices for the requested items. Quantity and menu
// membership are validated here; prices are always the menu's current ones.
func PriceItems(rest *restaurants.Restaurant, inputs []ItemInput) ([]LineItem, error) {
	items := make([]LineItem, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity %d for item %s", ErrValidation, in.Quantity, in.MenuItemID)
		}
		mi, ok := rest.Item(in.MenuItemID)
		if !ok {
			return nil, fmt.Errorf("%w: item %s is not on the menu", ErrValidation, in.MenuItemID)
		}
		li := LineItem{
			MenuItemID:     mi.ID,
			Name:           mi.Name,
			Quantity:       in.Quantity,
			UnitPrice:      mi.UnitPrice,
			Customizations: in.Customizations,
		}
		li.LineTotal = lineTotal(li)
		items = append(items, li)
	}
	return items, nil
}

// RecomputeGroupTotals rebuilds a group order's items from its joined
// participants and re-applies pricing. Retries around racing writers the same
// way payment bookkeeping does.
func (s *Service) RecomputeGroupTotals(ctx context.Context, orderID types.ID) (*Order, error) {
	for attempt := 0; attempt < 3; attempt++ {
		o, err := s.store.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Group == nil {
			return nil, fmt.Errorf("%w: order %s is not a group order", ErrValidation, orderID)
		}

		rest, err := s.restaurants.Get(ctx, o.RestaurantID)
		if err != nil {
			return nil, err
		}
		distM, err := geo.Distance(rest.Location, o.Delivery.Position)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}

		items := make([]LineItem, 0, len(o.Items))
		for _, p := range o.Group.Participants {
			if p.Status == ParticipantJoined {
				items = append(items, p.Items...)
			}
		}
		o.Items = items
		applyTotals(o, distM/1000.0, s.cfg.Pricing)
		o.UpdatedAt = s.now()

		err = s.store.Update(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: group totals for order %s", ErrConflict, orderID)
}

func (s *Service) capturePayment(ctx context.Context, o *Order) error {
	if err := s.payments.Capture(ctx, o.ID, o.Total); err != nil {
		if uerr := s.setPaymentStatus(ctx, o, PaymentFailed); uerr != nil {
			log.Printf("order: mark payment failed for %s: %v", o.ID, uerr)
		}
		// The confirmed transition stands; the failure is surfaced for reconciliation.
		return fmt.Errorf("%w: order %s: %v", ErrPaymentCapture, o.ID, err)
	}
	return s.setPaymentStatus(ctx, o, PaymentPaid)
}

func (s *Service) refund(ctx context.Context, o *Order, reason string) error {
	if reason == "" {
		reason = "order cancelled"
	}
	txID, err := s.payments.Refund(ctx, o.ID, o.Total, reason)
	if err != nil {
		// Refund stays pending for manual reconciliation; the cancellation stands.
		return fmt.Errorf("%w: order %s: %v", ErrPaymentRefund, o.ID, err)
	}
	o.RefundTxID = &txID
	return s.setPaymentStatus(ctx, o, PaymentRefunded)
}

// setPaymentStatus retries around racing writers; payment bookkeeping must
// not be lost to a concurrent location update.
func (s *Service) setPaymentStatus(ctx context.Context, o *Order, ps PaymentStatus) error {
	for attempt := 0; attempt < 3; attempt++ {
		o.PaymentStatus = ps
		err := s.store.Update(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		fresh, gerr := s.store.Get(ctx, o.ID)
		if gerr != nil {
			return gerr
		}
		fresh.RefundTxID = o.RefundTxID
		*o = *fresh
	}
	return fmt.Errorf("%w: payment status for order %s", ErrConflict, o.ID)
}

func (s *Service) deferRatingRequest(orderID, userID types.ID) {
	time.AfterFunc(s.cfg.RatingRequestDelay, func() {
		s.notifier.Publish(context.Background(), notify.RatingRequested{OrderID: orderID, UserID: userID})
	})
}
