// README: Group order coordinator: invite list, join window, per-participant items.
package group

import (
	"context"
	"fmt"
	"time"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/notify"
	"dishpatch/internal/restaurants"
	"dishpatch/internal/types"
)

type Config struct {
	JoinWindow time.Duration
}

func DefaultConfig() Config {
	return Config{JoinWindow: 2 * time.Hour}
}

type Service struct {
	orders      *order.Service
	restaurants restaurants.Directory
	notifier    notify.Gateway
	cfg         Config
	now         func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(orders *order.Service, dir restaurants.Directory, notifier notify.Gateway, cfg Config, opts ...Option) *Service {
	s := &Service{
		orders:      orders,
		restaurants: dir,
		notifier:    notifier,
		cfg:         cfg,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateCommand struct {
	CreatorID    types.ID
	RestaurantID types.ID
	Delivery     order.DeliveryLocation
	CreatorItems []order.ItemInput
	Invitees     []types.ID
}

type JoinCommand struct {
	OrderID types.ID
	UserID  types.ID
	Items   []order.ItemInput
}

// Create opens a group order: the creator joins immediately with their items,
// invitees get a pending invitation that expires at the join deadline.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*order.Order, error) {
	if cmd.CreatorID.IsZero() {
		return nil, fmt.Errorf("%w: creator is required", order.ErrValidation)
	}
	if len(cmd.Invitees) == 0 {
		return nil, fmt.Errorf("%w: a group order needs at least one invitee", order.ErrValidation)
	}
	for _, inv := range cmd.Invitees {
		if inv == cmd.CreatorID {
			return nil, fmt.Errorf("%w: creator cannot be invited to their own group", order.ErrValidation)
		}
	}

	rest, err := s.restaurants.Get(ctx, cmd.RestaurantID)
	if err != nil {
		return nil, err
	}
	creatorItems, err := order.PriceItems(rest, cmd.CreatorItems)
	if err != nil {
		return nil, err
	}

	now := s.now()
	joinedAt := now
	participants := make([]order.Participant, 0, len(cmd.Invitees)+1)
	participants = append(participants, order.Participant{
		UserID:   cmd.CreatorID,
		Items:    creatorItems,
		Subtotal: subtotalOf(creatorItems),
		Status:   order.ParticipantJoined,
		JoinedAt: &joinedAt,
	})
	for _, inv := range cmd.Invitees {
		participants = append(participants, order.Participant{UserID: inv, Status: order.ParticipantInvited})
	}

	o, err := s.orders.Create(ctx, order.CreateCommand{
		UserID:       cmd.CreatorID,
		RestaurantID: cmd.RestaurantID,
		Items:        cmd.CreatorItems,
		Delivery:     cmd.Delivery,
		Group: &order.GroupOrder{
			Participants: participants,
			JoinDeadline: now.Add(s.cfg.JoinWindow),
		},
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, notify.GroupOrderUpdate{OrderID: o.ID, Type: "created", Participant: cmd.CreatorID})
	return o, nil
}

// Join adds a participant's items before the deadline. Joining twice replaces
// the previous item set; the order totals are recomputed either way.
func (s *Service) Join(ctx context.Context, cmd JoinCommand) (*order.Order, error) {
	o, err := s.admissible(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if len(cmd.Items) == 0 {
		return nil, fmt.Errorf("%w: joining with no items", order.ErrValidation)
	}

	rest, err := s.restaurants.Get(ctx, o.RestaurantID)
	if err != nil {
		return nil, err
	}
	items, err := order.PriceItems(rest, cmd.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := order.Participant{
		UserID:   cmd.UserID,
		Items:    items,
		Subtotal: subtotalOf(items),
		Status:   order.ParticipantJoined,
		JoinedAt: &now,
	}
	if err := s.orders.Store().UpsertParticipant(ctx, o.ID, p); err != nil {
		return nil, err
	}

	updated, err := s.orders.RecomputeGroupTotals(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, notify.GroupOrderUpdate{OrderID: o.ID, Type: "participantJoined", Participant: cmd.UserID})
	return updated, nil
}

// Decline marks an invitation as declined. Declining after having joined
// removes the participant's items from the order.
func (s *Service) Decline(ctx context.Context, orderID, userID types.ID) (*order.Order, error) {
	o, err := s.admissible(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	p := order.Participant{UserID: userID, Status: order.ParticipantDeclined}
	if err := s.orders.Store().UpsertParticipant(ctx, o.ID, p); err != nil {
		return nil, err
	}

	updated, err := s.orders.RecomputeGroupTotals(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, notify.GroupOrderUpdate{OrderID: o.ID, Type: "participantDeclined", Participant: userID})
	return updated, nil
}

// admissible checks the shared join/decline preconditions: the order is a
// pending group order, the deadline has not passed, the user is on the list.
func (s *Service) admissible(ctx context.Context, orderID, userID types.ID) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Group == nil {
		return nil, fmt.Errorf("%w: order %s is not a group order", order.ErrValidation, orderID)
	}
	if o.Status != order.StatusPending || o.Group.Finalized {
		return nil, fmt.Errorf("%w: group order %s is locked in status %s", order.ErrValidation, orderID, o.Status)
	}
	if s.now().After(o.Group.JoinDeadline) {
		return nil, fmt.Errorf("%w: join window for order %s closed at %s",
			order.ErrValidation, orderID, o.Group.JoinDeadline.Format(time.RFC3339))
	}
	if o.Group.Participant(userID) == nil {
		return nil, fmt.Errorf("%w: user %s was not invited to order %s", order.ErrForbidden, userID, orderID)
	}
	return o, nil
}

func subtotalOf(items []order.LineItem) types.Money {
	total := types.USD(0)
	for _, li := range items {
		total = total.Add(li.LineTotal)
	}
	return total
}
