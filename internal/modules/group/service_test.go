// README: Group coordinator tests (join window, invites, concurrent joins).
package group

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/notify"
	"dishpatch/internal/payments"
	"dishpatch/internal/restaurants"
	"dishpatch/internal/types"
)

var testNow = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

// Delivery 6km east of the restaurant at the origin.
var delivery = order.DeliveryLocation{
	Position: types.Point{Lat: 0, Lng: 0.05396},
	Address:  "6 Klick Road",
}

type fakeDirectory struct {
	rest *restaurants.Restaurant
}

func (d *fakeDirectory) Get(_ context.Context, id types.ID) (*restaurants.Restaurant, error) {
	if d.rest == nil || d.rest.ID != id {
		return nil, restaurants.ErrNotFound
	}
	return d.rest, nil
}

// stubAssigner stamps a fixed driver onto the order so test orders can walk
// the delivery leg of the state machine.
type stubAssigner struct {
	store order.Store
}

func (a stubAssigner) Assign(ctx context.Context, orderID types.ID) error {
	o, err := a.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	id := types.ID("driver-1")
	o.DriverID = &id
	return a.store.Update(ctx, o)
}

func (a stubAssigner) Release(context.Context, types.ID) error { return nil }

type testEnv struct {
	svc    *Service
	orders *order.Service
	store  *order.MemStore
	rec    *notify.Recorder
	clock  *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	var hours restaurants.WeekHours
	for i := range hours {
		hours[i] = restaurants.DayWindow{Open: 0, Close: 24 * 60}
	}
	dir := &fakeDirectory{rest: &restaurants.Restaurant{
		ID:               "rest-1",
		Name:             "Test Kitchen",
		Location:         types.Point{Lat: 0, Lng: 0},
		DeliveryRadiusKm: 10,
		Hours:            hours,
		Menu: map[types.ID]restaurants.MenuItem{
			"burger": {ID: "burger", Name: "Burger", UnitPrice: types.USD(2000), Available: true},
			"fries":  {ID: "fries", Name: "Fries", UnitPrice: types.USD(500), Available: true},
			"shake":  {ID: "shake", Name: "Shake", UnitPrice: types.USD(700), Available: true},
		},
	}}
	clock := &fakeClock{t: testNow}
	store := order.NewMemStore()
	rec := &notify.Recorder{}
	orders := order.NewService(store, dir, payments.Nop{}, rec, order.DefaultConfig(), order.WithClock(clock.Now))
	orders.SetDriverAssigner(stubAssigner{store: store})
	svc := NewService(orders, dir, rec, DefaultConfig(), WithClock(clock.Now))
	return &testEnv{svc: svc, orders: orders, store: store, rec: rec, clock: clock}
}

func basicGroup() CreateCommand {
	return CreateCommand{
		CreatorID:    "alice",
		RestaurantID: "rest-1",
		Delivery:     delivery,
		CreatorItems: []order.ItemInput{{MenuItemID: "burger", Quantity: 1}},
		Invitees:     []types.ID{"bob", "carol"},
	}
}

func TestCreate_GroupOrder(t *testing.T) {
	env := newTestEnv(t)

	o, err := env.svc.Create(context.Background(), basicGroup())
	require.NoError(t, err)
	require.NotNil(t, o.Group)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, testNow.Add(2*time.Hour), o.Group.JoinDeadline)
	require.Len(t, o.Group.Participants, 3)

	creator := o.Group.Participant("alice")
	require.NotNil(t, creator)
	assert.Equal(t, order.ParticipantJoined, creator.Status)
	assert.Equal(t, int64(2000), creator.Subtotal.Amount)

	for _, invitee := range []types.ID{"bob", "carol"} {
		p := o.Group.Participant(invitee)
		require.NotNil(t, p)
		assert.Equal(t, order.ParticipantInvited, p.Status)
	}
	assert.True(t, o.TotalsConsistent())
}

func TestCreate_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	noInvitees := basicGroup()
	noInvitees.Invitees = nil
	_, err := env.svc.Create(ctx, noInvitees)
	assert.ErrorIs(t, err, order.ErrValidation)

	selfInvite := basicGroup()
	selfInvite.Invitees = []types.ID{"alice"}
	_, err = env.svc.Create(ctx, selfInvite)
	assert.ErrorIs(t, err, order.ErrValidation)
}

func TestJoin_AddsItemsAndRecomputesTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, err := env.svc.Create(ctx, basicGroup())
	require.NoError(t, err)
	createdTotal := o.Total.Amount

	updated, err := env.svc.Join(ctx, JoinCommand{
		OrderID: o.ID,
		UserID:  "bob",
		Items:   []order.ItemInput{{MenuItemID: "fries", Quantity: 2}},
	})
	require.NoError(t, err)

	p := updated.Group.Participant("bob")
	require.NotNil(t, p)
	assert.Equal(t, order.ParticipantJoined, p.Status)
	assert.Equal(t, int64(1000), p.Subtotal.Amount)
	require.NotNil(t, p.JoinedAt)

	// Creator's burger plus bob's fries.
	assert.Equal(t, int64(3000), updated.Subtotal.Amount)
	assert.Greater(t, updated.Total.Amount, createdTotal)
	assert.True(t, updated.TotalsConsistent())

	assert.Contains(t, env.rec.Kinds(), "groupOrderUpdate")
}

func TestJoin_ReplacesPreviousItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, err := env.svc.Create(ctx, basicGroup())
	require.NoError(t, err)

	_, err = env.svc.Join(ctx, JoinCommand{OrderID: o.ID, UserID: "bob", Items: []order.ItemInput{{MenuItemID: "fries", Quantity: 2}}})
	require.NoError(t, err)
	updated, err := env.svc.Join(ctx, JoinCommand{OrderID: o.ID, UserID: "bob", Items: []order.ItemInput{{MenuItemID: "shake", Quantity: 1}}})
	require.NoError(t, err)

	// 2000 (alice) + 700 (bob's replacement), not + 1000 + 700.
	assert.Equal(t, int64(2700), updated.Subtotal.Amount)
}

func TestJoin_AfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, err := env.svc.Create(ctx, basicGroup())
	require.NoError(t, err)

	env.clock.Advance(2*time.Hour + time.Minute)

	_, err = env.svc.Join(ctx, JoinCommand{OrderID: o.ID, UserID: "bob", Items: []order.ItemInput{{MenuItemID: "fries", Quantity: 1}}})
	assert.ErrorIs(t, err, order.ErrValidation)
}

func TestJoin_Uninvited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, err := env.svc.Create(ctx, basicGroup())
	require.NoError(t, err)

	_, err = env.svc.Join(ctx, JoinCommand{OrderID: o.ID, UserID: "mallory", Items: []order.ItemInput{{MenuItemID: "fries", Quantity: 1}}})
	assert.ErrorIs(t, err, order.ErrForbidden)
}

func TestJoin_AfterConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, err := env.svc.Create(ctx, basicGroup())
	require.NoError(t, err)

	_, err = env.orders.Transition(ctx, order.TransitionCommand{OrderID: o.ID, To: order.StatusConfirmed})
	require.NoError(t, err)

	_, err = env.svc.Join(ctx, JoinCommand{OrderID: o.ID, UserID: "bob", Items: []order.ItemInput{{MenuItemID: "fries", Quantity: 1}}})
	assert.ErrorIs(t, err, order.ErrValidation)
}

func TestJoin_NotAGroupOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plain, err := env.orders.Create(ctx, order.CreateCommand{
		UserID:       "alice",
		RestaurantID: "rest-1",
		Items:        []order.ItemInput{{MenuItemID: "burger", Quantity: 1}},
		Delivery:     delivery,
	})
	require.NoError(t, err)

	_, err = env.svc.Join(ctx, JoinCommand{OrderID: plain.ID, UserID: "bob", Items: []order.ItemInput{{MenuItemID: "fries", Quantity: 1}}})
	assert.ErrorIs(t, err, order.ErrValidation)
}

func TestDecline_RemovesItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, err := env.svc.Create(ctx, basicGroup())
	require.NoError(t, err)

	_, err = env.svc.Join(ctx, JoinCommand{OrderID: o.ID, UserID: "bob", Items: []order.ItemInput{{MenuItemID: "fries", Quantity: 2}}})
	require.NoError(t, err)
	updated, err := env.svc.Decline(ctx, o.ID, "bob")
	require.NoError(t, err)

	p := updated.Group.Participant("bob")
	require.NotNil(t, p)
	assert.Equal(t, order.ParticipantDeclined, p.Status)
	assert.Equal(t, int64(2000), updated.Subtotal.Amount)
	assert.True(t, updated.TotalsConsistent())
}

func TestDeliveredSettlesInvitations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, err := env.svc.Create(ctx, basicGroup())
	require.NoError(t, err)
	_, err = env.svc.Join(ctx, JoinCommand{OrderID: o.ID, UserID: "bob", Items: []order.ItemInput{{MenuItemID: "fries", Quantity: 1}}})
	require.NoError(t, err)

	for _, next := range []order.Status{order.StatusConfirmed, order.StatusPreparing, order.StatusReadyForPickup, order.StatusOutForDelivery, order.StatusDelivered} {
		_, err = env.orders.Transition(ctx, order.TransitionCommand{OrderID: o.ID, To: next})
		require.NoError(t, err)
	}

	final, err := env.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, final.Group)
	assert.True(t, final.Group.Finalized)
	assert.Equal(t, order.ParticipantJoined, final.Group.Participant("bob").Status)
	assert.Equal(t, order.ParticipantDeclined, final.Group.Participant("carol").Status)
}

func TestConcurrentJoinsBothLand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, err := env.svc.Create(ctx, basicGroup())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	joins := []JoinCommand{
		{OrderID: o.ID, UserID: "bob", Items: []order.ItemInput{{MenuItemID: "fries", Quantity: 1}}},
		{OrderID: o.ID, UserID: "carol", Items: []order.ItemInput{{MenuItemID: "shake", Quantity: 1}}},
	}
	for i, cmd := range joins {
		wg.Add(1)
		go func(i int, cmd JoinCommand) {
			defer wg.Done()
			_, errs[i] = env.svc.Join(ctx, cmd)
		}(i, cmd)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil && !errors.Is(err, order.ErrConflict) {
			t.Fatalf("unexpected join error: %v", err)
		}
	}

	final, err := env.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ParticipantJoined, final.Group.Participant("bob").Status)
	assert.Equal(t, order.ParticipantJoined, final.Group.Participant("carol").Status)

	// Whichever recompute ran last saw both participants.
	recomputed, err := env.orders.RecomputeGroupTotals(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000+500+700), recomputed.Subtotal.Amount)
	assert.True(t, recomputed.TotalsConsistent())
}
