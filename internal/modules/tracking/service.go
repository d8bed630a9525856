// README: Driver assignment and live tracking service.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dishpatch/internal/geo"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/notify"
	"dishpatch/internal/restaurants"
	"dishpatch/internal/types"
)

var (
	// ErrNoDriverAvailable is a capacity condition, not a validation failure:
	// the order keeps its status and the caller decides whether to retry.
	ErrNoDriverAvailable = errors.New("no driver available")
	ErrDriverMismatch    = errors.New("driver does not match order assignment")
)

// Pool is the shared driver pool. Claim is atomic: of two concurrent claims
// for the same driver exactly one succeeds.
type Pool interface {
	FindNearby(ctx context.Context, origin types.Point, radiusKm float64) ([]Driver, error)
	Claim(ctx context.Context, driverID types.ID) (bool, error)
	Release(ctx context.Context, driverID types.ID) error
	UpdatePosition(ctx context.Context, driverID types.ID, pos types.Point) error
}

type Config struct {
	SearchRadiusKm     float64
	ETAChangeThreshold time.Duration
}

func DefaultConfig() Config {
	return Config{
		SearchRadiusKm:     5.0,
		ETAChangeThreshold: 5 * time.Minute,
	}
}

type Service struct {
	orders      order.Store
	pool        Pool
	restaurants restaurants.Directory
	notifier    notify.Gateway
	cfg         Config
	now         func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(orders order.Store, pool Pool, dir restaurants.Directory, notifier notify.Gateway, cfg Config, opts ...Option) *Service {
	s := &Service{
		orders:      orders,
		pool:        pool,
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

// Assign claims the nearest available driver within the search radius of the
// restaurant, computes the route, and writes driver, route and ETA onto the
// order. Implements order.DriverAssigner.
func (s *Service) Assign(ctx context.Context, orderID types.ID) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.DriverID != nil {
		return nil // already assigned
	}

	rest, err := s.restaurants.Get(ctx, o.RestaurantID)
	if err != nil {
		return err
	}

	drivers, err := s.pool.FindNearby(ctx, rest.Location, s.cfg.SearchRadiusKm)
	if err != nil {
		return err
	}
	geo.SortByDistance(drivers, func(d Driver) float64 { return d.DistanceM })

	var claimed *Driver
	for i := range drivers {
		ok, err := s.pool.Claim(ctx, drivers[i].ID)
		if err != nil {
			return err
		}
		if ok {
			claimed = &drivers[i]
			break
		}
	}
	if claimed == nil {
		return fmt.Errorf("%w: order %s, no drivers within %.1f km of restaurant %s",
			ErrNoDriverAvailable, orderID, s.cfg.SearchRadiusKm, rest.ID)
	}

	now := s.now()
	route, err := geo.OptimalRoute(claimed.Position, rest.Location, o.Delivery.Position, now)
	if err != nil {
		releaseErr := s.pool.Release(ctx, claimed.ID)
		return errors.Join(err, releaseErr)
	}

	o.DriverID = &claimed.ID
	o.Route = &route
	o.EstimatedDeliveryAt = &route.ETA
	o.UpdatedAt = now
	if err := s.orders.Update(ctx, o); err != nil {
		// The claim must not leak if the order write loses its race.
		if rerr := s.pool.Release(ctx, claimed.ID); rerr != nil {
			log.Printf("tracking: release driver %s after failed assign: %v", claimed.ID, rerr)
		}
		return err
	}

	ev := order.TrackingEvent{Status: o.Status, Timestamp: now, Location: claimed.Position, Note: "driver assigned"}
	if err := s.orders.AppendTracking(ctx, o.ID, ev); err != nil {
		return err
	}

	s.notifier.Publish(ctx, notify.DriverAssigned{
		OrderID:               o.ID,
		DriverID:              claimed.ID,
		DriverName:            claimed.Name,
		EstimatedDeliveryTime: route.ETA,
		Route:                 &route,
		Vehicle:               claimed.Vehicle,
	})
	return nil
}

// Release returns a driver to the pool. Implements order.DriverAssigner.
func (s *Service) Release(ctx context.Context, driverID types.ID) error {
	return s.pool.Release(ctx, driverID)
}

// UpdateDriverLocation ingests one position ping: recompute distance, ETA and
// route, append a tracking event, and only move the stored ETA (and notify)
// when the change exceeds the threshold. Stale pings are dropped.
func (s *Service) UpdateDriverLocation(ctx context.Context, ping LocationPing) error {
	if !ping.Position.Valid() {
		return fmt.Errorf("%w: ping coordinates out of range", order.ErrValidation)
	}

	o, err := s.orders.Get(ctx, ping.OrderID)
	if err != nil {
		return err
	}
	if o.DriverID == nil || *o.DriverID != ping.DriverID {
		return fmt.Errorf("%w: order %s, driver %s", ErrDriverMismatch, ping.OrderID, ping.DriverID)
	}
	if o.Status.Terminal() {
		return fmt.Errorf("%w: order %s is %s", order.ErrValidation, o.ID, o.Status)
	}

	// Out-of-order delivery: never let an older ping overwrite the latest route.
	if last := o.LastTracking(); last != nil && ping.At.Before(last.Timestamp) {
		log.Printf("tracking: dropped stale ping for order %s (%s < %s)", o.ID, ping.At.Format(time.RFC3339), last.Timestamp.Format(time.RFC3339))
		return nil
	}

	rest, err := s.restaurants.Get(ctx, o.RestaurantID)
	if err != nil {
		return err
	}

	now := s.now()
	distM, err := geo.Distance(ping.Position, o.Delivery.Position)
	if err != nil {
		return fmt.Errorf("%w: %v", order.ErrValidation, err)
	}
	eta := geo.EstimateDeliveryTime(distM, geo.TrafficMultiplier(now.Hour()), now)
	route, err := geo.OptimalRoute(ping.Position, rest.Location, o.Delivery.Position, now)
	if err != nil {
		return fmt.Errorf("%w: %v", order.ErrValidation, err)
	}

	etaChanged := o.EstimatedDeliveryAt == nil || absDuration(eta.Sub(*o.EstimatedDeliveryAt)) > s.cfg.ETAChangeThreshold

	// The route snapshot and tracking event are recorded either way; the
	// stored ETA only moves past the threshold to avoid notification noise.
	o.Route = &route
	if etaChanged {
		o.EstimatedDeliveryAt = &eta
	}
	o.UpdatedAt = now
	if err := s.orders.Update(ctx, o); err != nil {
		return err
	}

	ev := order.TrackingEvent{Status: o.Status, Timestamp: ping.At, Location: ping.Position, Note: "location update"}
	if err := s.orders.AppendTracking(ctx, o.ID, ev); err != nil {
		return err
	}

	if err := s.pool.UpdatePosition(ctx, ping.DriverID, ping.Position); err != nil {
		log.Printf("tracking: update pool position for driver %s: %v", ping.DriverID, err)
	}

	s.notifier.Publish(ctx, notify.LocationUpdate{
		OrderID:               o.ID,
		Location:              ping.Position,
		EstimatedDeliveryTime: *o.EstimatedDeliveryAt,
		Status:                string(o.Status),
	})
	if etaChanged {
		s.notifier.Publish(ctx, notify.DeliveryTimeUpdate{
			OrderID:          o.ID,
			NewEstimatedTime: eta,
			Reason:           "driver location update",
		})
	}
	return nil
}

// Snapshot returns the read-only tracking projection for an order.
func (s *Service) Snapshot(ctx context.Context, orderID types.ID) (*Snapshot, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		OrderID:   o.ID,
		Status:    o.Status,
		DriverID:  o.DriverID,
		Route:     o.Route,
		Events:    o.Tracking,
		UpdatedAt: o.UpdatedAt,
	}, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
