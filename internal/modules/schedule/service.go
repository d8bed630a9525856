// README: Scheduler for one-off and recurring orders; a ticker loop over persisted state.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

type Config struct {
	Tick time.Duration
}

func DefaultConfig() Config {
	return Config{Tick: time.Minute}
}

type Service struct {
	orders *order.Service
	cfg    Config
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(orders *order.Service, cfg Config, opts ...Option) *Service {
	s := &Service{orders: orders, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateCommand struct {
	UserID       types.ID
	RestaurantID types.ID
	Items        []order.ItemInput
	Delivery     order.DeliveryLocation
	Config       order.ScheduleConfig
}

// Schedule validates the recurrence config and persists the first instance as
// a pending order carrying its fire time.
func (s *Service) Schedule(ctx context.Context, cmd CreateCommand) (*order.Order, error) {
	cfg := cmd.Config
	if err := validateConfig(cfg, s.now()); err != nil {
		return nil, err
	}

	first := cfg.ScheduledAt
	if !matchesConstraints(cfg, first) {
		next, ok := NextFire(cfg, first)
		if !ok {
			return nil, fmt.Errorf("%w: no fire time satisfies the recurrence before its end date", order.ErrValidation)
		}
		first = next
	}

	return s.orders.Create(ctx, order.CreateCommand{
		UserID:       cmd.UserID,
		RestaurantID: cmd.RestaurantID,
		Items:        cmd.Items,
		Delivery:     cmd.Delivery,
		Schedule:     &cfg,
		ScheduledFor: &first,
	})
}

// Update replaces the recurrence config of a still-pending scheduled order.
func (s *Service) Update(ctx context.Context, orderID, userID types.ID, cfg order.ScheduleConfig) (*order.Order, error) {
	o, err := s.owned(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg, s.now()); err != nil {
		return nil, err
	}

	first := cfg.ScheduledAt
	if !matchesConstraints(cfg, first) {
		next, ok := NextFire(cfg, first)
		if !ok {
			return nil, fmt.Errorf("%w: no fire time satisfies the recurrence before its end date", order.ErrValidation)
		}
		first = next
	}

	o.Schedule = &cfg
	o.ScheduledFor = &first
	o.UpdatedAt = s.now()
	if err := s.orders.Store().Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Cancel stops a scheduled order before it fires. Cancelling the pending
// instance also deregisters the recurrence: nothing pending remains to fire.
func (s *Service) Cancel(ctx context.Context, orderID, userID types.ID) error {
	if _, err := s.owned(ctx, orderID, userID); err != nil {
		return err
	}
	_, err := s.orders.Transition(ctx, order.TransitionCommand{OrderID: orderID, To: order.StatusCancelled, Note: "schedule cancelled"})
	return err
}

func (s *Service) owned(ctx context.Context, orderID, userID types.ID) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("%w: order %s, user %s", order.ErrForbidden, orderID, userID)
	}
	if !o.IsScheduled || o.Schedule == nil {
		return nil, fmt.Errorf("%w: order %s is not scheduled", order.ErrValidation, orderID)
	}
	if o.Status != order.StatusPending {
		return nil, fmt.Errorf("%w: scheduled order %s already fired (%s)", order.ErrValidation, orderID, o.Status)
	}
	return o, nil
}

// Run drives the scheduler until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	log.Printf("schedule: loop started, tick %s", s.cfg.Tick)
	for {
		select {
		case <-ctx.Done():
			log.Println("schedule: loop stopped")
			return
		case <-ticker.C:
			s.FireDue(ctx)
		}
	}
}

// FireDue fires every scheduled order whose time has come. Errors are logged
// per order; one bad order never blocks the rest.
func (s *Service) FireDue(ctx context.Context) {
	now := s.now()
	due, err := s.orders.Store().DueScheduled(ctx, now)
	if err != nil {
		log.Printf("schedule: list due orders: %v", err)
		return
	}
	for _, o := range due {
		if err := s.fire(ctx, o.ID); err != nil {
			log.Printf("schedule: fire order %s: %v", o.ID, err)
		}
	}
}

// fire confirms one due instance and, for recurring configs, materializes the
// next one. A cancellation racing the fire wins: the transition fails and the
// recurrence dies with the cancelled instance.
func (s *Service) fire(ctx context.Context, orderID types.ID) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != order.StatusPending {
		return nil
	}

	if _, err := s.orders.Transition(ctx, order.TransitionCommand{OrderID: o.ID, To: order.StatusConfirmed, Note: "scheduled order fired"}); err != nil {
		if errors.Is(err, order.ErrInvalidTransition) || errors.Is(err, order.ErrConflict) {
			return nil
		}
		// Payment trouble does not stop the recurrence; the confirmed
		// transition stood and the failure is already flagged on the order.
		if !errors.Is(err, order.ErrPaymentCapture) {
			return err
		}
	}

	if o.Schedule == nil || o.Schedule.Frequency == order.FreqOnce || o.ScheduledFor == nil {
		return nil
	}
	next, ok := NextFire(*o.Schedule, *o.ScheduledFor)
	if !ok {
		return nil
	}
	return s.materialize(ctx, o, next)
}

// materialize creates the next instance exactly once per (template, fire time)
// even when two scheduler processes race.
func (s *Service) materialize(ctx context.Context, o *order.Order, at time.Time) error {
	key := o.TemplateKey()
	exists, err := s.orders.Store().ScheduledInstanceExists(ctx, key, at)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	inputs := make([]order.ItemInput, len(o.Items))
	for i, li := range o.Items {
		inputs[i] = order.ItemInput{MenuItemID: li.MenuItemID, Quantity: li.Quantity, Customizations: li.Customizations}
	}
	_, err = s.orders.Create(ctx, order.CreateCommand{
		UserID:       o.UserID,
		RestaurantID: o.RestaurantID,
		Items:        inputs,
		Delivery:     o.Delivery,
		Schedule:     o.Schedule,
		ScheduledFor: &at,
		TemplateID:   &key,
	})
	if errors.Is(err, order.ErrConflict) {
		// Lost the materialization race; the instance exists.
		return nil
	}
	return err
}

// NextFire computes the fire time after the given one, preserving the
// time of day. Returns false when the recurrence has run out.
func NextFire(cfg order.ScheduleConfig, after time.Time) (time.Time, bool) {
	var next time.Time
	switch cfg.Frequency {
	case order.FreqOnce:
		return time.Time{}, false
	case order.FreqDaily:
		next = after.AddDate(0, 0, 1)
	case order.FreqWeekly:
		if len(cfg.DaysOfWeek) == 0 {
			next = after.AddDate(0, 0, 7)
			break
		}
		next = scanForward(after, 7, func(t time.Time) bool {
			return containsWeekday(cfg.DaysOfWeek, t.Weekday())
		})
	case order.FreqMonthly:
		if len(cfg.DaysOfMonth) == 0 {
			next = after.AddDate(0, 1, 0)
			break
		}
		next = scanForward(after, 62, func(t time.Time) bool {
			return containsInt(cfg.DaysOfMonth, t.Day())
		})
	default:
		return time.Time{}, false
	}
	if next.IsZero() {
		return time.Time{}, false
	}
	if cfg.EndDate != nil && next.After(*cfg.EndDate) {
		return time.Time{}, false
	}
	return next, true
}

// scanForward walks day by day from the anchor looking for the first day the
// predicate accepts, up to the horizon.
func scanForward(after time.Time, horizonDays int, ok func(time.Time) bool) time.Time {
	for i := 1; i <= horizonDays; i++ {
		candidate := after.AddDate(0, 0, i)
		if ok(candidate) {
			return candidate
		}
	}
	return time.Time{}
}

func matchesConstraints(cfg order.ScheduleConfig, t time.Time) bool {
	switch cfg.Frequency {
	case order.FreqWeekly:
		return len(cfg.DaysOfWeek) == 0 || containsWeekday(cfg.DaysOfWeek, t.Weekday())
	case order.FreqMonthly:
		return len(cfg.DaysOfMonth) == 0 || containsInt(cfg.DaysOfMonth, t.Day())
	default:
		return true
	}
}

func validateConfig(cfg order.ScheduleConfig, now time.Time) error {
	switch cfg.Frequency {
	case order.FreqOnce, order.FreqDaily, order.FreqWeekly, order.FreqMonthly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", order.ErrValidation, cfg.Frequency)
	}
	if !cfg.ScheduledAt.After(now) {
		return fmt.Errorf("%w: scheduled time %s is not in the future", order.ErrValidation, cfg.ScheduledAt.Format(time.RFC3339))
	}
	if cfg.EndDate != nil && cfg.EndDate.Before(cfg.ScheduledAt) {
		return fmt.Errorf("%w: end date precedes the first scheduled time", order.ErrValidation)
	}
	for _, d := range cfg.DaysOfMonth {
		if d < 1 || d > 31 {
			return fmt.Errorf("%w: day of month %d out of range", order.ErrValidation, d)
		}
	}
	return nil
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, w := range days {
		if w == d {
			return true
		}
	}
	return false
}

func containsInt(vals []int, v int) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}
