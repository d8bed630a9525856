// README: In-memory order store mirroring the Postgres semantics (tests and local dev).
package order

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"dishpatch/internal/types"
)

// MemStore is an in-memory Store with the same concurrency semantics as
// PostgresStore: versioned compare-and-swap updates, keyed participant
// upserts, append-only tracking. Used in tests and local development.
type MemStore struct {
	mu     sync.Mutex
	orders map[types.ID]*Order
}

func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[types.ID]*Order)}
}

func (s *MemStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s already exists", ErrConflict, o.ID)
	}
	// Same uniqueness the orders table enforces on (template_id, scheduled_for).
	if o.TemplateID != nil && o.ScheduledFor != nil {
		for _, existing := range s.orders {
			if existing.TemplateKey() == *o.TemplateID &&
				existing.ScheduledFor != nil && existing.ScheduledFor.Equal(*o.ScheduledFor) {
				return fmt.Errorf("%w: scheduled instance for %s at %s exists", ErrConflict, *o.TemplateID, o.ScheduledFor)
			}
		}
	}
	s.orders[o.ID] = clone(o)
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(o), nil
}

func (s *MemStore) ListByUser(_ context.Context, userID types.ID) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) Update(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, o.ID)
	}
	if cur.StatusVersion != o.StatusVersion {
		return fmt.Errorf("%w: order %s at version %d", ErrConflict, o.ID, o.StatusVersion)
	}

	next := clone(o)
	// Tracking and participants are owned by their dedicated write paths,
	// matching the relational layout.
	next.Tracking = cur.Tracking
	if next.Group != nil && cur.Group != nil {
		next.Group.Participants = cur.Group.Participants
	}
	next.StatusVersion++
	s.orders[o.ID] = next
	o.StatusVersion++
	return nil
}

func (s *MemStore) AppendTracking(_ context.Context, orderID types.ID, ev TrackingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	o.Tracking = append(o.Tracking, ev)
	return nil
}

func (s *MemStore) UpsertParticipant(_ context.Context, orderID types.ID, p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if o.Group == nil {
		o.Group = &GroupOrder{}
	}
	for i := range o.Group.Participants {
		if o.Group.Participants[i].UserID == p.UserID {
			o.Group.Participants[i] = p
			return nil
		}
	}
	o.Group.Participants = append(o.Group.Participants, p)
	return nil
}

func (s *MemStore) DueScheduled(_ context.Context, now time.Time) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Order
	for _, o := range s.orders {
		if o.IsScheduled && o.Status == StatusPending && o.ScheduledFor != nil && !o.ScheduledFor.After(now) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(*out[j].ScheduledFor) })
	return out, nil
}

func (s *MemStore) ScheduledInstanceExists(_ context.Context, templateID types.ID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if (o.TemplateKey() == templateID || o.ID == templateID) &&
			o.ScheduledFor != nil && o.ScheduledFor.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

func clone(o *Order) *Order {
	raw, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}
	var out Order
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}
