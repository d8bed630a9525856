// README: Order store backed by PostgreSQL with optimistic status_version CAS.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dishpatch/internal/geo"
	"dishpatch/internal/types"
)

// PostgresStore persists orders with optimistic concurrency: every write
// checks status_version and bumps it, so racing writers lose cleanly.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	route, err := marshalNullable(o.Route)
	if err != nil {
		return err
	}
	schedule, err := marshalNullable(o.Schedule)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var deadline *time.Time
	if o.Group != nil {
		deadline = &o.Group.JoinDeadline
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, user_id, restaurant_id, items,
			subtotal, tax, delivery_fee, total, currency,
			status, payment_status, status_version,
			address, instructions, lat, lng,
			driver_id, estimated_delivery_at, actual_delivery_at, route,
			group_join_deadline, group_finalized,
			schedule, is_scheduled, scheduled_for, template_id,
			refund_tx_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22,
			$23, $24, $25, $26,
			$27, $28, $29
		)`,
		string(o.ID), string(o.UserID), string(o.RestaurantID), items,
		o.Subtotal.Amount, o.Tax.Amount, o.DeliveryFee.Amount, o.Total.Amount, o.Total.Currency,
		string(o.Status), string(o.PaymentStatus), o.StatusVersion,
		o.Delivery.Address, o.Delivery.Instructions, o.Delivery.Position.Lat, o.Delivery.Position.Lng,
		idPtr(o.DriverID), o.EstimatedDeliveryAt, o.ActualDeliveryAt, route,
		deadline, o.Group != nil && o.Group.Finalized,
		schedule, o.IsScheduled, o.ScheduledFor, idPtr(o.TemplateID),
		o.RefundTxID, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: order %s already exists", ErrConflict, o.ID)
		}
		return err
	}

	if o.Group != nil {
		for _, p := range o.Group.Participants {
			if err := upsertParticipantTx(ctx, tx, o.ID, p); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, restaurant_id, items,
		       subtotal, tax, delivery_fee, total, currency,
		       status, payment_status, status_version,
		       address, instructions, lat, lng,
		       driver_id, estimated_delivery_at, actual_delivery_at, route,
		       group_join_deadline, group_finalized,
		       schedule, is_scheduled, scheduled_for, template_id,
		       refund_tx_id, created_at, updated_at
		FROM orders
		WHERE id = $1`, string(id),
	)

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if o.Group != nil {
		if o.Group.Participants, err = s.participants(ctx, id); err != nil {
			return nil, err
		}
	}
	if o.Tracking, err = s.tracking(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID types.ID) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, restaurant_id, items,
		       subtotal, tax, delivery_fee, total, currency,
		       status, payment_status, status_version,
		       address, instructions, lat, lng,
		       driver_id, estimated_delivery_at, actual_delivery_at, route,
		       group_join_deadline, group_finalized,
		       schedule, is_scheduled, scheduled_for, template_id,
		       refund_tx_id, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`, string(userID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Update writes every mutable field, guarded by the version the caller read.
// Zero rows affected means another writer got there first.
func (s *PostgresStore) Update(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	route, err := marshalNullable(o.Route)
	if err != nil {
		return err
	}
	schedule, err := marshalNullable(o.Schedule)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET items = $1,
		    subtotal = $2, tax = $3, delivery_fee = $4, total = $5,
		    status = $6, payment_status = $7,
		    status_version = status_version + 1,
		    driver_id = $8,
		    estimated_delivery_at = $9, actual_delivery_at = $10,
		    route = $11,
		    group_finalized = $12,
		    schedule = $13, is_scheduled = $14, scheduled_for = $15,
		    refund_tx_id = $16, updated_at = $17
		WHERE id = $18 AND status_version = $19`,
		items,
		o.Subtotal.Amount, o.Tax.Amount, o.DeliveryFee.Amount, o.Total.Amount,
		string(o.Status), string(o.PaymentStatus),
		idPtr(o.DriverID),
		o.EstimatedDeliveryAt, o.ActualDeliveryAt,
		route,
		o.Group != nil && o.Group.Finalized,
		schedule, o.IsScheduled, o.ScheduledFor,
		o.RefundTxID, o.UpdatedAt,
		string(o.ID), o.StatusVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: order %s at version %d", ErrConflict, o.ID, o.StatusVersion)
	}
	o.StatusVersion++
	return nil
}

func (s *PostgresStore) AppendTracking(ctx context.Context, orderID types.ID, ev TrackingEvent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_tracking_events (order_id, status, ts, lat, lng, note)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(orderID), string(ev.Status), ev.Timestamp, ev.Location.Lat, ev.Location.Lng, ev.Note,
	)
	return err
}

// UpsertParticipant is keyed by (order, user) so concurrent joins by
// different participants never clobber each other.
func (s *PostgresStore) UpsertParticipant(ctx context.Context, orderID types.ID, p Participant) error {
	return upsertParticipantTx(ctx, s.db, orderID, p)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertParticipantTx(ctx context.Context, db execer, orderID types.ID, p Participant) error {
	items, err := json.Marshal(p.Items)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO order_participants (order_id, user_id, items, subtotal, currency, status, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, user_id) DO UPDATE
		SET items = EXCLUDED.items,
		    subtotal = EXCLUDED.subtotal,
		    status = EXCLUDED.status,
		    joined_at = EXCLUDED.joined_at`,
		string(orderID), string(p.UserID), items, p.Subtotal.Amount, p.Subtotal.Currency, string(p.Status), p.JoinedAt,
	)
	return err
}

func (s *PostgresStore) DueScheduled(ctx context.Context, now time.Time) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, restaurant_id, items,
		       subtotal, tax, delivery_fee, total, currency,
		       status, payment_status, status_version,
		       address, instructions, lat, lng,
		       driver_id, estimated_delivery_at, actual_delivery_at, route,
		       group_join_deadline, group_finalized,
		       schedule, is_scheduled, scheduled_for, template_id,
		       refund_tx_id, created_at, updated_at
		FROM orders
		WHERE is_scheduled AND status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for`, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ScheduledInstanceExists(ctx context.Context, templateID types.ID, at time.Time) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE (template_id = $1 OR id = $1) AND scheduled_for = $2
		)`, string(templateID), at,
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PostgresStore) participants(ctx context.Context, orderID types.ID) ([]Participant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, items, subtotal, currency, status, joined_at
		FROM order_participants
		WHERE order_id = $1
		ORDER BY user_id`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		var p Participant
		var items []byte
		if err := rows.Scan(&p.UserID, &items, &p.Subtotal.Amount, &p.Subtotal.Currency, &p.Status, &p.JoinedAt); err != nil {
			return nil, err
		}
		if len(items) > 0 {
			if err := json.Unmarshal(items, &p.Items); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) tracking(ctx context.Context, orderID types.ID) ([]TrackingEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, ts, lat, lng, note
		FROM order_tracking_events
		WHERE order_id = $1
		ORDER BY id`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackingEvent
	for rows.Next() {
		var ev TrackingEvent
		if err := rows.Scan(&ev.Status, &ev.Timestamp, &ev.Location.Lat, &ev.Location.Lng, &ev.Note); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var items, route, schedule []byte
	var currency string
	var driverID, templateID *string
	var deadline *time.Time
	var finalized bool

	err := row.Scan(
		&o.ID, &o.UserID, &o.RestaurantID, &items,
		&o.Subtotal.Amount, &o.Tax.Amount, &o.DeliveryFee.Amount, &o.Total.Amount, &currency,
		&o.Status, &o.PaymentStatus, &o.StatusVersion,
		&o.Delivery.Address, &o.Delivery.Instructions, &o.Delivery.Position.Lat, &o.Delivery.Position.Lng,
		&driverID, &o.EstimatedDeliveryAt, &o.ActualDeliveryAt, &route,
		&deadline, &finalized,
		&schedule, &o.IsScheduled, &o.ScheduledFor, &templateID,
		&o.RefundTxID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Subtotal.Currency = currency
	o.Tax.Currency = currency
	o.DeliveryFee.Currency = currency
	o.Total.Currency = currency

	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, err
		}
	}
	if driverID != nil {
		d := types.ID(*driverID)
		o.DriverID = &d
	}
	if templateID != nil {
		t := types.ID(*templateID)
		o.TemplateID = &t
	}
	if len(route) > 0 {
		o.Route = &geo.Route{}
		if err := json.Unmarshal(route, o.Route); err != nil {
			return nil, err
		}
	}
	if len(schedule) > 0 {
		o.Schedule = &ScheduleConfig{}
		if err := json.Unmarshal(schedule, o.Schedule); err != nil {
			return nil, err
		}
	}
	if deadline != nil {
		o.Group = &GroupOrder{JoinDeadline: *deadline, Finalized: finalized}
	}
	return &o, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *geo.Route:
		if t == nil {
			return nil, nil
		}
	case *ScheduleConfig:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func idPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}
