// README: Restaurant directory backed by PostgreSQL.
package restaurants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dishpatch/internal/types"
)

var ErrNotFound = errors.New("restaurant not found")

// Directory resolves restaurant references. Implemented by PostgresDirectory
// in production and by fakes in tests.
type Directory interface {
	Get(ctx context.Context, id types.ID) (*Restaurant, error)
}

type PostgresDirectory struct {
	db *pgxpool.Pool
}

func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Get(ctx context.Context, id types.ID) (*Restaurant, error) {
	row := d.db.QueryRow(ctx, `
		SELECT id, name, lat, lng, delivery_radius_km,
		       open_minutes, close_minutes, closed_days
		FROM restaurants
		WHERE id = $1`, string(id),
	)

	var r Restaurant
	var openMin, closeMin []int32
	var closedDays []int32
	err := row.Scan(
		&r.ID, &r.Name, &r.Location.Lat, &r.Location.Lng, &r.DeliveryRadiusKm,
		&openMin, &closeMin, &closedDays,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	for i := 0; i < 7 && i < len(openMin) && i < len(closeMin); i++ {
		r.Hours[i] = DayWindow{Open: int(openMin[i]), Close: int(closeMin[i])}
	}
	for _, d := range closedDays {
		if d >= 0 && d < 7 {
			r.Hours[d].Closed = true
		}
	}

	r.Menu, err = d.menu(ctx, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *PostgresDirectory) menu(ctx context.Context, restaurantID types.ID) (map[types.ID]MenuItem, error) {
	rows, err := d.db.Query(ctx, `
		SELECT id, name, unit_price, currency, available
		FROM menu_items
		WHERE restaurant_id = $1`, string(restaurantID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	menu := make(map[types.ID]MenuItem)
	for rows.Next() {
		var item MenuItem
		if err := rows.Scan(&item.ID, &item.Name, &item.UnitPrice.Amount, &item.UnitPrice.Currency, &item.Available); err != nil {
			return nil, err
		}
		menu[item.ID] = item
	}
	return menu, rows.Err()
}
