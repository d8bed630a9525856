// README: Driver pool backed by Redis GEO; claims are atomic removals from the available set.
package tracking

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"dishpatch/internal/types"
)

const (
	availableGeoKey = "tracking:drivers:available"
	driverKeyPrefix = "tracking:driver:"
	// Driver records outlive a shift comfortably; Redis reclaims stragglers.
	driverInfoTTL = 24 * time.Hour
)

// RedisPool holds available drivers in a GEO set keyed by driver id, plus a
// hash per driver with display info. Claiming a driver is a ZRem on the GEO
// set: the removal succeeds for exactly one caller.
type RedisPool struct {
	redis *redis.Client
}

func NewRedisPool(rdb *redis.Client) *RedisPool {
	return &RedisPool{redis: rdb}
}

// SetAvailable registers a driver as claimable at the given position.
func (p *RedisPool) SetAvailable(ctx context.Context, d Driver) error {
	pipe := p.redis.Pipeline()
	pipe.GeoAdd(ctx, availableGeoKey, &redis.GeoLocation{
		Name:      string(d.ID),
		Longitude: d.Position.Lng,
		Latitude:  d.Position.Lat,
	})
	infoKey := driverKey(d.ID)
	pipe.HSet(ctx, infoKey, map[string]interface{}{
		"name":    d.Name,
		"vehicle": d.Vehicle,
		"lat":     formatCoord(d.Position.Lat),
		"lng":     formatCoord(d.Position.Lng),
	})
	pipe.Expire(ctx, infoKey, driverInfoTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPool) FindNearby(ctx context.Context, origin types.Point, radiusKm float64) ([]Driver, error) {
	results, err := p.redis.GeoSearchLocation(ctx, availableGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lng,
			Latitude:   origin.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	drivers := make([]Driver, 0, len(results))
	for _, r := range results {
		d := Driver{
			ID:        types.ID(r.Name),
			Position:  types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceM: r.Dist * 1000,
		}
		info, err := p.redis.HGetAll(ctx, driverKey(d.ID)).Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		d.Name = info["name"]
		d.Vehicle = info["vehicle"]
		drivers = append(drivers, d)
	}
	return drivers, nil
}

// Claim removes the driver from the available set. Returns false when someone
// else got there first.
func (p *RedisPool) Claim(ctx context.Context, driverID types.ID) (bool, error) {
	n, err := p.redis.ZRem(ctx, availableGeoKey, string(driverID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release returns a claimed driver to the available set at their last known
// position. Registration seeds the position, so a claimed driver who never
// pinged still comes back; only an expired info hash leaves them unavailable.
func (p *RedisPool) Release(ctx context.Context, driverID types.ID) error {
	infoKey := driverKey(driverID)
	info, err := p.redis.HGetAll(ctx, infoKey).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	lat, lng := info["lat"], info["lng"]
	if lat == "" || lng == "" {
		return nil
	}
	pos, err := parsePosition(lat, lng)
	if err != nil {
		return err
	}
	return p.redis.GeoAdd(ctx, availableGeoKey, &redis.GeoLocation{
		Name:      string(driverID),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

// UpdatePosition records the driver's latest position. The GEO entry is only
// refreshed when the driver is still in the available set, so a claimed
// driver's pings do not resurrect them as claimable.
func (p *RedisPool) UpdatePosition(ctx context.Context, driverID types.ID, pos types.Point) error {
	infoKey := driverKey(driverID)
	pipe := p.redis.Pipeline()
	pipe.HSet(ctx, infoKey, map[string]interface{}{
		"lat": formatCoord(pos.Lat),
		"lng": formatCoord(pos.Lng),
	})
	pipe.Expire(ctx, infoKey, driverInfoTTL)
	score := pipe.ZScore(ctx, availableGeoKey, string(driverID))
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return err
	}
	if score.Err() == redis.Nil {
		return nil
	}
	return p.redis.GeoAdd(ctx, availableGeoKey, &redis.GeoLocation{
		Name:      string(driverID),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func driverKey(id types.ID) string {
	return driverKeyPrefix + string(id)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parsePosition(lat, lng string) (types.Point, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return types.Point{}, err
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return types.Point{}, err
	}
	return types.Point{Lat: la, Lng: ln}, nil
}
