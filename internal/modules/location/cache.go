// README: Latest-position cache in Redis (hash per technician + GEO set per tenant).
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"fieldops/internal/types"
)

const (
	latestKeyPrefix = "location:latest:%s"
	tenantGeoKey    = "location:geo:%s"
	latestTTL       = 24 * time.Hour

	// geoMaxLat is the largest latitude Redis GEOADD accepts.
	geoMaxLat = 85.05112878
)

// setLatest only overwrites the hash when the incoming ping is not older than the
// stored one, and keeps the tenant GEO set in step with it. OFFLINE technicians
// and positions beyond geoMaxLat leave the GEO set.
var setLatest = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'data', ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
if ARGV[7] == '1' then
	redis.call('GEOADD', KEYS[2], ARGV[4], ARGV[5], ARGV[6])
else
	redis.call('ZREM', KEYS[2], ARGV[6])
end
return 1
`)

type Cache struct {
	redis *redis.Client
}

func NewCache(redis *redis.Client) *Cache {
	return &Cache{redis: redis}
}

// SetLatest reports whether l replaced the cached position.
func (c *Cache) SetLatest(ctx context.Context, l *TechnicianLocation) (bool, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return false, err
	}
	visible := "1"
	if l.Status == StatusOffline || math.Abs(l.Lat) > geoMaxLat {
		visible = "0"
	}
	n, err := setLatest.Run(ctx, c.redis,
		[]string{latestKey(l.UserID), geoKey(l.TenantID)},
		l.RecordedAt.UnixMilli(), data, int(latestTTL.Seconds()),
		l.Lng, l.Lat, string(l.UserID), visible,
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Latest returns nil on a cache miss.
func (c *Cache) Latest(ctx context.Context, userID types.ID) (*TechnicianLocation, error) {
	raw, err := c.redis.HGet(ctx, latestKey(userID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l TechnicianLocation
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Nearby lists technicians of tenantID within radiusKm of p, closest first.
func (c *Cache) Nearby(ctx context.Context, tenantID types.ID, p types.Point, radiusKm float64) ([]Nearby, error) {
	results, err := c.redis.GeoRadius(ctx, geoKey(tenantID), p.Lng, p.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Nearby, len(results))
	for i, r := range results {
		out[i] = Nearby{
			UserID:     types.ID(r.Name),
			Position:   types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		}
	}
	return out, nil
}

func latestKey(userID types.ID) string {
	return fmt.Sprintf(latestKeyPrefix, string(userID))
}

func geoKey(tenantID types.ID) string {
	return fmt.Sprintf(tenantGeoKey, string(tenantID))
}
