package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/trip-dispatch/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands plus a metadata hash per
// driver. The location consumer binary writes the same layout, so a fleet of
// dispatch processes can share one index.
type RedisGeo struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key, ctx: context.Background()}
}

func (r *RedisGeo) Upsert(d models.Driver) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Result()
	_ = r.client.HSet(r.ctx, metaKey(d.ID), metaFields(d)).Err()
}

func (r *RedisGeo) Get(id string) (models.Driver, bool) {
	m, err := r.client.HGetAll(r.ctx, metaKey(id)).Result()
	if err != nil || len(m) == 0 {
		return models.Driver{}, false
	}
	d := driverFromMeta(id, m)
	if pos, err := r.client.GeoPos(r.ctx, r.key, id).Result(); err == nil && len(pos) == 1 && pos[0] != nil {
		d.Loc.Lat = pos[0].Latitude
		d.Loc.Lon = pos[0].Longitude
	}
	return d, true
}

func (r *RedisGeo) Update(id string, fn func(*models.Driver)) bool {
	// HSet back the full metadata hash; single-writer per driver in practice
	// (the driver's own session or the orchestrator holding the trip lock).
	d, ok := r.Get(id)
	if !ok {
		return false
	}
	fn(&d)
	r.Upsert(d)
	return true
}

func (r *RedisGeo) Candidates(lat, lon float64, max int) []models.Driver {
	res, err := r.client.GeoRadius(r.ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: 5000, Unit: "km", WithCoord: true, WithDist: true, Count: max, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Driver, 0, len(res))
	for _, g := range res {
		d := models.Driver{ID: g.Name}
		d.Loc.Lat = g.Latitude
		d.Loc.Lon = g.Longitude
		if m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result(); err == nil {
			meta := driverFromMeta(g.Name, m)
			meta.Loc = d.Loc
			d = meta
		}
		out = append(out, d)
	}
	return out
}

func metaKey(id string) string { return "driver:meta:" + id }

func metaFields(d models.Driver) map[string]interface{} {
	return map[string]interface{}{
		"name":         d.Name,
		"phone":        d.Phone,
		"vehicle_type": d.VehicleType,
		"rating":       strconv.FormatFloat(d.Rating, 'f', -1, 64),
		"available":    strconv.FormatBool(d.Available),
		"online":       strconv.FormatBool(d.Online),
		"updated":      time.Now().Format(time.RFC3339),
	}
}

func driverFromMeta(id string, m map[string]string) models.Driver {
	d := models.Driver{ID: id}
	d.Name = m["name"]
	d.Phone = m["phone"]
	d.VehicleType = m["vehicle_type"]
	if v, ok := m["rating"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.Rating = f
		}
	}
	d.Available = m["available"] == "true"
	d.Online = m["online"] == "true"
	return d
}
