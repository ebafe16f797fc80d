package routes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/trip-dispatch/internal/models"
)

// ErrUnavailable is returned when the route provider failed or timed out.
// Callers surface it as a typed reply; it never crashes a message loop.
var ErrUnavailable = errors.New("route unavailable")

// Route is the provider's answer for a coordinate pair. Duration is a human
// string ("5 min", "1 hour 5 min"); the fare calculator parses it tolerantly.
type Route struct {
	DistanceKm float64 `json:"distance"`
	Duration   string  `json:"duration"`
}

// Estimator is the interface the actors use to get route data.
type Estimator interface {
	Estimate(ctx context.Context, from, to models.Coord) (Route, error)
}

// Cache is a tiny in-memory cache for route lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  Route
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns the cached route and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (Route, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return Route{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return Route{}, false
	}
	return e.v, true
}

// Set stores a route in the cache.
func (c *Cache) Set(a, b models.Coord, v Route) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Cached wraps an Estimator with a TTL cache.
type Cached struct {
	Inner Estimator
	Cache *Cache
}

func (c *Cached) Estimate(ctx context.Context, from, to models.Coord) (Route, error) {
	if v, ok := c.Cache.Get(from, to); ok {
		return v, nil
	}
	v, err := c.Inner.Estimate(ctx, from, to)
	if err != nil {
		return Route{}, err
	}
	c.Cache.Set(from, to, v)
	return v, nil
}
