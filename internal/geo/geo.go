package geo

import (
	"math"
	"sync"
	"time"

	"github.com/example/trip-dispatch/internal/models"
)

// Geo holds live driver state: position, availability and vehicle metadata.
// It is the population the locator searches and the record the orchestrator
// flips availability on.
type Geo interface {
	Upsert(d models.Driver)
	Get(id string) (models.Driver, bool)
	// Update applies fn to the stored driver under the store's lock, making
	// the read-modify-write atomic with respect to concurrent accept attempts.
	Update(id string, fn func(*models.Driver)) bool
	// Candidates returns up to max drivers nearest to the given point, with
	// no filtering. Order is ascending by distance; equal distances keep the
	// order drivers were first registered in.
	Candidates(lat, lon float64, max int) []models.Driver
}

type Index struct {
	mu      sync.RWMutex
	order   []string // registration order, the tie-break for equal distances
	drivers map[string]models.Driver
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver)}
}

func (g *Index) Upsert(d models.Driver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = time.Now()
	if _, ok := g.drivers[d.ID]; !ok {
		g.order = append(g.order, d.ID)
	}
	g.drivers[d.ID] = d
}

func (g *Index) Get(id string) (models.Driver, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.drivers[id]
	return d, ok
}

func (g *Index) Update(id string, fn func(*models.Driver)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.drivers[id]
	if !ok {
		return false
	}
	fn(&d)
	d.Updated = time.Now()
	g.drivers[id] = d
	return true
}

func (g *Index) Candidates(lat, lon float64, max int) []models.Driver {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.Driver
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, id := range g.order {
		d := g.drivers[id]
		arr = append(arr, pair{d, Haversine(lat, lon, d.Loc.Lat, d.Loc.Lon)})
	}
	// insertion sort keeps registration order for equal distances
	for i := 1; i < len(arr); i++ {
		for j := i; j > 0 && arr[j].dist < arr[j-1].dist; j-- {
			arr[j], arr[j-1] = arr[j-1], arr[j]
		}
	}
	n := max
	if n > len(arr) || n <= 0 {
		n = len(arr)
	}
	out := make([]models.Driver, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].d)
	}
	return out
}

// Haversine distance in kilometers.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
