package locator

import (
	"sort"

	"github.com/example/trip-dispatch/internal/geo"
	"github.com/example/trip-dispatch/internal/models"
)

// DefaultLimit bounds a nearest-driver search when the caller passes 0.
const DefaultLimit = 20

// searchCap is how many raw candidates we pull from the index before
// filtering; filters can only shrink the list, so we over-fetch.
const searchCap = 200

// Service finds the nearest eligible drivers for a pickup point.
type Service struct {
	Geo   geo.Geo
	Limit int
}

// FindNearest filters the driver population to available drivers (and, when
// vehicleTypes is non-empty, to those vehicle tags), sorts ascending by
// great-circle distance from the pickup point and truncates to the limit.
// Equal distances keep the index's candidate order, so results are
// deterministic for a fixed population.
func (s *Service) FindNearest(pickupLat, pickupLon float64, vehicleTypes []string) []models.DriverSummary {
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	wanted := make(map[string]bool, len(vehicleTypes))
	for _, v := range vehicleTypes {
		wanted[v] = true
	}

	cands := s.Geo.Candidates(pickupLat, pickupLon, searchCap)
	type scored struct {
		d    models.Driver
		dist float64
	}
	kept := make([]scored, 0, len(cands))
	for _, d := range cands {
		if !d.Available {
			continue
		}
		if len(wanted) > 0 && !wanted[d.VehicleType] {
			continue
		}
		kept = append(kept, scored{d, geo.Haversine(pickupLat, pickupLon, d.Loc.Lat, d.Loc.Lon)})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].dist < kept[j].dist })

	if len(kept) > limit {
		kept = kept[:limit]
	}
	out := make([]models.DriverSummary, 0, len(kept))
	for _, k := range kept {
		out = append(out, k.d.Summary())
	}
	return out
}
