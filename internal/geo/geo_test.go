package geo

import (
	"math"
	"testing"

	"github.com/example/trip-dispatch/internal/models"
)

func TestHaversine(t *testing.T) {
	if d := Haversine(0, 0, 0, 0); d != 0 {
		t.Fatalf("zero distance = %v", d)
	}
	// Johannesburg to Pretoria, roughly 53 km
	d := Haversine(-26.2041, 28.0473, -25.7479, 28.2293)
	if math.Abs(d-53) > 3 {
		t.Fatalf("jhb-pta = %v km, want ~53", d)
	}
}

func TestIndexCandidatesOrder(t *testing.T) {
	g := NewIndex()
	g.Upsert(models.Driver{ID: "far", Loc: models.Coord{Lat: 1, Lon: 1}})
	g.Upsert(models.Driver{ID: "near", Loc: models.Coord{Lat: 0.1, Lon: 0.1}})
	g.Upsert(models.Driver{ID: "mid", Loc: models.Coord{Lat: 0.5, Lon: 0.5}})

	out := g.Candidates(0, 0, 0)
	if len(out) != 3 {
		t.Fatalf("got %d candidates", len(out))
	}
	if out[0].ID != "near" || out[1].ID != "mid" || out[2].ID != "far" {
		t.Fatalf("order = %s,%s,%s", out[0].ID, out[1].ID, out[2].ID)
	}
}

func TestIndexCandidatesTieKeepsRegistrationOrder(t *testing.T) {
	g := NewIndex()
	g.Upsert(models.Driver{ID: "b", Loc: models.Coord{Lat: 1, Lon: 0}})
	g.Upsert(models.Driver{ID: "a", Loc: models.Coord{Lat: 1, Lon: 0}})
	out := g.Candidates(0, 0, 2)
	if out[0].ID != "b" || out[1].ID != "a" {
		t.Fatalf("tie order = %s,%s, want b,a", out[0].ID, out[1].ID)
	}
}

func TestIndexCandidatesMax(t *testing.T) {
	g := NewIndex()
	for _, id := range []string{"d1", "d2", "d3"} {
		g.Upsert(models.Driver{ID: id})
	}
	if out := g.Candidates(0, 0, 2); len(out) != 2 {
		t.Fatalf("got %d, want 2", len(out))
	}
}

func TestIndexUpdate(t *testing.T) {
	g := NewIndex()
	g.Upsert(models.Driver{ID: "d1", Available: true})
	ok := g.Update("d1", func(d *models.Driver) { d.Available = false })
	if !ok {
		t.Fatal("update reported missing driver")
	}
	d, _ := g.Get("d1")
	if d.Available {
		t.Fatal("availability flip lost")
	}
	if g.Update("ghost", func(d *models.Driver) {}) {
		t.Fatal("update on missing driver should report false")
	}
}
