package models

import "testing"

func TestCanAdvanceTo(t *testing.T) {
	cases := []struct {
		from, to TripStatus
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusAccepted, StatusArrivedAtPickup, true},
		{StatusArrivedAtPickup, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusPending, StatusCancelled, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusAccepted, StatusPending, false},
		{StatusInProgress, StatusAccepted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusAccepted, false},
		{StatusPending, TripStatus("warp"), false},
		{TripStatus("warp"), StatusAccepted, false},
	}
	for _, c := range cases {
		if got := c.from.CanAdvanceTo(c.to); got != c.want {
			t.Fatalf("%s -> %s = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Fatal("completed and cancelled are terminal")
	}
	if StatusPending.Terminal() || StatusInProgress.Terminal() {
		t.Fatal("active statuses are not terminal")
	}
}

func TestDriverSummaryOmitsSensitiveState(t *testing.T) {
	d := Driver{ID: "d1", Name: "Sipho", Phone: "+27", VehicleType: "car", Rating: 4.9, Available: true, Online: true, Loc: Coord{Lat: 1, Lon: 2}}
	s := d.Summary()
	if s.ID != "d1" || s.Latitude != 1 || s.Longitude != 2 {
		t.Fatalf("summary = %+v", s)
	}
}
