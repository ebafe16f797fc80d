package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/trip-dispatch/internal/auth"
	"github.com/example/trip-dispatch/internal/dispatch"
	"github.com/example/trip-dispatch/internal/geo"
	"github.com/example/trip-dispatch/internal/groups"
	"github.com/example/trip-dispatch/internal/locator"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/payments"
	"github.com/example/trip-dispatch/internal/routes"
	"github.com/example/trip-dispatch/internal/storage"
)

var testSecret = []byte("test-secret")

type fixedEstimator struct {
	route routes.Route
	err   error
}

func (f *fixedEstimator) Estimate(ctx context.Context, from, to models.Coord) (routes.Route, error) {
	return f.route, f.err
}

type geoSpace struct{ g geo.Geo }

func (s geoSpace) Exists(id string) bool {
	_, ok := s.g.Get(id)
	return ok
}

type harness struct {
	ts      *httptest.Server
	drivers geo.Geo
	trips   storage.TripStore
	pay     *payments.Service
	riders  *auth.MemorySpace
}

func newHarness(t *testing.T, offerWait time.Duration) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	drivers := geo.NewIndex()
	trips := storage.NewMemoryStore()
	pay := payments.NewService(nil)
	hub := groups.NewHub()
	riders := auth.NewMemorySpace()
	est := &fixedEstimator{route: routes.Route{DistanceKm: 10, Duration: "20 min"}}
	loc := &locator.Service{Geo: drivers}

	orch := &dispatch.Orchestrator{
		Trips:        trips,
		Drivers:      drivers,
		Locator:      loc,
		Payments:     pay,
		Estimator:    est,
		Hub:          hub,
		Riders:       riders,
		Logger:       logger,
		OfferWait:    offerWait,
		RouteTimeout: time.Second,
		Now:          func() time.Time { return time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC) },
	}
	srv := NewServer(Deps{
		Gate:         &auth.Gate{Secret: testSecret, Drivers: geoSpace{drivers}, Riders: riders},
		Hub:          hub,
		Geo:          drivers,
		Locator:      loc,
		Orch:         orch,
		Estimator:    est,
		Payments:     pay,
		Trips:        trips,
		Riders:       riders,
		Logger:       logger,
		PingInterval: time.Minute,
		RouteTimeout: time.Second,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &harness{ts: ts, drivers: drivers, trips: trips, pay: pay, riders: riders}
}

func (h *harness) addRider(id string) {
	h.riders.Add(models.Rider{ID: id, Name: "Thandi Mokoena", Phone: "+27115550100"})
}

func (h *harness) addDriver(id string) {
	h.drivers.Upsert(models.Driver{ID: id, Name: "n", VehicleType: "car", Available: true, Online: true, Loc: models.Coord{Lat: 0.1, Lon: 0.1}})
}

func (h *harness) dial(t *testing.T, path, subject string) *websocket.Conn {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, subject)
	if err != nil {
		t.Fatal(err)
	}
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + path + "?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMsg reads the next non-ping message as a generic map.
func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("unmarshal %q: %v", payload, err)
		}
		if m["type"] == "ping" {
			continue
		}
		return m
	}
}

func expectType(t *testing.T, m map[string]any, want string) {
	t.Helper()
	if m["type"] != want {
		t.Fatalf("message type = %v, want %s (full: %v)", m["type"], want, m)
	}
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	h := newHarness(t, time.Hour)
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws/trips/user/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, 4001) {
		t.Fatalf("want close 4001, got %v", err)
	}
}

func TestHandshakeRejectsWrongRole(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	conn := h.dial(t, "/ws/trips/driver/", "r1")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, 4403) {
		t.Fatalf("want close 4403, got %v", err)
	}
}

func createTrip(t *testing.T, rider *websocket.Conn) string {
	t.Helper()
	rider.WriteJSON(map[string]any{
		"action":           "create_trip",
		"vehicle_type":     "car",
		"pickup":           "A",
		"destination":      "B",
		"pickup_latitude":  0.0,
		"pickup_longitude": 0.0,
		"dest_latitude":    1.0,
		"dest_longitude":   1.0,
	})
	m := readMsg(t, rider)
	expectType(t, m, "trip_created")
	return m["trip_id"].(string)
}

func TestCreateTripOverWire(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	rider := h.dial(t, "/ws/trips/user/", "r1")

	rider.WriteJSON(map[string]any{
		"action":           "create_trip",
		"vehicle_type":     "car",
		"pickup_latitude":  0.0,
		"pickup_longitude": 0.0,
		"dest_latitude":    1.0,
		"dest_longitude":   1.0,
	})
	m := readMsg(t, rider)
	expectType(t, m, "trip_created")
	if m["estimated_fare"].(float64) != 140 {
		t.Fatalf("fare = %v", m["estimated_fare"])
	}
	if m["status"] != "pending" {
		t.Fatalf("status = %v", m["status"])
	}
}

func TestUnknownRiderAction(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	rider := h.dial(t, "/ws/trips/user/", "r1")

	rider.WriteJSON(map[string]any{"action": "fly_me_there"})
	m := readMsg(t, rider)
	expectType(t, m, "error")
}

func TestOfferAcceptFlow(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	h.addDriver("d1")

	rider := h.dial(t, "/ws/trips/user/", "r1")
	driver := h.dial(t, "/ws/trips/driver/", "d1")

	tripID := createTrip(t, rider)
	if _, err := h.pay.Register(context.Background(), tripID, models.PaymentCash, 140, "ZAR", ""); err != nil {
		t.Fatal(err)
	}

	rider.WriteJSON(map[string]any{"action": "confirm_driver", "trip_id": tripID, "driver_id": "d1"})

	offer := readMsg(t, driver)
	expectType(t, offer, "new_trip_request")
	details := offer["trip_details"].(map[string]any)
	if details["trip_id"] != tripID {
		t.Fatalf("offer trip = %v", details["trip_id"])
	}
	userInfo := details["user_info"].(map[string]any)
	if userInfo["name"] != "Thandi Mokoena" {
		t.Fatalf("offer user_info = %v", userInfo)
	}

	await := readMsg(t, rider)
	expectType(t, await, "awaiting_driver_response")

	driver.WriteJSON(map[string]any{"trip_id": tripID, "driver_response": "accept"})
	ack := readMsg(t, driver)
	expectType(t, ack, "trip_status_update")

	update := readMsg(t, rider)
	expectType(t, update, "trip_status_update")
	if update["status"] != "accepted" {
		t.Fatalf("rider saw status %v", update["status"])
	}

	d, _ := h.drivers.Get("d1")
	if d.Available {
		t.Fatal("accepting driver still available")
	}
}

func TestOfferRejectFlow(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	h.addDriver("d1")
	h.addDriver("d2")

	rider := h.dial(t, "/ws/trips/user/", "r1")
	driver := h.dial(t, "/ws/trips/driver/", "d1")

	tripID := createTrip(t, rider)
	h.pay.Register(context.Background(), tripID, models.PaymentCash, 140, "ZAR", "")

	rider.WriteJSON(map[string]any{"action": "confirm_driver", "trip_id": tripID, "driver_id": "d1"})
	readMsg(t, driver) // the offer
	readMsg(t, rider)  // awaiting_driver_response

	driver.WriteJSON(map[string]any{"trip_id": tripID, "driver_response": "reject"})
	rej := readMsg(t, driver)
	expectType(t, rej, "trip_rejected")

	next := readMsg(t, rider)
	expectType(t, next, "select_new_driver")
	cands := next["available_drivers"].([]any)
	if len(cands) == 0 {
		t.Fatal("no fresh candidates offered")
	}
	for _, c := range cands {
		if c.(map[string]any)["id"] == "d1" {
			t.Fatal("rejecting driver offered again")
		}
	}
}

func TestOfferTimeoutFlow(t *testing.T) {
	h := newHarness(t, 60*time.Millisecond)
	h.addRider("r1")
	h.addDriver("d1")

	rider := h.dial(t, "/ws/trips/user/", "r1")
	driver := h.dial(t, "/ws/trips/driver/", "d1")

	tripID := createTrip(t, rider)
	h.pay.Register(context.Background(), tripID, models.PaymentCash, 140, "ZAR", "")

	rider.WriteJSON(map[string]any{"action": "confirm_driver", "trip_id": tripID, "driver_id": "d1"})
	readMsg(t, driver) // offer arrives, driver stays silent
	readMsg(t, rider)  // awaiting_driver_response

	next := readMsg(t, rider)
	expectType(t, next, "select_new_driver")
	trip, _ := h.trips.GetTrip(tripID)
	if trip.Status != models.StatusPending || trip.DriverID != "" {
		t.Fatalf("trip after timeout = %+v", trip)
	}
}

func TestConfirmWithoutPayment(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	h.addDriver("d1")
	rider := h.dial(t, "/ws/trips/user/", "r1")

	tripID := createTrip(t, rider)
	rider.WriteJSON(map[string]any{"action": "confirm_driver", "trip_id": tripID, "driver_id": "d1"})
	m := readMsg(t, rider)
	expectType(t, m, "error")
	if !strings.Contains(m["message"].(string), "Payment not found") {
		t.Fatalf("message = %v", m["message"])
	}
}

func TestStatusFeedCashCollection(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	h.addDriver("d1")

	rider := h.dial(t, "/ws/trips/user/", "r1")
	driver := h.dial(t, "/ws/trips/driver/", "d1")

	tripID := createTrip(t, rider)
	h.pay.Register(context.Background(), tripID, models.PaymentCash, 140, "ZAR", "")
	rider.WriteJSON(map[string]any{"action": "confirm_driver", "trip_id": tripID, "driver_id": "d1"})
	readMsg(t, driver)
	readMsg(t, rider)
	driver.WriteJSON(map[string]any{"trip_id": tripID, "driver_response": "accept"})
	readMsg(t, driver)
	readMsg(t, rider)

	statusPath := fmt.Sprintf("/ws/trips/status/%s", tripID)
	driverStatus := h.dial(t, statusPath, "d1")
	riderStatus := h.dial(t, statusPath, "r1")

	driverStatus.WriteJSON(map[string]any{"status": "arrived_at_pickup"})

	// rider watcher sees the broadcast status move, then the cash notice
	sawStatus, sawCash := false, false
	for i := 0; i < 2; i++ {
		m := readMsg(t, riderStatus)
		switch m["type"] {
		case "trip_status_update":
			sawStatus = true
		case "trip_payment_update":
			sawCash = true
		}
	}
	if !sawStatus || !sawCash {
		t.Fatalf("rider watcher: status=%v cash=%v", sawStatus, sawCash)
	}

	// the driver gets the same broadcasts plus the direct collect message
	gotCollect := false
	for i := 0; i < 3; i++ {
		m := readMsg(t, driverStatus)
		if m["type"] == "trip_payment_update" {
			if msg, _ := m["message"].(string); strings.Contains(msg, "collect") {
				gotCollect = true
			}
		}
	}
	if !gotCollect {
		t.Fatal("driver never told to collect cash")
	}
}

func TestStatusFeedRiderCannotMutate(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	h.addDriver("d1")
	rider := h.dial(t, "/ws/trips/user/", "r1")
	tripID := createTrip(t, rider)

	riderStatus := h.dial(t, fmt.Sprintf("/ws/trips/status/%s", tripID), "r1")
	riderStatus.WriteJSON(map[string]any{"status": "cancelled"})
	m := readMsg(t, riderStatus)
	expectType(t, m, "info")
	trip, _ := h.trips.GetTrip(tripID)
	if trip.Status != models.StatusPending {
		t.Fatalf("rider mutated status to %s", trip.Status)
	}
}

func TestStatusFeedInvalidStatus(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	h.addDriver("d1")
	rider := h.dial(t, "/ws/trips/user/", "r1")
	tripID := createTrip(t, rider)

	driverStatus := h.dial(t, fmt.Sprintf("/ws/trips/status/%s", tripID), "d1")
	driverStatus.WriteJSON(map[string]any{"status": "teleported"})
	m := readMsg(t, driverStatus)
	expectType(t, m, "error")
}

func TestNearbyFeed(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	h.addDriver("d1")
	h.addDriver("d2")
	h.drivers.Update("d2", func(d *models.Driver) { d.Available = false })

	conn := h.dial(t, "/ws/trips/drivers/all/", "r1")
	conn.WriteJSON(map[string]any{"user_latitude": 0.0, "user_longitude": 0.0})
	m := readMsg(t, conn)
	expectType(t, m, "nearest_drivers")
	list := m["nearest_drivers"].([]any)
	if len(list) != 1 {
		t.Fatalf("got %d drivers, want 1", len(list))
	}
	entry := list[0].(map[string]any)
	if entry["driver"].(map[string]any)["id"] != "d1" {
		t.Fatalf("entry = %v", entry)
	}
	if entry["route_data"] == nil {
		t.Fatal("route data missing")
	}
}

func TestNearbyFeedMissingCoords(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	conn := h.dial(t, "/ws/trips/drivers/all/", "r1")
	conn.WriteJSON(map[string]any{"vehicle_type": []string{"car"}})
	m := readMsg(t, conn)
	expectType(t, m, "error")
	if m["message"] != "Missing user location." {
		t.Fatalf("message = %v", m["message"])
	}
}

func TestLocationFeedFanout(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	h.addDriver("d1")

	follower := h.dial(t, "/ws/trips/user/location/d1", "r1")
	locFeed := h.dial(t, "/ws/trips/driver/location/", "d1")

	// follower reports its own position first so updates arrive enriched
	follower.WriteJSON(map[string]any{"user_latitude": 0.0, "user_longitude": 0.0})
	time.Sleep(50 * time.Millisecond)

	locFeed.WriteJSON(map[string]any{"latitude": 0.5, "longitude": 0.5})

	ack := readMsg(t, locFeed)
	expectType(t, ack, "driver_location_update")

	update := readMsg(t, follower)
	expectType(t, update, "driver_location_update")
	details := update["driver_details"].(map[string]any)
	if details["latitude"].(float64) != 0.5 {
		t.Fatalf("details = %v", details)
	}
	if details["distance"] == nil || details["duration"] == nil {
		t.Fatalf("route enrichment missing: %v", details)
	}

	d, _ := h.drivers.Get("d1")
	if d.Loc.Lat != 0.5 || d.Loc.Lon != 0.5 {
		t.Fatalf("index not updated: %+v", d.Loc)
	}
}

func TestOfferDroppedForOfflineDriver(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.addRider("r1")
	h.addDriver("d1")

	rider := h.dial(t, "/ws/trips/user/", "r1")
	driver := h.dial(t, "/ws/trips/driver/", "d1")

	tripID := createTrip(t, rider)
	h.pay.Register(context.Background(), tripID, models.PaymentCash, 140, "ZAR", "")

	// driver drops offline between lookup and delivery
	h.drivers.Update("d1", func(d *models.Driver) { d.Online = false })
	rider.WriteJSON(map[string]any{"action": "confirm_driver", "trip_id": tripID, "driver_id": "d1"})

	// the rider is told to pick someone else, the driver hears nothing
	m := readMsg(t, rider)
	expectType(t, m, "select_new_driver")

	driver.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := driver.ReadMessage(); err == nil {
		t.Fatal("offline driver received a message")
	}
}
