package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/example/trip-dispatch/internal/auth"
	"github.com/example/trip-dispatch/internal/groups"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/observability"
)

// followSession lets a rider follow one driver's position. Location events
// from the driver's group are enriched with route data computed from the
// rider's last reported coordinate before being relayed.
type followSession struct {
	*Session
	srv       *Server
	principal auth.Principal
	driverID  string

	mu       sync.Mutex
	coord    models.Coord
	hasCoord bool
}

func (s *Server) handleFollowFeed(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]

	sess, principal, ok := s.handshake(w, r, auth.RoleRider)
	if !ok {
		return
	}
	fs := &followSession{Session: sess, srv: s, principal: principal, driverID: driverID}

	group := groups.DriverGroup(driverID)
	s.Hub.Join(group, fs)
	sess.startPing(s.PingInterval)
	observability.ConnectionsActive.WithLabelValues("follow").Inc()

	defer func() {
		s.Hub.Leave(group, fs)
		observability.ConnectionsActive.WithLabelValues("follow").Dec()
		sess.Close()
		s.Logger.Info("follow feed closed", "rider_id", principal.ID, "driver_id", driverID)
	}()

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var req riderCoordReq
		if err := json.Unmarshal(payload, &req); err != nil {
			_ = sess.SendJSON(errMsg("Invalid JSON format"))
			continue
		}
		if req.UserLatitude != nil && req.UserLongitude != nil {
			fs.mu.Lock()
			fs.coord = models.Coord{Lat: *req.UserLatitude, Lon: *req.UserLongitude}
			fs.hasCoord = true
			fs.mu.Unlock()
		}
	}
}

// followDetails is a driver summary extended with route data relative to the
// following rider.
type followDetails struct {
	models.DriverSummary
	Distance *float64 `json:"distance,omitempty"`
	Duration *string  `json:"duration,omitempty"`
}

// Deliver relays location updates. Route enrichment is best effort: on
// estimator failure the update still goes out, just without distance and
// duration.
func (fs *followSession) Deliver(ev groups.Event) {
	if ev.Type != groups.EvDriverLocation {
		return
	}
	summary, ok := ev.Data.(models.DriverSummary)
	if !ok {
		return
	}
	details := followDetails{DriverSummary: summary}

	fs.mu.Lock()
	coord, hasCoord := fs.coord, fs.hasCoord
	fs.mu.Unlock()

	if hasCoord {
		ctx, cancel := context.WithTimeout(context.Background(), fs.srv.RouteTimeout)
		route, err := fs.srv.Estimator.Estimate(ctx, coord, models.Coord{Lat: summary.Latitude, Lon: summary.Longitude})
		cancel()
		if err == nil {
			details.Distance = &route.DistanceKm
			details.Duration = &route.Duration
		} else {
			fs.srv.Logger.Warn("route enrichment failed", "driver_id", fs.driverID, "error", err)
		}
	}
	_ = fs.SendJSON(driverLocationMsg{Type: "driver_location_update", DriverDetails: details})
}
