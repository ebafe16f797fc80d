package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/example/trip-dispatch/internal/auth"
	"github.com/example/trip-dispatch/internal/groups"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/observability"
)

// nearbySession answers on-demand nearest-driver searches for a rider, with
// per-driver route data attached.
type nearbySession struct {
	*Session
	srv       *Server
	principal auth.Principal
}

func (s *Server) handleNearbyFeed(w http.ResponseWriter, r *http.Request) {
	sess, principal, ok := s.handshake(w, r, auth.RoleRider)
	if !ok {
		return
	}
	ns := &nearbySession{Session: sess, srv: s, principal: principal}

	group := groups.RiderGroup(principal.ID)
	s.Hub.Join(group, ns)
	sess.startPing(s.PingInterval)
	observability.ConnectionsActive.WithLabelValues("nearby").Inc()

	defer func() {
		s.Hub.Leave(group, ns)
		observability.ConnectionsActive.WithLabelValues("nearby").Dec()
		sess.Close()
		s.Logger.Info("nearby feed closed", "rider_id", principal.ID)
	}()

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		ns.handleMessage(payload)
	}
}

// Deliver drops everything; this feed only answers direct requests, even
// though it shares the rider group with the trip feed.
func (ns *nearbySession) Deliver(ev groups.Event) {}

func (ns *nearbySession) handleMessage(payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			ns.srv.Logger.Error("panic in nearby handler", "rider_id", ns.principal.ID, "error", rec)
			_ = ns.SendJSON(errMsg("Internal server error"))
		}
	}()

	var req riderCoordReq
	if err := json.Unmarshal(payload, &req); err != nil {
		ns.srv.Logger.Warn("invalid nearby request", "rider_id", ns.principal.ID)
		return
	}
	if req.UserLatitude == nil || req.UserLongitude == nil {
		_ = ns.SendJSON(errMsg("Missing user location."))
		return
	}

	drivers := ns.srv.Locator.FindNearest(*req.UserLatitude, *req.UserLongitude, req.VehicleType)
	out := make([]nearbyDriver, 0, len(drivers))
	for _, d := range drivers {
		ctx, cancel := context.WithTimeout(context.Background(), ns.srv.RouteTimeout)
		route, err := ns.srv.Estimator.Estimate(ctx,
			models.Coord{Lat: *req.UserLatitude, Lon: *req.UserLongitude},
			models.Coord{Lat: d.Latitude, Lon: d.Longitude})
		cancel()
		if err != nil {
			ns.srv.Logger.Warn("route lookup failed for candidate", "driver_id", d.ID, "error", err)
			continue
		}
		out = append(out, nearbyDriver{Driver: d, RouteData: route})
	}
	_ = ns.SendJSON(nearestDriversMsg{Type: "nearest_drivers", Drivers: out})
}
