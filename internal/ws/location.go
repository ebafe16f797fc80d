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

// locationSession is the driver's position feed. Each update lands in the
// driver index, optionally in kafka for the fleet pipeline, and fans out to
// everyone following this driver.
type locationSession struct {
	*Session
	srv       *Server
	principal auth.Principal
}

func (s *Server) handleDriverLocationFeed(w http.ResponseWriter, r *http.Request) {
	sess, principal, ok := s.handshake(w, r, auth.RoleDriver)
	if !ok {
		return
	}
	ls := &locationSession{Session: sess, srv: s, principal: principal}

	group := groups.DriverGroup(principal.ID)
	s.Hub.Join(group, ls)
	sess.startPing(s.PingInterval)
	observability.ConnectionsActive.WithLabelValues("driver_location").Inc()

	defer func() {
		s.Hub.Leave(group, ls)
		observability.ConnectionsActive.WithLabelValues("driver_location").Dec()
		sess.Close()
		s.Logger.Info("driver location feed closed", "driver_id", principal.ID)
	}()

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		ls.handleMessage(payload)
	}
}

// Deliver acknowledges the driver's own broadcast; anything else is dropped.
func (ls *locationSession) Deliver(ev groups.Event) {
	if ev.Type != groups.EvDriverLocation {
		return
	}
	_ = ls.SendJSON(driverLocationMsg{Type: "driver_location_update", Message: "location updated successfully"})
}

func (ls *locationSession) handleMessage(payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			ls.srv.Logger.Error("panic in location handler", "driver_id", ls.principal.ID, "error", rec)
			_ = ls.SendJSON(errMsg("Internal server error"))
		}
	}()

	d, ok := ls.srv.Geo.Get(ls.principal.ID)
	if !ok || !d.Online {
		return
	}

	var req locationUpdateReq
	if err := json.Unmarshal(payload, &req); err != nil {
		_ = ls.SendJSON(errMsg("Invalid JSON format"))
		return
	}

	ls.srv.Geo.Update(ls.principal.ID, func(d *models.Driver) {
		d.Loc = models.Coord{Lat: req.Latitude, Lon: req.Longitude}
	})
	updated, _ := ls.srv.Geo.Get(ls.principal.ID)

	if ls.srv.Kafka != nil {
		if err := ls.srv.Kafka.PublishLocation(context.Background(), updated); err != nil {
			ls.srv.Logger.Warn("kafka publish failed", "driver_id", ls.principal.ID, "error", err)
		}
	}

	ls.srv.Hub.Broadcast(groups.DriverGroup(ls.principal.ID), groups.Event{
		Type: groups.EvDriverLocation,
		Data: updated.Summary(),
	})
}
