package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/example/trip-dispatch/internal/auth"
	"github.com/example/trip-dispatch/internal/dispatch"
	"github.com/example/trip-dispatch/internal/groups"
	"github.com/example/trip-dispatch/internal/observability"
)

// driverSession is the per-driver-connection actor for the trip-offer feed.
// Offers arrive through the driver's group; accept/reject responses go to
// the orchestrator.
type driverSession struct {
	*Session
	srv       *Server
	principal auth.Principal
}

func (s *Server) handleDriverFeed(w http.ResponseWriter, r *http.Request) {
	sess, principal, ok := s.handshake(w, r, auth.RoleDriver)
	if !ok {
		return
	}
	ds := &driverSession{Session: sess, srv: s, principal: principal}

	group := groups.DriverGroup(principal.ID)
	s.Hub.Join(group, ds)
	sess.startPing(s.PingInterval)
	observability.ConnectionsActive.WithLabelValues("driver_trips").Inc()

	defer func() {
		s.Hub.Leave(group, ds)
		observability.ConnectionsActive.WithLabelValues("driver_trips").Dec()
		sess.Close()
		s.Logger.Info("driver disconnected", "driver_id", principal.ID)
	}()

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		ds.handleMessage(r.Context(), payload)
	}
}

// Deliver implements groups.Member. An offer reaches the driver only while
// they are currently available and online; otherwise it is dropped, not
// queued.
func (ds *driverSession) Deliver(ev groups.Event) {
	if ev.Type != groups.EvNewTripRequest {
		return
	}
	d, ok := ds.srv.Geo.Get(ds.principal.ID)
	if !ok || !d.Available || !d.Online {
		observability.OffersDropped.Inc()
		ds.srv.Logger.Debug("offer dropped", "driver_id", ds.principal.ID)
		return
	}
	_ = ds.SendJSON(newTripRequestMsg{Type: "new_trip_request", TripDetails: ev.Data})
}

func (ds *driverSession) handleMessage(ctx context.Context, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			ds.srv.Logger.Error("panic in driver message handler", "driver_id", ds.principal.ID, "error", rec)
			_ = ds.SendJSON(errMsg("Internal server error"))
		}
	}()

	// stale sessions don't get to act on offers
	if d, ok := ds.srv.Geo.Get(ds.principal.ID); !ok || !d.Available || !d.Online {
		return
	}

	var req driverResponseReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	if req.TripID == "" {
		_ = ds.SendJSON(errMsg("trip_id is required"))
		return
	}

	outcome, err := ds.srv.Orch.HandleDriverResponse(ctx, ds.principal.ID, req.TripID, req.DriverResponse)
	if err != nil {
		ds.srv.Logger.Error("driver response failed", "trip_id", req.TripID, "error", err)
		_ = ds.SendJSON(errMsg("Internal server error"))
		return
	}
	switch outcome {
	case dispatch.RespondTripNotFound:
		_ = ds.SendJSON(errMsg("Trip not found"))
	case dispatch.RespondUnknownDecision:
		_ = ds.SendJSON(errMsg(fmt.Sprintf("Unknown response status: %s", req.DriverResponse)))
	case dispatch.RespondPaymentMissing:
		_ = ds.SendJSON(errMsg("Payment not found. Cannot accept trip."))
	case dispatch.RespondPaymentIncomplete:
		_ = ds.SendJSON(errMsg("Card payment not completed. Cannot accept trip."))
	case dispatch.RespondAlreadyReassigned:
		_ = ds.SendJSON(errMsg("Trip already reassigned. Cannot accept trip."))
	case dispatch.RespondRejected:
		_ = ds.SendJSON(tripRejectedMsg{Type: "trip_rejected", Message: fmt.Sprintf("Trip %s rejected", req.TripID)})
	case dispatch.RespondAccepted:
		_ = ds.SendJSON(tripStatusMsg{Type: "trip_status_update", Message: fmt.Sprintf("Trip %s accepted", req.TripID)})
	}
}
