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

// riderSession is the per-rider-connection actor for the trip-request feed.
// It creates trips, confirms drivers and receives reassignment and status
// events through the rider's group.
type riderSession struct {
	*Session
	srv       *Server
	principal auth.Principal
}

func (s *Server) handleRiderFeed(w http.ResponseWriter, r *http.Request) {
	sess, principal, ok := s.handshake(w, r, auth.RoleRider)
	if !ok {
		return
	}
	rs := &riderSession{Session: sess, srv: s, principal: principal}

	group := groups.RiderGroup(principal.ID)
	s.Hub.Join(group, rs)
	sess.startPing(s.PingInterval)
	observability.ConnectionsActive.WithLabelValues("rider_trips").Inc()

	defer func() {
		s.Hub.Leave(group, rs)
		observability.ConnectionsActive.WithLabelValues("rider_trips").Dec()
		sess.Close()
		s.Logger.Info("rider disconnected", "rider_id", principal.ID)
	}()

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		rs.handleMessage(r.Context(), payload)
	}
}

// Deliver implements groups.Member. Events this feed doesn't speak are
// dropped.
func (rs *riderSession) Deliver(ev groups.Event) {
	switch ev.Type {
	case groups.EvSelectNewDriver:
		if data, ok := ev.Data.(dispatch.Reassignment); ok {
			_ = rs.SendJSON(selectNewDriverMsg{
				Type:       "select_new_driver",
				Message:    data.Message,
				Candidates: data.Candidates,
			})
		}
	case groups.EvTripStatusUpdate:
		if data, ok := ev.Data.(dispatch.StatusChange); ok {
			_ = rs.SendJSON(tripStatusMsg{Type: "trip_status_update", TripID: data.TripID, Status: data.Status})
		}
	}
}

func (rs *riderSession) handleMessage(ctx context.Context, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			rs.srv.Logger.Error("panic in rider message handler", "rider_id", rs.principal.ID, "error", rec)
			_ = rs.SendJSON(errMsg("Internal server error"))
		}
	}()

	var env riderEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}
	switch env.Action {
	case "create_trip":
		rs.createTrip(ctx, payload)
	case "confirm_driver":
		rs.confirmDriver(ctx, payload)
	default:
		_ = rs.SendJSON(errMsg(fmt.Sprintf("Unknown action: %s", env.Action)))
	}
}

func (rs *riderSession) createTrip(ctx context.Context, payload []byte) {
	var req createTripReq
	if err := json.Unmarshal(payload, &req); err != nil {
		_ = rs.SendJSON(errMsg("Invalid JSON format"))
		return
	}

	created, err := rs.srv.Orch.CreateTrip(ctx, rs.principal.ID, dispatch.CreateTripRequest{
		VehicleType:     req.VehicleType,
		Pickup:          req.Pickup,
		Destination:     req.Destination,
		PickupLat:       req.PickupLatitude,
		PickupLon:       req.PickupLongitude,
		DestLat:         req.DestLatitude,
		DestLon:         req.DestLongitude,
		LoadDescription: req.LoadDescription,
	})
	if err != nil {
		rs.srv.Logger.Error("trip creation failed", "rider_id", rs.principal.ID, "error", err)
		_ = rs.SendJSON(errMsg("Route calculation timed out"))
		return
	}
	_ = rs.SendJSON(tripCreatedMsg{
		Type:          "trip_created",
		TripID:        created.TripID,
		EstimatedFare: created.EstimatedFare,
		Distance:      created.DistanceKm,
		EstimatedTime: created.EstimatedTime,
		Status:        created.Status,
	})
}

func (rs *riderSession) confirmDriver(ctx context.Context, payload []byte) {
	var req confirmDriverReq
	if err := json.Unmarshal(payload, &req); err != nil {
		_ = rs.SendJSON(errMsg("Invalid JSON format"))
		return
	}

	res, err := rs.srv.Orch.ConfirmDriver(ctx, rs.principal.ID, req.TripID, req.DriverID)
	if err != nil {
		rs.srv.Logger.Error("confirm driver failed", "trip_id", req.TripID, "error", err)
		_ = rs.SendJSON(errMsg("Failed to confirm driver"))
		return
	}
	switch res.Outcome {
	case ConfirmInvalid:
		_ = rs.SendJSON(errMsg("Invalid trip or driver"))
	case ConfirmSelectNew:
		_ = rs.SendJSON(selectNewDriverMsg{
			Type:       "select_new_driver",
			Message:    "Driver is not available. Please select another driver.",
			Candidates: res.Candidates,
		})
	case ConfirmPaymentMissing:
		_ = rs.SendJSON(errMsg("Payment not found. Please complete payment before requesting a driver."))
	case ConfirmPaymentIncomplete:
		_ = rs.SendJSON(errMsg("Card payment not completed. Please complete payment before requesting a driver."))
	case ConfirmAwaiting:
		_ = rs.SendJSON(awaitingDriverMsg{
			Type:       "awaiting_driver_response",
			TripID:     req.TripID,
			Status:     "pending",
			DriverInfo: res.Driver,
			Payment:    res.Payment,
		})
	}
}

// local aliases keep the switch readable
const (
	ConfirmAwaiting          = dispatch.ConfirmAwaiting
	ConfirmInvalid           = dispatch.ConfirmInvalid
	ConfirmSelectNew         = dispatch.ConfirmSelectNew
	ConfirmPaymentMissing    = dispatch.ConfirmPaymentMissing
	ConfirmPaymentIncomplete = dispatch.ConfirmPaymentIncomplete
)
