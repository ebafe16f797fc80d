package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/trip-dispatch/internal/auth"
	"github.com/example/trip-dispatch/internal/dispatch"
	"github.com/example/trip-dispatch/internal/groups"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/observability"
	"github.com/example/trip-dispatch/internal/storage"
)

// statusSession is the per-connection actor for a single trip's status feed.
// Riders and drivers both subscribe; only the driver may push transitions.
type statusSession struct {
	*Session
	srv       *Server
	principal auth.Principal
	tripID    string
}

func (s *Server) handleStatusFeed(w http.ResponseWriter, r *http.Request) {
	tripID := mux.Vars(r)["trip_id"]
	sess, principal, ok := s.handshake(w, r, "")
	if !ok {
		return
	}
	ss := &statusSession{Session: sess, srv: s, principal: principal, tripID: tripID}

	group := groups.TripGroup(tripID)
	s.Hub.Join(group, ss)
	sess.startPing(s.PingInterval)
	observability.ConnectionsActive.WithLabelValues("trip_status").Inc()

	defer func() {
		s.Hub.Leave(group, ss)
		observability.ConnectionsActive.WithLabelValues("trip_status").Dec()
		sess.Close()
		s.Logger.Info("status feed closed", "trip_id", tripID, "subject", principal.ID)
	}()

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		ss.handleMessage(r.Context(), payload)
	}
}

// Deliver implements groups.Member. Status moves and cash-due notices fan
// out to everyone watching the trip.
func (ss *statusSession) Deliver(ev groups.Event) {
	switch ev.Type {
	case groups.EvTripStatusUpdate:
		sc, ok := ev.Data.(dispatch.StatusChange)
		if !ok {
			return
		}
		_ = ss.SendJSON(tripStatusMsg{
			Type:    "trip_status_update",
			TripID:  sc.TripID,
			Status:  sc.Status,
			Message: fmt.Sprintf("Trip status updated to %s", sc.Status),
		})
	case groups.EvTripPaymentDue:
		due, ok := ev.Data.(dispatch.CashDue)
		if !ok {
			return
		}
		_ = ss.SendJSON(tripPaymentMsg{
			Type:          "trip_payment_update",
			PaymentAmount: fmt.Sprintf("%s%.2f", due.Currency, due.Amount),
			Message:       "Cash payment due before pickup",
		})
	}
}

func (ss *statusSession) handleMessage(ctx context.Context, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			ss.srv.Logger.Error("panic in status handler", "trip_id", ss.tripID, "error", rec)
			_ = ss.SendJSON(errMsg("Internal server error"))
		}
	}()

	if ss.principal.Role != auth.RoleDriver {
		_ = ss.SendJSON(infoMsg{Type: "info", Message: "User cannot update trip status"})
		return
	}
	// offline drivers can watch but not mutate
	if d, ok := ss.srv.Geo.Get(ss.principal.ID); !ok || !d.Online {
		return
	}

	var req statusUpdateReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	next := models.TripStatus(req.Status)
	if !next.Valid() {
		_ = ss.SendJSON(errMsg(fmt.Sprintf("Invalid trip status: %s", req.Status)))
		return
	}

	res, err := ss.srv.Orch.UpdateStatus(ctx, ss.tripID, next)
	switch {
	case errors.Is(err, storage.ErrTripNotFound):
		_ = ss.SendJSON(errMsg("Trip not found"))
		return
	case errors.Is(err, dispatch.ErrPaymentRequired):
		_ = ss.SendJSON(errMsg("Payment not found"))
		return
	case errors.Is(err, dispatch.ErrInvalidTransition):
		_ = ss.SendJSON(errMsg(fmt.Sprintf("Cannot move trip to %s", next)))
		return
	case err != nil:
		ss.srv.Logger.Error("status update failed", "trip_id", ss.tripID, "error", err)
		_ = ss.SendJSON(errMsg("Internal server error"))
		return
	}

	if res.CashDue {
		_ = ss.SendJSON(tripPaymentMsg{
			Type:          "trip_payment_update",
			PaymentAmount: fmt.Sprintf("%s%.2f", res.Payment.Currency, res.Payment.Amount),
			Message: fmt.Sprintf("You must collect %s%.2f from user before pickup",
				res.Payment.Currency, res.Payment.Amount),
		})
		return
	}
	_ = ss.SendJSON(infoMsg{Type: "info", Message: "Trip status updated"})
}
