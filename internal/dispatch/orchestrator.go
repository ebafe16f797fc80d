package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/trip-dispatch/internal/fare"
	"github.com/example/trip-dispatch/internal/geo"
	"github.com/example/trip-dispatch/internal/groups"
	"github.com/example/trip-dispatch/internal/locator"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/observability"
	"github.com/example/trip-dispatch/internal/payments"
	"github.com/example/trip-dispatch/internal/routes"
	"github.com/example/trip-dispatch/internal/storage"
)

var (
	ErrPaymentRequired   = errors.New("payment not found")
	ErrPaymentIncomplete = errors.New("card payment not completed")
	ErrAlreadyReassigned = errors.New("trip already reassigned")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// RiderDirectory resolves rider profiles for offer payloads. A nil
// directory is fine; offers then carry only the rider id.
type RiderDirectory interface {
	Rider(id string) (models.Rider, bool)
}

// Orchestrator owns the dispatch protocol: trip creation, the offer
// handshake with its bounded wait, accept/reject/timeout arbitration and
// reassignment. The trip's status field is the single source of truth for
// every race; each branch re-reads it before acting.
type Orchestrator struct {
	Trips     storage.TripStore
	Drivers   geo.Geo
	Locator   *locator.Service
	Payments  payments.Reader
	Estimator routes.Estimator
	Hub       *groups.Hub
	Riders    RiderDirectory
	Logger    *slog.Logger

	OfferWait    time.Duration
	RouteTimeout time.Duration

	// Now is the surge clock; nil means time.Now.
	Now func() time.Time

	locks keyedMutex

	// Live offer generation per trip. A timer only reassigns the offer that
	// armed it; without this, a stale timer would see a re-offered trip as
	// pending and reassign it a second time.
	offerMu  sync.Mutex
	offers   map[string]uint64
	offerSeq uint64
}

func (o *Orchestrator) armOffer(tripID string) uint64 {
	o.offerMu.Lock()
	defer o.offerMu.Unlock()
	if o.offers == nil {
		o.offers = make(map[string]uint64)
	}
	o.offerSeq++
	o.offers[tripID] = o.offerSeq
	return o.offerSeq
}

func (o *Orchestrator) offerCurrent(tripID string, gen uint64) bool {
	o.offerMu.Lock()
	defer o.offerMu.Unlock()
	return o.offers[tripID] == gen
}

func (o *Orchestrator) clearOffer(tripID string) {
	o.offerMu.Lock()
	defer o.offerMu.Unlock()
	delete(o.offers, tripID)
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

type CreateTripRequest struct {
	VehicleType     string
	Pickup          string
	Destination     string
	PickupLat       float64
	PickupLon       float64
	DestLat         float64
	DestLon         float64
	LoadDescription string
}

type TripCreated struct {
	TripID        string
	EstimatedFare float64
	DistanceKm    float64
	EstimatedTime string
	Status        models.TripStatus
}

// CreateTrip estimates the route within the configured timeout, prices the
// trip and persists it as pending. On estimator failure nothing is created
// and routes.ErrUnavailable is returned.
func (o *Orchestrator) CreateTrip(ctx context.Context, riderID string, req CreateTripRequest) (*TripCreated, error) {
	rctx, cancel := context.WithTimeout(ctx, o.RouteTimeout)
	defer cancel()

	pickup := models.Coord{Lat: req.PickupLat, Lon: req.PickupLon}
	dest := models.Coord{Lat: req.DestLat, Lon: req.DestLon}
	route, err := o.Estimator.Estimate(rctx, pickup, dest)
	if err != nil {
		return nil, err
	}

	now := o.now()
	minutes := fare.ParseDurationMinutes(route.Duration)
	surge := fare.IsPeakHourOrFestive(now)
	price := fare.Calculate(req.VehicleType, route.DistanceKm, minutes, surge)

	trip := &models.Trip{
		ID:              uuid.NewString(),
		RiderID:         riderID,
		VehicleType:     req.VehicleType,
		Pickup:          req.Pickup,
		Destination:     req.Destination,
		PickupLoc:       pickup,
		DestLoc:         dest,
		LoadDescription: req.LoadDescription,
		AcceptedFare:    price,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.Trips.SaveTrip(trip); err != nil {
		return nil, err
	}
	observability.TripsCreated.Inc()
	o.Logger.Info("trip created", "trip_id", trip.ID, "rider_id", riderID, "fare", price, "surge", surge)

	return &TripCreated{
		TripID:        trip.ID,
		EstimatedFare: price,
		DistanceKm:    route.DistanceKm,
		EstimatedTime: route.Duration,
		Status:        models.StatusPending,
	}, nil
}

type ConfirmOutcome int

const (
	ConfirmAwaiting ConfirmOutcome = iota
	ConfirmInvalid
	ConfirmSelectNew
	ConfirmPaymentMissing
	ConfirmPaymentIncomplete
)

type ConfirmResult struct {
	Outcome    ConfirmOutcome
	Driver     models.DriverSummary
	Payment    models.PaymentInfo
	Candidates []models.DriverSummary
}

// Offer is the payload pushed into the chosen driver's group.
type Offer struct {
	TripID          string              `json:"trip_id"`
	Pickup          string              `json:"pickup"`
	Destination     string              `json:"destination"`
	VehicleType     string              `json:"vehicle_type"`
	LoadDescription string              `json:"load_description"`
	RiderID         string              `json:"rider_id"`
	Rider           models.RiderSummary `json:"user_info"`
	Payment         models.PaymentInfo  `json:"payment_info"`
}

// Reassignment is the payload sent back to the rider when an offer died.
type Reassignment struct {
	TripID     string                 `json:"trip_id"`
	Message    string                 `json:"message"`
	Candidates []models.DriverSummary `json:"available_drivers"`
}

// StatusChange is broadcast when a trip's status moves.
type StatusChange struct {
	TripID string            `json:"trip_id"`
	Status models.TripStatus `json:"status"`
}

// CashDue is broadcast when the driver arrives and a cash payment is still
// pending collection.
type CashDue struct {
	TripID   string  `json:"trip_id"`
	Amount   float64 `json:"payment_amount"`
	Currency string  `json:"currency"`
}

// ConfirmDriver runs the rider-side half of the offer handshake: validate
// the trip and driver, enforce the payment precondition, push the offer into
// the driver's group and arm the offer-wait timer. The timer is trip-scoped;
// it fires and reassigns even if the rider disconnects mid-wait.
func (o *Orchestrator) ConfirmDriver(ctx context.Context, riderID, tripID, driverID string) (ConfirmResult, error) {
	trip, err := o.Trips.GetTrip(tripID)
	if err != nil || trip.Status != models.StatusPending || trip.RiderID != riderID {
		return ConfirmResult{Outcome: ConfirmInvalid}, nil
	}
	driver, ok := o.Drivers.Get(driverID)
	if !ok {
		return ConfirmResult{Outcome: ConfirmInvalid}, nil
	}
	if !driver.Available || !driver.Online {
		return ConfirmResult{
			Outcome:    ConfirmSelectNew,
			Candidates: o.candidatesFor(trip, driverID),
		}, nil
	}

	payment, err := o.Payments.ForTrip(ctx, tripID)
	if err != nil {
		return ConfirmResult{Outcome: ConfirmPaymentMissing}, nil
	}
	if err := paymentPrecondition(payment, trip); err != nil {
		if errors.Is(err, ErrPaymentIncomplete) {
			return ConfirmResult{Outcome: ConfirmPaymentIncomplete}, nil
		}
		return ConfirmResult{Outcome: ConfirmPaymentMissing}, nil
	}

	riderInfo := models.RiderSummary{ID: trip.RiderID}
	if o.Riders != nil {
		if r, ok := o.Riders.Rider(trip.RiderID); ok {
			riderInfo = r.Summary()
		}
	}

	offer := Offer{
		TripID:          trip.ID,
		Pickup:          trip.Pickup,
		Destination:     trip.Destination,
		VehicleType:     trip.VehicleType,
		LoadDescription: trip.LoadDescription,
		RiderID:         trip.RiderID,
		Rider:           riderInfo,
		Payment:         payment.Info(),
	}

	// Arm the generation before the offer leaves. A driver who responds
	// while Broadcast is still delivering supersedes this exact offer;
	// arming afterwards would leave the fresh generation live and let the
	// timer reassign a trip that was already reassigned.
	gen := o.armOffer(tripID)
	o.Hub.Broadcast(groups.DriverGroup(driverID), groups.Event{Type: groups.EvNewTripRequest, Data: offer})
	observability.OffersSent.Inc()

	time.AfterFunc(o.OfferWait, func() { o.expireOffer(tripID, driverID, gen) })
	o.Logger.Info("offer sent", "trip_id", tripID, "driver_id", driverID)

	return ConfirmResult{
		Outcome: ConfirmAwaiting,
		Driver:  driver.Summary(),
		Payment: payment.Info(),
	}, nil
}

// expireOffer is the offer-wait timer callback. The status re-read decides
// whether the timeout "won": an accepted or terminated trip makes this a
// no-op except for logging.
func (o *Orchestrator) expireOffer(tripID, driverID string, gen uint64) {
	unlock := o.locks.lock(tripID)
	defer unlock()

	if !o.offerCurrent(tripID, gen) {
		o.Logger.Debug("offer expiry no-op: superseded", "trip_id", tripID)
		return
	}
	trip, err := o.Trips.GetTrip(tripID)
	if err != nil {
		o.Logger.Error("offer expiry: trip lookup failed", "trip_id", tripID, "error", err)
		return
	}
	if trip.Status != models.StatusPending {
		o.Logger.Debug("offer expiry no-op", "trip_id", tripID, "status", trip.Status)
		return
	}
	o.Logger.Info("offer timed out", "trip_id", tripID, "driver_id", driverID)
	o.clearOffer(tripID)
	o.reassign(trip, "timeout", driverID)
}

// reassign clears the trip's driver, refreshes the candidate list and tells
// the rider to pick again. The driver whose offer died is left out of the
// fresh list even if still available. Callers hold the trip lock.
func (o *Orchestrator) reassign(trip *models.Trip, cause, deadDriverID string) {
	updated, err := o.Trips.UpdateTrip(trip.ID, func(t *models.Trip) error {
		t.DriverID = ""
		t.Status = models.StatusPending
		return nil
	})
	if err != nil {
		o.Logger.Error("reassign: trip update failed", "trip_id", trip.ID, "error", err)
		return
	}
	observability.Reassignments.WithLabelValues(cause).Inc()
	o.Hub.Broadcast(groups.RiderGroup(updated.RiderID), groups.Event{
		Type: groups.EvSelectNewDriver,
		Data: Reassignment{
			TripID:     updated.ID,
			Message:    "Driver is not available. Please select another driver.",
			Candidates: o.candidatesFor(updated, deadDriverID),
		},
	})
}

func (o *Orchestrator) candidatesFor(trip *models.Trip, exclude string) []models.DriverSummary {
	found := o.Locator.FindNearest(trip.PickupLoc.Lat, trip.PickupLoc.Lon, []string{trip.VehicleType})
	if exclude == "" {
		return found
	}
	out := found[:0]
	for _, d := range found {
		if d.ID != exclude {
			out = append(out, d)
		}
	}
	return out
}

type RespondOutcome int

const (
	RespondAccepted RespondOutcome = iota
	RespondRejected
	RespondTripNotFound
	RespondUnknownDecision
	RespondPaymentMissing
	RespondPaymentIncomplete
	RespondAlreadyReassigned
)

// HandleDriverResponse applies a driver's accept or reject for a trip offer.
// Accept and the offer-wait timeout race through the same trip lock; the
// trip status re-read decides the winner.
func (o *Orchestrator) HandleDriverResponse(ctx context.Context, driverID, tripID, decision string) (RespondOutcome, error) {
	switch decision {
	case "reject":
		return o.rejectOffer(tripID, driverID)
	case "accept":
		return o.acceptOffer(ctx, tripID, driverID)
	default:
		return RespondUnknownDecision, nil
	}
}

func (o *Orchestrator) rejectOffer(tripID, driverID string) (RespondOutcome, error) {
	unlock := o.locks.lock(tripID)
	defer unlock()

	trip, err := o.Trips.GetTrip(tripID)
	if err != nil {
		return RespondTripNotFound, nil
	}
	if trip.Status == models.StatusPending {
		o.Logger.Info("offer rejected", "trip_id", tripID, "driver_id", driverID)
		o.clearOffer(tripID)
		o.reassign(trip, "reject", driverID)
	} else {
		o.Logger.Debug("reject no-op", "trip_id", tripID, "status", trip.Status)
	}
	return RespondRejected, nil
}

func (o *Orchestrator) acceptOffer(ctx context.Context, tripID, driverID string) (RespondOutcome, error) {
	unlock := o.locks.lock(tripID)
	defer unlock()

	trip, err := o.Trips.GetTrip(tripID)
	if err != nil {
		return RespondTripNotFound, nil
	}
	if trip.Status != models.StatusPending {
		return RespondAlreadyReassigned, nil
	}

	payment, err := o.Payments.ForTrip(ctx, tripID)
	if err != nil {
		return RespondPaymentMissing, nil
	}
	if err := paymentPrecondition(payment, trip); err != nil {
		if errors.Is(err, ErrPaymentIncomplete) {
			return RespondPaymentIncomplete, nil
		}
		return RespondPaymentMissing, nil
	}

	updated, err := o.Trips.UpdateTrip(tripID, func(t *models.Trip) error {
		if t.Status != models.StatusPending {
			return ErrAlreadyReassigned
		}
		t.DriverID = driverID
		t.Status = models.StatusAccepted
		return nil
	})
	if errors.Is(err, ErrAlreadyReassigned) {
		return RespondAlreadyReassigned, nil
	}
	if err != nil {
		return 0, err
	}
	o.clearOffer(tripID)
	o.Drivers.Update(driverID, func(d *models.Driver) { d.Available = false })

	o.Hub.Broadcast(groups.RiderGroup(updated.RiderID), groups.Event{
		Type: groups.EvTripStatusUpdate,
		Data: StatusChange{TripID: updated.ID, Status: models.StatusAccepted},
	})
	o.Logger.Info("offer accepted", "trip_id", tripID, "driver_id", driverID)
	return RespondAccepted, nil
}

// paymentPrecondition enforces the gate for confirming or accepting an
// offer: a payment record must exist, and a card payment must be settled
// for exactly the accepted fare. Cash bypasses the settlement check.
func paymentPrecondition(p *models.Payment, trip *models.Trip) error {
	if p == nil {
		return ErrPaymentRequired
	}
	if p.Method != models.PaymentCash {
		if p.Status != models.PaymentSuccess || p.Amount != trip.AcceptedFare || !trip.Paid {
			return ErrPaymentIncomplete
		}
	}
	return nil
}

// StatusResult reports what UpdateStatus did.
type StatusResult struct {
	Trip    *models.Trip
	Payment *models.Payment
	CashDue bool
}

// UpdateStatus applies a driver-reported status transition, persists it and
// broadcasts it to the trip group. Arriving at pickup with an uncollected
// cash payment additionally broadcasts a collect-cash notification. Terminal
// statuses release the assigned driver back to the available pool.
func (o *Orchestrator) UpdateStatus(ctx context.Context, tripID string, next models.TripStatus) (*StatusResult, error) {
	trip, err := o.Trips.GetTrip(tripID)
	if err != nil {
		return nil, err
	}
	payment, err := o.Payments.ForTrip(ctx, tripID)
	if err != nil {
		return nil, ErrPaymentRequired
	}
	if !trip.Status.CanAdvanceTo(next) {
		return nil, ErrInvalidTransition
	}

	updated, err := o.Trips.UpdateTrip(tripID, func(t *models.Trip) error {
		if !t.Status.CanAdvanceTo(next) {
			return ErrInvalidTransition
		}
		t.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if next.Terminal() && updated.DriverID != "" {
		o.Drivers.Update(updated.DriverID, func(d *models.Driver) { d.Available = true })
	}

	o.Hub.Broadcast(groups.TripGroup(tripID), groups.Event{
		Type: groups.EvTripStatusUpdate,
		Data: StatusChange{TripID: tripID, Status: next},
	})

	cashDue := next == models.StatusArrivedAtPickup &&
		payment.Method == models.PaymentCash &&
		payment.Status == models.PaymentPending
	if cashDue {
		o.Hub.Broadcast(groups.TripGroup(tripID), groups.Event{
			Type: groups.EvTripPaymentDue,
			Data: CashDue{TripID: tripID, Amount: payment.Amount, Currency: payment.Currency},
		})
	}
	o.Logger.Info("trip status updated", "trip_id", tripID, "status", next, "cash_due", cashDue)

	return &StatusResult{Trip: updated, Payment: payment, CashDue: cashDue}, nil
}
