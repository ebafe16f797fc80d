package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trip-dispatch/internal/auth"
	"github.com/example/trip-dispatch/internal/dispatch"
	"github.com/example/trip-dispatch/internal/geo"
	"github.com/example/trip-dispatch/internal/groups"
	"github.com/example/trip-dispatch/internal/ingest"
	"github.com/example/trip-dispatch/internal/locator"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/observability"
	"github.com/example/trip-dispatch/internal/payments"
	"github.com/example/trip-dispatch/internal/routes"
	"github.com/example/trip-dispatch/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Deps carries everything the websocket surface needs.
type Deps struct {
	Gate      *auth.Gate
	Hub       *groups.Hub
	Geo       geo.Geo
	Locator   *locator.Service
	Orch      *dispatch.Orchestrator
	Estimator routes.Estimator
	Payments  *payments.Service
	Trips     storage.TripStore
	Kafka     *ingest.KafkaProducer // optional
	Riders    *auth.MemorySpace
	Logger    *slog.Logger

	PingInterval time.Duration
	RouteTimeout time.Duration
}

type Server struct {
	Deps
	mux *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{Deps: d, mux: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/ws/trips/driver/location/", s.handleDriverLocationFeed)
	s.mux.HandleFunc("/ws/trips/user/location/{driver_id}", s.handleFollowFeed)
	s.mux.HandleFunc("/ws/trips/user/", s.handleRiderFeed)
	s.mux.HandleFunc("/ws/trips/driver/", s.handleDriverFeed)
	s.mux.HandleFunc("/ws/trips/status/{trip_id}", s.handleStatusFeed)
	s.mux.HandleFunc("/ws/trips/drivers/all/", s.handleNearbyFeed)

	// collaborator boundary: account and payment surfaces push state in
	s.mux.HandleFunc("/internal/drivers", s.handleUpsertDriver).Methods("POST")
	s.mux.HandleFunc("/internal/riders", s.handleRegisterRider).Methods("POST")
	s.mux.HandleFunc("/internal/payments", s.handleRegisterPayment).Methods("POST")
	s.mux.HandleFunc("/internal/payments/settle", s.handleSettlePayment).Methods("POST")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// handshake upgrades the connection and runs the identity gate once, before
// any actor logic. wantRole being empty accepts either role.
func (s *Server) handshake(w http.ResponseWriter, r *http.Request, wantRole auth.Role) (*Session, auth.Principal, bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, auth.Principal{}, false
	}
	sess := newSession(conn, s.Logger)

	principal, err := s.Gate.Authenticate(r.URL.Query().Get("token"))
	if err != nil {
		s.Logger.Warn("connection rejected", "path", r.URL.Path, "error", err)
		observability.ConnectionsRejected.WithLabelValues("credential").Inc()
		sess.closeWithCode(closeUnauthorized, "unauthorized")
		return nil, auth.Principal{}, false
	}
	if wantRole != "" && principal.Role != wantRole {
		s.Logger.Warn("connection rejected: wrong role", "path", r.URL.Path, "subject", principal.ID, "role", principal.Role)
		observability.ConnectionsRejected.WithLabelValues("role").Inc()
		sess.closeWithCode(closeForbiddenRole, "forbidden")
		return nil, auth.Principal{}, false
	}
	s.Logger.Info("connection accepted", "path", r.URL.Path, "subject", principal.ID, "role", principal.Role)
	return sess, principal, true
}

func (s *Server) handleUpsertDriver(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if d.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	s.Geo.Upsert(d)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegisterRider(w http.ResponseWriter, r *http.Request) {
	var rider models.Rider
	if err := json.NewDecoder(r.Body).Decode(&rider); err != nil || rider.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	s.Riders.Add(rider)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegisterPayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TripID     string  `json:"trip_id"`
		Method     string  `json:"payment_method"`
		Amount     float64 `json:"amount"`
		Currency   string  `json:"currency"`
		CustomerID string  `json:"customer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	trip, err := s.Trips.GetTrip(body.TripID)
	if err != nil {
		http.Error(w, "trip not found", http.StatusNotFound)
		return
	}
	amount := body.Amount
	if amount == 0 {
		amount = trip.AcceptedFare
	}
	p, err := s.Payments.Register(r.Context(), body.TripID, models.PaymentMethod(body.Method), amount, body.Currency, body.CustomerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.Info())
}

func (s *Server) handleSettlePayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TripID string `json:"trip_id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	status := models.PaymentStatus(body.Status)
	if err := s.Payments.SetStatus(r.Context(), body.TripID, status); err != nil {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}
	if status == models.PaymentSuccess {
		_, _ = s.Trips.UpdateTrip(body.TripID, func(t *models.Trip) error {
			t.Paid = true
			return nil
		})
	}
	w.WriteHeader(http.StatusNoContent)
}
