package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TripStatus is the single source of truth for the dispatch handshake.
// Transitions only move forward, with one exception: a trip whose driver
// rejected or timed out is reset to pending for reassignment.
type TripStatus string

const (
	StatusPending         TripStatus = "pending"
	StatusAccepted        TripStatus = "accepted"
	StatusArrivedAtPickup TripStatus = "arrived_at_pickup"
	StatusInProgress      TripStatus = "in_progress"
	StatusCompleted       TripStatus = "completed"
	StatusCancelled       TripStatus = "cancelled"
)

var statusRank = map[TripStatus]int{
	StatusPending:         0,
	StatusAccepted:        1,
	StatusArrivedAtPickup: 2,
	StatusInProgress:      3,
	StatusCompleted:       4,
	StatusCancelled:       4,
}

// Valid reports whether s is a known trip status.
func (s TripStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further transitions are allowed from s.
func (s TripStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanAdvanceTo reports whether moving from s to next is a legal transition.
// Any non-terminal status may be cancelled; everything else is monotonic.
func (s TripStatus) CanAdvanceTo(next TripStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return statusRank[next] > statusRank[s]
}

type Trip struct {
	ID              string     `json:"id"`
	RiderID         string     `json:"rider_id"`
	DriverID        string     `json:"driver_id,omitempty"` // empty until a driver accepts
	VehicleType     string     `json:"vehicle_type"`
	Pickup          string     `json:"pickup"`
	Destination     string     `json:"destination"`
	PickupLoc       Coord      `json:"pickup_loc"`
	DestLoc         Coord      `json:"dest_loc"`
	LoadDescription string     `json:"load_description,omitempty"`
	AcceptedFare    float64    `json:"accepted_fare"` // set once at creation, immutable afterwards
	Paid            bool       `json:"is_paid"`
	Status          TripStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Driver struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Loc         Coord     `json:"loc"`
	VehicleType string    `json:"vehicle_type"`
	Rating      float64   `json:"rating"` // 0..5
	Available   bool      `json:"is_available"`
	Online      bool      `json:"is_online"`
	Updated     time.Time `json:"updated"`
}

// DriverSummary is the sanitized driver view handed to riders. Credentials,
// financial and registration fields never leave the driver record.
type DriverSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Phone       string  `json:"phone,omitempty"`
	VehicleType string  `json:"vehicle_type"`
	Rating      float64 `json:"rating"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Available   bool    `json:"is_available"`
}

func (d Driver) Summary() DriverSummary {
	return DriverSummary{
		ID:          d.ID,
		Name:        d.Name,
		Phone:       d.Phone,
		VehicleType: d.VehicleType,
		Rating:      d.Rating,
		Latitude:    d.Loc.Lat,
		Longitude:   d.Loc.Lon,
		Available:   d.Available,
	}
}

// Rider is the account-service view of a rider pushed into this service.
type Rider struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// RiderSummary is the sanitized rider view a driver sees alongside an
// offer. Email and account fields stay behind.
type RiderSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

func (r Rider) Summary() RiderSummary {
	return RiderSummary{ID: r.ID, Name: r.Name, Phone: r.Phone}
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment is read-only from the dispatch core's perspective; records are
// created and settled by the payment surface.
type Payment struct {
	TripID   string        `json:"trip_id"`
	Method   PaymentMethod `json:"payment_method"`
	Status   PaymentStatus `json:"status"`
	Amount   float64       `json:"amount"`
	Currency string        `json:"currency"`
	IntentID string        `json:"-"` // provider reference for card payments
}

// PaymentInfo is the wire shape shared with both parties of a trip.
type PaymentInfo struct {
	Method   PaymentMethod `json:"payment_method"`
	Status   PaymentStatus `json:"payment_status"`
	Amount   float64       `json:"amount"`
	Currency string        `json:"currency"`
}

func (p Payment) Info() PaymentInfo {
	return PaymentInfo{Method: p.Method, Status: p.Status, Amount: p.Amount, Currency: p.Currency}
}
