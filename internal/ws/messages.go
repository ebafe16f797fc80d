package ws

import (
	"github.com/example/trip-dispatch/internal/models"
)

// Close codes for handshake rejection. In-band application errors never
// close the connection; these fire only before actor logic starts.
const (
	closeUnauthorized  = 4001
	closeForbiddenRole = 4403
)

// Outbound envelopes. Every payload is a flat object with a type
// discriminator.

type pingMsg struct {
	Type string `json:"type"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errMsg(message string) errorMsg { return errorMsg{Type: "error", Message: message} }

type infoMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type tripCreatedMsg struct {
	Type          string            `json:"type"`
	TripID        string            `json:"trip_id"`
	EstimatedFare float64           `json:"estimated_fare"`
	Distance      float64           `json:"distance"`
	EstimatedTime string            `json:"estimated_time"`
	Status        models.TripStatus `json:"status"`
}

type awaitingDriverMsg struct {
	Type       string               `json:"type"`
	TripID     string               `json:"trip_id"`
	Status     models.TripStatus    `json:"status"`
	DriverInfo models.DriverSummary `json:"driver_info"`
	Payment    models.PaymentInfo   `json:"payment_info"`
}

type selectNewDriverMsg struct {
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Candidates []models.DriverSummary `json:"available_drivers"`
}

type newTripRequestMsg struct {
	Type        string `json:"type"`
	TripDetails any    `json:"trip_details"`
}

type tripStatusMsg struct {
	Type    string            `json:"type"`
	TripID  string            `json:"trip_id,omitempty"`
	Status  models.TripStatus `json:"status,omitempty"`
	Message string            `json:"message,omitempty"`
}

type tripRejectedMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type tripPaymentMsg struct {
	Type          string `json:"type"`
	PaymentAmount string `json:"payment_amount,omitempty"`
	Message       string `json:"message,omitempty"`
}

type driverLocationMsg struct {
	Type          string `json:"type"`
	Message       string `json:"message,omitempty"`
	DriverDetails any    `json:"driver_details,omitempty"`
}

type nearestDriversMsg struct {
	Type    string         `json:"type"`
	Drivers []nearbyDriver `json:"nearest_drivers"`
}

type nearbyDriver struct {
	Driver    models.DriverSummary `json:"driver"`
	RouteData any                  `json:"route_data"`
}

// Inbound payloads.

type riderEnvelope struct {
	Action string `json:"action"`
}

type createTripReq struct {
	VehicleType     string  `json:"vehicle_type"`
	Pickup          string  `json:"pickup"`
	Destination     string  `json:"destination"`
	PickupLatitude  float64 `json:"pickup_latitude"`
	PickupLongitude float64 `json:"pickup_longitude"`
	DestLatitude    float64 `json:"dest_latitude"`
	DestLongitude   float64 `json:"dest_longitude"`
	LoadDescription string  `json:"load_description"`
}

type confirmDriverReq struct {
	TripID   string `json:"trip_id"`
	DriverID string `json:"driver_id"`
}

type driverResponseReq struct {
	TripID         string `json:"trip_id"`
	DriverResponse string `json:"driver_response"`
}

type statusUpdateReq struct {
	Status string `json:"status"`
}

type locationUpdateReq struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type riderCoordReq struct {
	UserLatitude  *float64 `json:"user_latitude"`
	UserLongitude *float64 `json:"user_longitude"`
	VehicleType   []string `json:"vehicle_type"`
}
