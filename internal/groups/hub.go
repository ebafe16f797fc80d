package groups

import (
	"sync"

	"github.com/example/trip-dispatch/internal/observability"
)

// Event types broadcast through the hub. Each member decides how (and
// whether) to turn an event into an outbound message.
const (
	EvDriverLocation   = "driver_location_update"
	EvNewTripRequest   = "new_trip_request"
	EvSelectNewDriver  = "select_new_driver"
	EvTripStatusUpdate = "trip_status_update"
	EvTripPaymentDue   = "trip_payment_update"
)

// Event is a broadcast payload. Data is a typed struct owned by the sender;
// members type-assert what they handle and drop the rest.
type Event struct {
	Type string
	Data any
}

// Member is one live connection's receiving end.
type Member interface {
	Deliver(ev Event)
}

// Group key helpers.
func DriverGroup(id string) string { return "driver:" + id }
func RiderGroup(id string) string  { return "rider:" + id }
func TripGroup(id string) string   { return "trip:" + id }

// Hub is the process-wide pub/sub directory mapping a group key to the set
// of live connections subscribed to it.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[Member]struct{}
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[Member]struct{})}
}

func (h *Hub) Join(group string, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.groups[group]
	if !ok {
		set = make(map[Member]struct{})
		h.groups[group] = set
	}
	set[m] = struct{}{}
}

func (h *Hub) Leave(group string, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.groups[group]; ok {
		delete(set, m)
		if len(set) == 0 {
			delete(h.groups, group)
		}
	}
}

// Broadcast delivers ev to every current member of the group. Members are
// snapshotted under the read lock and delivery happens outside it, so a slow
// or blocking member never stalls joins and leaves. Returns the number of
// members the event was handed to.
func (h *Hub) Broadcast(group string, ev Event) int {
	h.mu.RLock()
	members := make([]Member, 0, len(h.groups[group]))
	for m := range h.groups[group] {
		members = append(members, m)
	}
	h.mu.RUnlock()

	for _, m := range members {
		m.Deliver(ev)
	}
	observability.BroadcastsTotal.WithLabelValues(ev.Type).Inc()
	return len(members)
}
