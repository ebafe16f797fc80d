package groups

import (
	"sync"
	"testing"
)

type recorder struct {
	mu  sync.Mutex
	evs []Event
}

func (r *recorder) Deliver(ev Event) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evs)
}

func TestBroadcastReachesGroupMembersOnly(t *testing.T) {
	h := NewHub()
	in := &recorder{}
	out := &recorder{}
	h.Join(RiderGroup("r1"), in)
	h.Join(RiderGroup("r2"), out)

	n := h.Broadcast(RiderGroup("r1"), Event{Type: EvTripStatusUpdate})
	if n != 1 {
		t.Fatalf("delivered to %d members, want 1", n)
	}
	if in.count() != 1 || out.count() != 0 {
		t.Fatalf("in=%d out=%d", in.count(), out.count())
	}
}

func TestBroadcastAfterLeave(t *testing.T) {
	h := NewHub()
	m := &recorder{}
	h.Join(DriverGroup("d1"), m)
	h.Leave(DriverGroup("d1"), m)
	if n := h.Broadcast(DriverGroup("d1"), Event{Type: EvNewTripRequest}); n != 0 {
		t.Fatalf("delivered to %d members after leave", n)
	}
}

func TestBroadcastEmptyGroup(t *testing.T) {
	h := NewHub()
	if n := h.Broadcast(TripGroup("nope"), Event{Type: EvTripStatusUpdate}); n != 0 {
		t.Fatalf("empty group delivered to %d", n)
	}
}

func TestMultipleMembersSameGroup(t *testing.T) {
	h := NewHub()
	a, b := &recorder{}, &recorder{}
	h.Join(TripGroup("t1"), a)
	h.Join(TripGroup("t1"), b)
	if n := h.Broadcast(TripGroup("t1"), Event{Type: EvTripPaymentDue}); n != 2 {
		t.Fatalf("delivered to %d, want 2", n)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("a=%d b=%d", a.count(), b.count())
	}
}
