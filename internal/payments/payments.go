package payments

import (
	"context"
	"errors"
	"sync"

	"github.com/example/trip-dispatch/internal/models"
)

// ErrNotFound is returned when no payment record exists for a trip.
var ErrNotFound = errors.New("payment not found")

// Reader is the read-only view the dispatch core consumes.
type Reader interface {
	ForTrip(ctx context.Context, tripID string) (*models.Payment, error)
}

// Holder places a provider-side hold for card payments. Satisfied by
// StripeClient; nil disables holds (cash-only deployments and tests).
type Holder interface {
	Hold(ctx context.Context, tripID string, amount int64, currency, customerID string) (string, error)
}

// Settler finalizes or releases a hold. StripeClient implements it; a
// Holder without it just skips provider-side settlement.
type Settler interface {
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

// Service keeps payment records per trip. The payment surface registers and
// settles them; the dispatch core only ever reads.
type Service struct {
	mu      sync.RWMutex
	records map[string]*models.Payment
	holder  Holder
}

func NewService(holder Holder) *Service {
	return &Service{records: make(map[string]*models.Payment), holder: holder}
}

// Register creates the payment record for a trip. Card payments get a
// provider hold for the full amount; both methods start out pending.
func (s *Service) Register(ctx context.Context, tripID string, method models.PaymentMethod, amount float64, currency, customerID string) (*models.Payment, error) {
	p := &models.Payment{
		TripID:   tripID,
		Method:   method,
		Status:   models.PaymentPending,
		Amount:   amount,
		Currency: currency,
	}
	if method == models.PaymentCard && s.holder != nil {
		id, err := s.holder.Hold(ctx, tripID, int64(amount*100), currency, customerID)
		if err != nil {
			return nil, err
		}
		p.IntentID = id
	}
	s.mu.Lock()
	s.records[tripID] = p
	s.mu.Unlock()
	return p, nil
}

// SetStatus records a settlement outcome reported by the payment surface.
// Card holds are captured on success and released on failure when the
// provider supports it.
func (s *Service) SetStatus(ctx context.Context, tripID string, status models.PaymentStatus) error {
	s.mu.Lock()
	p, ok := s.records[tripID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	prev := p.Status
	p.Status = status
	intentID := p.IntentID
	s.mu.Unlock()

	settler, ok := s.holder.(Settler)
	if !ok || intentID == "" || prev == status {
		return nil
	}
	switch status {
	case models.PaymentSuccess:
		return settler.Capture(ctx, intentID)
	case models.PaymentFailed:
		return settler.Cancel(ctx, intentID)
	}
	return nil
}

func (s *Service) ForTrip(ctx context.Context, tripID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.records[tripID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}
