package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/example/trip-dispatch/internal/models"
)

// ErrTripNotFound is returned when no trip exists for the given id.
var ErrTripNotFound = errors.New("trip not found")

// TripStore defines persistence operations for trips. UpdateTrip applies fn
// under the store's per-entity lock so a read-modify-write never loses an
// update to a concurrent writer; fn returning an error aborts the write.
type TripStore interface {
	SaveTrip(t *models.Trip) error
	GetTrip(id string) (*models.Trip, error)
	UpdateTrip(id string, fn func(*models.Trip) error) (*models.Trip, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	trips map[string]*models.Trip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[string]*models.Trip)}
}

func (m *MemoryStore) SaveTrip(t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.trips[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTrip(id string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrTripNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) UpdateTrip(id string, fn func(*models.Trip) error) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrTripNotFound
	}
	cp := *t
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now()
	m.trips[id] = &cp
	out := cp
	return &out, nil
}
