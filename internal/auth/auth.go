package auth

import (
	"errors"
	"sync"

	"github.com/golang-jwt/jwt"

	"github.com/example/trip-dispatch/internal/models"
)

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// Principal is the authenticated identity bound to a connection.
type Principal struct {
	ID   string
	Role Role
}

var (
	ErrTokenMissing   = errors.New("credential missing")
	ErrTokenInvalid   = errors.New("credential invalid")
	ErrUnknownSubject = errors.New("subject matches neither role")
)

// IdentitySpace answers whether an id exists in one identity population.
type IdentitySpace interface {
	Exists(id string) bool
}

// Gate validates a bearer credential and resolves it to a principal. It runs
// once per connection, before any actor logic; the driver space is checked
// before the rider space.
type Gate struct {
	Secret  []byte
	Drivers IdentitySpace
	Riders  IdentitySpace
}

func (g *Gate) Authenticate(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrTokenMissing
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return g.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrTokenInvalid
	}
	subject, ok := claims["user_id"].(string)
	if !ok || subject == "" {
		return Principal{}, ErrTokenInvalid
	}
	if g.Drivers != nil && g.Drivers.Exists(subject) {
		return Principal{ID: subject, Role: RoleDriver}, nil
	}
	if g.Riders != nil && g.Riders.Exists(subject) {
		return Principal{ID: subject, Role: RoleRider}, nil
	}
	return Principal{}, ErrUnknownSubject
}

// IssueToken mints an HS256 token for the given subject. The account service
// owns credential issuance in production; this helper serves local runs and
// tests.
func IssueToken(secret []byte, subject string) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": subject})
	return t.SignedString(secret)
}

// MemorySpace is an in-memory rider registry, fed by the collaborator
// boundary (account service webhook or seed endpoint). It doubles as the
// rider identity space for the gate and resolves profiles for offers.
type MemorySpace struct {
	mu     sync.RWMutex
	riders map[string]models.Rider
}

func NewMemorySpace() *MemorySpace {
	return &MemorySpace{riders: make(map[string]models.Rider)}
}

func (m *MemorySpace) Add(r models.Rider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riders[r.ID] = r
}

func (m *MemorySpace) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.riders[id]
	return ok
}

func (m *MemorySpace) Rider(id string) (models.Rider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.riders[id]
	return r, ok
}
