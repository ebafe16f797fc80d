package auth

import (
	"errors"
	"testing"

	"github.com/example/trip-dispatch/internal/models"
)

// idSet stands in for the driver index in gate tests.
type idSet map[string]struct{}

func (s idSet) Exists(id string) bool {
	_, ok := s[id]
	return ok
}

func gateWith(drivers, riders []string) *Gate {
	ds := idSet{}
	for _, id := range drivers {
		ds[id] = struct{}{}
	}
	rs := NewMemorySpace()
	for _, id := range riders {
		rs.Add(models.Rider{ID: id})
	}
	return &Gate{Secret: []byte("test-secret"), Drivers: ds, Riders: rs}
}

func TestMemorySpaceResolvesProfiles(t *testing.T) {
	rs := NewMemorySpace()
	rs.Add(models.Rider{ID: "r1", Name: "Thandi Mokoena", Phone: "+27115550100", Email: "t@example.com"})

	if !rs.Exists("r1") || rs.Exists("r2") {
		t.Fatal("identity lookup wrong")
	}
	r, ok := rs.Rider("r1")
	if !ok || r.Name != "Thandi Mokoena" {
		t.Fatalf("rider = %+v, ok = %v", r, ok)
	}
	sum := r.Summary()
	if sum.Phone != "+27115550100" || sum.Name != "Thandi Mokoena" {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestAuthenticateResolvesRoles(t *testing.T) {
	g := gateWith([]string{"d1"}, []string{"r1"})

	tok, err := IssueToken(g.Secret, "d1")
	if err != nil {
		t.Fatal(err)
	}
	p, err := g.Authenticate(tok)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if p.ID != "d1" || p.Role != RoleDriver {
		t.Fatalf("got %+v", p)
	}

	tok, _ = IssueToken(g.Secret, "r1")
	p, err = g.Authenticate(tok)
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != RoleRider {
		t.Fatalf("role = %s, want rider", p.Role)
	}
}

func TestAuthenticateDriverSpaceWins(t *testing.T) {
	// a subject in both spaces resolves as driver
	g := gateWith([]string{"x"}, []string{"x"})
	tok, _ := IssueToken(g.Secret, "x")
	p, err := g.Authenticate(tok)
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != RoleDriver {
		t.Fatalf("role = %s, want driver", p.Role)
	}
}

func TestAuthenticateMissingToken(t *testing.T) {
	g := gateWith(nil, nil)
	if _, err := g.Authenticate(""); !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("want ErrTokenMissing, got %v", err)
	}
}

func TestAuthenticateBadSignature(t *testing.T) {
	g := gateWith([]string{"d1"}, nil)
	tok, _ := IssueToken([]byte("wrong-secret"), "d1")
	if _, err := g.Authenticate(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("want ErrTokenInvalid, got %v", err)
	}
}

func TestAuthenticateUnknownSubject(t *testing.T) {
	g := gateWith([]string{"d1"}, []string{"r1"})
	tok, _ := IssueToken(g.Secret, "stranger")
	if _, err := g.Authenticate(tok); !errors.Is(err, ErrUnknownSubject) {
		t.Fatalf("want ErrUnknownSubject, got %v", err)
	}
}
