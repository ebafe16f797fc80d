package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/trip-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveTrip(t *models.Trip) error {
	_, err := p.db.Exec(`INSERT INTO trips(id, rider_id, driver_id, vehicle_type, pickup, destination,
		pickup_lat, pickup_lon, dest_lat, dest_lon, load_description, accepted_fare, is_paid, status, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		t.ID, t.RiderID, t.DriverID, t.VehicleType, t.Pickup, t.Destination,
		t.PickupLoc.Lat, t.PickupLoc.Lon, t.DestLoc.Lat, t.DestLoc.Lon,
		t.LoadDescription, t.AcceptedFare, t.Paid, t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

func (p *PostgresStore) GetTrip(id string) (*models.Trip, error) {
	row := p.db.QueryRow(`SELECT id, rider_id, driver_id, vehicle_type, pickup, destination,
		pickup_lat, pickup_lon, dest_lat, dest_lon, load_description, accepted_fare, is_paid, status, created_at, updated_at
		FROM trips WHERE id=$1`, id)
	return scanTrip(row)
}

// UpdateTrip runs fn inside a transaction holding a row lock, so concurrent
// accept attempts serialize on the database row.
func (p *PostgresStore) UpdateTrip(id string, fn func(*models.Trip) error) (*models.Trip, error) {
	tx, err := p.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT id, rider_id, driver_id, vehicle_type, pickup, destination,
		pickup_lat, pickup_lon, dest_lat, dest_lon, load_description, accepted_fare, is_paid, status, created_at, updated_at
		FROM trips WHERE id=$1 FOR UPDATE`, id)
	t, err := scanTrip(row)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now()
	_, err = tx.Exec(`UPDATE trips SET driver_id=$1, is_paid=$2, status=$3, updated_at=$4 WHERE id=$5`,
		t.DriverID, t.Paid, t.Status, t.UpdatedAt, t.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*models.Trip, error) {
	var t models.Trip
	var driverID sql.NullString
	err := row.Scan(&t.ID, &t.RiderID, &driverID, &t.VehicleType, &t.Pickup, &t.Destination,
		&t.PickupLoc.Lat, &t.PickupLoc.Lon, &t.DestLoc.Lat, &t.DestLoc.Lon,
		&t.LoadDescription, &t.AcceptedFare, &t.Paid, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}
	t.DriverID = driverID.String
	return &t, nil
}
