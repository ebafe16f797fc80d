package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/trip-dispatch/internal/models"
)

// LocationUpdate is the wire record for the driver location topic. Field
// names are part of the contract with the consumer, which mirrors each
// record into the redis position index.
type LocationUpdate struct {
	DriverID    string    `json:"driver_id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	VehicleType string    `json:"vehicle_type"`
	Rating      float64   `json:"rating"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Available   bool      `json:"is_available"`
	Online      bool      `json:"is_online"`
	SentAt      time.Time `json:"sent_at"`
}

func NewLocationUpdate(d models.Driver) LocationUpdate {
	return LocationUpdate{
		DriverID:    d.ID,
		Name:        d.Name,
		Phone:       d.Phone,
		VehicleType: d.VehicleType,
		Rating:      d.Rating,
		Latitude:    d.Loc.Lat,
		Longitude:   d.Loc.Lon,
		Available:   d.Available,
		Online:      d.Online,
		SentAt:      time.Now(),
	}
}

// Driver converts a consumed record back into the domain shape the redis
// writers expect.
func (u LocationUpdate) Driver() models.Driver {
	return models.Driver{
		ID:          u.DriverID,
		Name:        u.Name,
		Phone:       u.Phone,
		VehicleType: u.VehicleType,
		Rating:      u.Rating,
		Loc:         models.Coord{Lat: u.Latitude, Lon: u.Longitude},
		Available:   u.Available,
		Online:      u.Online,
		Updated:     u.SentAt,
	}
}

// KafkaProducer publishes driver location updates for the fleet pipeline.
// Messages are keyed by driver id so one driver's updates stay ordered
// within a partition.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 2 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (k *KafkaProducer) PublishLocation(ctx context.Context, d models.Driver) error {
	u := NewLocationUpdate(d)
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(u.DriverID),
		Value: b,
		Time:  u.SentAt,
	})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
