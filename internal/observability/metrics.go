package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "trip_dispatch", Name: "connections_active", Help: "Live websocket connections by feed"},
		[]string{"feed"},
	)
	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "connections_rejected_total", Help: "Handshakes refused at the identity gate"},
		[]string{"reason"},
	)

	TripsCreated  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "trips_created_total", Help: "Trips created by riders"})
	OffersSent    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "offers_sent_total", Help: "Offers delivered to driver sessions"})
	OffersDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "offers_dropped_total", Help: "Offers dropped because the driver was unavailable or offline"})
	Reassignments = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "reassignments_total", Help: "Trips reset to pending for reassignment"},
		[]string{"cause"},
	)

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "broadcasts_total", Help: "Group broadcasts by event type"},
		[]string{"event"},
	)

	RouteEstimateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trip_dispatch",
		Name:      "route_estimate_duration_seconds",
		Help:      "Route estimator latency distribution",
		Buckets:   prometheus.DefBuckets,
	})
	RouteEstimateErrors = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "route_estimate_errors_total", Help: "Route estimator failures and timeouts"})
)
