package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/trip-dispatch/internal/auth"
	"github.com/example/trip-dispatch/internal/config"
	"github.com/example/trip-dispatch/internal/dispatch"
	"github.com/example/trip-dispatch/internal/geo"
	"github.com/example/trip-dispatch/internal/groups"
	"github.com/example/trip-dispatch/internal/ingest"
	"github.com/example/trip-dispatch/internal/locator"
	"github.com/example/trip-dispatch/internal/logging"
	"github.com/example/trip-dispatch/internal/payments"
	"github.com/example/trip-dispatch/internal/routes"
	"github.com/example/trip-dispatch/internal/storage"
	"github.com/example/trip-dispatch/internal/ws"
)

// geoSpace lets the position index double as the driver identity space for
// the auth gate: a driver exists once their profile has been pushed in.
type geoSpace struct{ g geo.Geo }

func (s geoSpace) Exists(id string) bool {
	_, ok := s.g.Get(id)
	return ok
}

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.New(cfg.LogLevel)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	var drivers geo.Geo
	if cfg.RedisAddr != "" {
		drivers = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		logger.Info("using redis position index", "addr", cfg.RedisAddr)
	} else {
		drivers = geo.NewIndex()
		logger.Info("using in-memory position index")
	}

	var trips storage.TripStore
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			runMigrations(cfg.PGDSN, logger)
		}
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		trips = pg
		logger.Info("using postgres trip store")
	} else {
		trips = storage.NewMemoryStore()
		logger.Info("using in-memory trip store")
	}

	var kafka *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kafka = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
		logger.Info("location feed publishing to kafka", "topic", cfg.KafkaTopic)
	}

	var holder payments.Holder
	if key := os.Getenv("STRIPE_API_KEY"); key != "" {
		holder = payments.NewStripeClient(key)
		logger.Info("stripe card holds enabled")
	}
	pay := payments.NewService(holder)

	estimator := &routes.Cached{
		Inner: routes.NewOSRMClient(cfg.OSRMEndpoint),
		Cache: routes.NewCache(time.Minute),
	}

	hub := groups.NewHub()
	loc := &locator.Service{Geo: drivers, Limit: cfg.LocatorLimit}
	riders := auth.NewMemorySpace()

	orch := &dispatch.Orchestrator{
		Trips:        trips,
		Drivers:      drivers,
		Locator:      loc,
		Payments:     pay,
		Estimator:    estimator,
		Hub:          hub,
		Riders:       riders,
		Logger:       logger,
		OfferWait:    cfg.OfferWait,
		RouteTimeout: cfg.RouteTimeout,
	}

	srv := ws.NewServer(ws.Deps{
		Gate: &auth.Gate{
			Secret:  []byte(cfg.JWTSecret),
			Drivers: geoSpace{drivers},
			Riders:  riders,
		},
		Hub:          hub,
		Geo:          drivers,
		Locator:      loc,
		Orch:         orch,
		Estimator:    estimator,
		Payments:     pay,
		Trips:        trips,
		Kafka:        kafka,
		Riders:       riders,
		Logger:       logger,
		PingInterval: cfg.PingInterval,
		RouteTimeout: cfg.RouteTimeout,
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("trip-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_trips.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_trips.sql")
}
