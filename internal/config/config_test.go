package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("addr = %s", cfg.HTTPAddr)
	}
	if cfg.OfferWait != 30*time.Second {
		t.Fatalf("offer wait = %s", cfg.OfferWait)
	}
	if cfg.RouteTimeout != 20*time.Second {
		t.Fatalf("route timeout = %s", cfg.RouteTimeout)
	}
	if cfg.LocatorLimit != 20 {
		t.Fatalf("locator limit = %d", cfg.LocatorLimit)
	}
	if cfg.Currency != "ZAR" {
		t.Fatalf("currency = %s", cfg.Currency)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("OFFER_WAIT", "5s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LOCATOR_LIMIT", "7")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OfferWait != 5*time.Second {
		t.Fatalf("offer wait = %s", cfg.OfferWait)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.LocatorLimit != 7 {
		t.Fatalf("locator limit = %d", cfg.LocatorLimit)
	}
}

func TestLoadServerConfigValidation(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("missing secret must fail")
	}
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("OFFER_WAIT", "bogus")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("bad duration must fail")
	}
}
