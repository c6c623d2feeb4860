package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DISPATCH_HTTP_ADDR", "DISPATCH_MAPS_TIMEOUT", "DISPATCH_KAFKA_BROKERS", "DISPATCH_HUB_SEND_BUFFER"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Maps.Timeout != MaxMapsTimeout {
		t.Errorf("maps timeout = %v", cfg.Maps.Timeout)
	}
	if cfg.Kafka.Brokers != nil {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Hub.SendBuffer != 64 {
		t.Errorf("send buffer = %d", cfg.Hub.SendBuffer)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DISPATCH_HTTP_ADDR", ":9090")
	t.Setenv("DISPATCH_MAPS_TIMEOUT", "2s")
	t.Setenv("DISPATCH_MAPS_RATE", "2.5")
	t.Setenv("DISPATCH_KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("DISPATCH_HUB_SEND_BUFFER", "not-a-number")

	cfg, _ := Load()
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Maps.Timeout != 2*time.Second || cfg.Maps.RatePerSecond != 2.5 {
		t.Errorf("maps = %+v", cfg.Maps)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Hub.SendBuffer != 64 {
		t.Errorf("bad int should fall back, got %d", cfg.Hub.SendBuffer)
	}
}

func TestMapsTimeoutIsCapped(t *testing.T) {
	t.Setenv("DISPATCH_MAPS_TIMEOUT", "30s")
	cfg, _ := Load()
	if cfg.Maps.Timeout != MaxMapsTimeout {
		t.Fatalf("timeout = %v, want %v", cfg.Maps.Timeout, MaxMapsTimeout)
	}
}
