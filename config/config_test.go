package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("BILLING_TICK_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Billing.TickInterval != time.Minute {
		t.Fatalf("tick interval = %v, want 1m", cfg.Billing.TickInterval)
	}
	if cfg.Billing.MinStartBalanceCents != 500 {
		t.Fatalf("min start balance = %d, want 500", cfg.Billing.MinStartBalanceCents)
	}
	if cfg.Matching.AssumedAverageSessionMinutes != 10 {
		t.Fatalf("assumed avg = %d, want 10", cfg.Matching.AssumedAverageSessionMinutes)
	}
	if cfg.Matching.DefaultCapacity != 1 {
		t.Fatalf("default capacity = %d, want 1", cfg.Matching.DefaultCapacity)
	}
	if cfg.Store.Driver != StoreDriverRedis {
		t.Fatalf("store driver = %q, want redis", cfg.Store.Driver)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("BILLING_TICK_INTERVAL", "2s")
	t.Setenv("BILLING_TICK_TIMEOUT", "500ms")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("KAFKA_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Driver != StoreDriverMemory {
		t.Fatalf("store driver = %q", cfg.Store.Driver)
	}
	if cfg.Billing.TickInterval != 2*time.Second || cfg.Billing.TickTimeout != 500*time.Millisecond {
		t.Fatalf("billing = %+v", cfg.Billing)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Enabled {
		t.Fatalf("kafka should be disabled")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{GRpcPort: 50057, HTTPPort: 8087},
			Store:    StoreConfig{Driver: StoreDriverMemory},
			Matching: MatchingConfig{AssumedAverageSessionMinutes: 10, DefaultCapacity: 1, ProcessInterval: time.Second},
			Billing:  BillingConfig{TickInterval: time.Minute, TickTimeout: time.Second},
			JWT:      JWTConfig{Secret: "s"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad grpc port", mutate: func(c *Config) { c.Server.GRpcPort = 0 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *Config) { c.Store.Driver = StoreDriverRedis }, wantErr: true},
		{name: "zero capacity", mutate: func(c *Config) { c.Matching.DefaultCapacity = 0 }, wantErr: true},
		{name: "timeout not below interval", mutate: func(c *Config) { c.Billing.TickTimeout = time.Minute }, wantErr: true},
		{name: "negative min balance", mutate: func(c *Config) { c.Billing.MinStartBalanceCents = -1 }, wantErr: true},
		{name: "default secret in production", mutate: func(c *Config) {
			c.Env = "production"
			c.JWT.Secret = "jwt-secret"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
