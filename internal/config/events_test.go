package config

import (
	"os"
	"testing"
	"time"
)

// unsetenv clears keys for the duration of the test.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadBrokerConfigDefaults(t *testing.T) {
	unsetenv(t, "BROKER_ENABLED", "BOOKING_EXCHANGE", "RABBITMQ_URL")
	c, err := LoadBrokerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !c.Enabled || c.Exchange != "booking.events" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestLoadBrokerConfigDisabled(t *testing.T) {
	t.Setenv("BROKER_ENABLED", "false")
	c, err := LoadBrokerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if c.Enabled {
		t.Fatal("broker should be disabled")
	}
}

func TestLoadPresenceConfig(t *testing.T) {
	unsetenv(t, "PRESENCE_SEND_BUFFER")
	t.Setenv("PRESENCE_PATH", "/live")
	t.Setenv("PRESENCE_WRITE_TIMEOUT", "3s")
	t.Setenv("PRESENCE_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	c, err := LoadPresenceConfig()
	if err != nil {
		t.Fatal(err)
	}
	if c.Path != "/live" || c.SendBuffer != 64 || c.WriteTimeout != 3*time.Second {
		t.Fatalf("unexpected config: %+v", c)
	}
	if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins: %v", c.AllowedOrigins)
	}
}

func TestLoadPresenceConfigRejectsZeroBuffer(t *testing.T) {
	t.Setenv("PRESENCE_SEND_BUFFER", "0")
	if _, err := LoadPresenceConfig(); err == nil {
		t.Fatal("want error for zero send buffer")
	}
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	c := LoadRateLimitConfig()
	if c.Capacity != 1 || c.RefillTokens != 1 || c.RefillInterval != 2*time.Second {
		t.Fatalf("unexpected: %+v", c)
	}
	if c.TTL != 10*time.Second {
		t.Fatalf("ttl not raised to 5 intervals: %v", c.TTL)
	}
}

func TestLoadCacheConfigMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	c := LoadCacheConfig()
	if !c.Methods["GET"] || !c.Methods["HEAD"] || c.Methods["POST"] {
		t.Fatalf("methods: %v", c.Methods)
	}
}
