package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Server.Port != 8080 || c.Engine.LookbackCandles != 200 || c.Engine.MinFutureCandles != 86 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if !c.Engine.HistoryEnabled || c.Engine.HistoryBlend != 0.3 || c.Scheduler.VerifyInterval != time.Hour {
		t.Fatalf("unexpected defaults %+v %+v", c.Engine, c.Scheduler)
	}
	if len(c.Kafka.Brokers) != 1 || c.Kafka.Brokers[0] != "localhost:9092" {
		t.Fatalf("brokers %v", c.Kafka.Brokers)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadYAMLKeepsExplicitFalse(t *testing.T) {
	p := writeFile(t, `
engine:
  history_enabled: false
  signal_threshold: 70
scheduler:
  build_interval: 30m
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Engine.HistoryEnabled {
		t.Fatalf("explicit false overwritten by default")
	}
	if c.Engine.SignalThreshold != 70 || c.Scheduler.BuildInterval != 30*time.Minute {
		t.Fatalf("unexpected values %+v %+v", c.Engine, c.Scheduler)
	}
	// untouched keys keep defaults
	if c.Engine.CacheDays != 30 {
		t.Fatalf("cache days %d", c.Engine.CacheDays)
	}
}

func TestApplyEnv(t *testing.T) {
	c, _ := Load("")
	env := map[string]string{
		"HTTP_PORT":       "9090",
		"CLICKHOUSE_HOST": "ch",
		"KAFKA_ENABLED":   "true",
		"KAFKA_BROKERS":   "a:9092,b:9092",
		"REDIS_PORT":      "oops",
	}
	c.applyEnv(func(k string) string { return env[k] })
	if c.Server.Port != 9090 || c.ClickHouse.Host != "ch" || !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("overrides not applied %+v", c)
	}
	if c.Redis.Port != 6379 {
		t.Fatalf("bad number must be ignored, got %d", c.Redis.Port)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		mut  func(c *Config)
	}{
		{"blend", func(c *Config) { c.Engine.HistoryBlend = 1.5 }},
		{"lookback", func(c *Config) { c.Engine.LookbackCandles = 50 }},
		{"level", func(c *Config) { c.Log.Level = "loud" }},
		{"horizon", func(c *Config) { c.Engine.MinFutureCandles = 97 }},
	}
	for _, tc := range cases {
		c, _ := Load("")
		tc.mut(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
