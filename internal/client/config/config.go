package config

import "time"

// Config holds runtime settings for the CrewClock device client.
//
// Intervals are time.Duration values; flags take them in whole seconds.
type Config struct {
	ServerURL           string
	HealthAddr          string
	DatabasePath        string
	LicensePublicKey    string
	ConflictStrategy    string
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
	PullInterval        time.Duration
	RequestTimeout      time.Duration
	BatchSize           int
	MaxBatches          int
	MaxAttempts         int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.HealthAddr = "127.0.0.1:50051"
	c.DatabasePath = "crewclock.db"
	c.ConflictStrategy = "latest_wins"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 30 * time.Second
	c.PullInterval = 5 * time.Minute
	c.RequestTimeout = 15 * time.Second
	c.BatchSize = 50
	c.MaxBatches = 10
	c.MaxAttempts = 3
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
