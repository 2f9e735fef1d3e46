package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/flagx"
	"github.com/dmitrijs2005/crewclock/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	HealthAddr          string         `json:"health_addr"`
	DatabasePath        string         `json:"database_path"`
	LicensePublicKey    string         `json:"license_public_key"`
	ConflictStrategy    string         `json:"conflict_strategy"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	PullInterval        timex.Duration `json:"pull_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	BatchSize           int            `json:"batch_size"`
	MaxBatches          int            `json:"max_batches"`
	MaxAttempts         int            `json:"max_attempts"`
}

// parseJson overlays Config with the non-empty values of the JSON file named
// by -c or -config. It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.HealthAddr, jc.HealthAddr)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.LicensePublicKey, jc.LicensePublicKey)
	setString(&cfg.ConflictStrategy, jc.ConflictStrategy)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.SyncInterval, jc.SyncInterval)
	setDuration(&cfg.PullInterval, jc.PullInterval)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setInt(&cfg.BatchSize, jc.BatchSize)
	setInt(&cfg.MaxBatches, jc.MaxBatches)
	setInt(&cfg.MaxAttempts, jc.MaxAttempts)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
