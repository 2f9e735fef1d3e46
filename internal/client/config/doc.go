// Package config loads runtime configuration for the CrewClock device client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the server HTTP API
//	-g string   host:port of the server gRPC health endpoint
//	-d string   path of the local SQLite database
//	-k string   base64 Ed25519 public key of the license issuer
//	-x string   conflict strategy (latest_wins, client_wins, server_wins, manual_review)
//	-i int      online check interval (seconds)
//	-s int      periodic sync interval (seconds)
//	-l int      reference data pull interval (seconds)
//	-n int      push batch size
//	-m int      attempts before a queued item is moved to the failed list
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be strings like "30s" or
// integer nanoseconds. Keys that are absent keep their previous value:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "health_addr": "127.0.0.1:50051",
//	  "database_path": "crewclock.db",
//	  "license_public_key": "base64...",
//	  "conflict_strategy": "latest_wins",
//	  "online_check_interval": "3s",
//	  "sync_interval": "30s",
//	  "pull_interval": "5m",
//	  "request_timeout": "15s",
//	  "batch_size": 50,
//	  "max_batches": 10,
//	  "max_attempts": 3
//	}
package config
