package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/flagx"
)

// parseFlags populates Config fields from command-line flags. Only the flags
// listed in doc.go are consumed; everything else in os.Args is ignored.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-k", "-x", "-i", "-s", "-l", "-n", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the server API")
	fs.StringVar(&cfg.HealthAddr, "g", cfg.HealthAddr, "address of the server health endpoint")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.LicensePublicKey, "k", cfg.LicensePublicKey, "license issuer public key (base64)")
	fs.StringVar(&cfg.ConflictStrategy, "x", cfg.ConflictStrategy, "conflict strategy")
	onlineCheck := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")
	pullInterval := fs.Int("l", int(cfg.PullInterval.Seconds()), "pull interval (in seconds)")
	fs.IntVar(&cfg.BatchSize, "n", cfg.BatchSize, "push batch size")
	fs.IntVar(&cfg.MaxAttempts, "m", cfg.MaxAttempts, "attempts before an item is moved to the failed list")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheck) * time.Second
	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	cfg.PullInterval = time.Duration(*pullInterval) * time.Second
}
