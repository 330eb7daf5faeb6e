package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/usertokens/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    HTTP bind address (e.g., ":8080")
//	-g string    gRPC bind address (e.g., ":50051")
//	-d string    database DSN
//	-t string    database driver ("sqlite" or "pgx")
//	-k string    admin API key
//	-r string    Redis address for the reaper lock
//	-i duration  reaper interval (e.g., "10m"; 0 disables)
//	-l string    log level
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-t", "-k", "-r", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port for health checks")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.DatabaseDriver, "t", config.DatabaseDriver, "database driver (sqlite, pgx)")
	fs.StringVar(&config.AdminKey, "k", config.AdminKey, "admin API key")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address for the reaper lock")
	fs.DurationVar(&config.ReapInterval, "i", config.ReapInterval, "expired token reaper interval")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
