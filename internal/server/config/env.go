package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// envFile is loaded before reading the environment. Variables already set
// in the process environment win over the file.
var envFile = ".env"

// parseEnv overlays values from the environment:
//
//	DATABASE_URL     database DSN
//	DATABASE_DRIVER  "sqlite" or "pgx"
//	HTTP_ADDR        HTTP bind address
//	GRPC_ADDR        gRPC bind address
//	ADMIN_KEY        admin API key
//	REDIS_ADDR       Redis host:port for the reaper lock
//	REAP_INTERVAL    reaper period, Go duration ("0" disables)
//	ISSUE_RATE_LIMIT tokens per account per minute
//	LOG_LEVEL        debug, info, warn, error
//
// It panics on a malformed .env file or value.
func parseEnv(config *Config) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Errorf("load %s: %w", envFile, err))
	}

	envString(&config.DatabaseDSN, "DATABASE_URL")
	envString(&config.DatabaseDriver, "DATABASE_DRIVER")
	envString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	envString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&config.AdminKey, "ADMIN_KEY")
	envString(&config.RedisAddr, "REDIS_ADDR")
	envString(&config.LogLevel, "LOG_LEVEL")

	if v, ok := os.LookupEnv("REAP_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(fmt.Errorf("REAP_INTERVAL: %w", err))
		}
		config.ReapInterval = d
	}

	if v, ok := os.LookupEnv("ISSUE_RATE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Errorf("ISSUE_RATE_LIMIT: %w", err))
		}
		config.IssueRateLimit = n
	}
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
