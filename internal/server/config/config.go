// Package config handles configuration for the server component,
// including defaults, JSON overlay, environment and command-line flags.
package config

import "time"

// Config holds runtime settings for the user token server.
//
// Fields:
//   - EndpointAddrHTTP / EndpointAddrGRPC: bind addresses (HTTP API, gRPC health).
//   - DatabaseDriver: "sqlite" (modernc) or "pgx" (PostgreSQL).
//   - DatabaseDSN: DSN for the selected driver.
//   - AdminKey: shared key for the /admin routes; empty disables them.
//   - RedisAddr: host:port of Redis used for the reaper lock; empty means
//     a single instance without cross-replica locking.
//   - ReapInterval: how often expired tokens are purged; zero disables.
//   - ReapLockTTL: expiry of the reaper lock in Redis; zero means ReapInterval,
//     which limits the fleet to one sweep per interval.
//   - IssueAttempts: value regenerations allowed after a collision.
//   - StorageRetries / RetryBaseDelay: bounded retry of transient storage errors.
//   - IssueRateLimit: tokens an account may create per minute; zero disables.
//   - HealthCheckInterval: period of the database ping behind gRPC health.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	EndpointAddrHTTP    string
	EndpointAddrGRPC    string
	DatabaseDriver      string
	DatabaseDSN         string
	AdminKey            string
	RedisAddr           string
	ReapInterval        time.Duration
	ReapLockTTL         time.Duration
	IssueAttempts       int
	StorageRetries      int
	RetryBaseDelay      time.Duration
	IssueRateLimit      int
	HealthCheckInterval time.Duration
	LogLevel            string
}

// LoadDefaults populates Config with development defaults: a local SQLite
// file and no admin key.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "file:usertokens.db"
	c.AdminKey = ""
	c.RedisAddr = ""
	c.ReapInterval = 10 * time.Minute
	c.ReapLockTTL = 0
	c.IssueAttempts = 5
	c.StorageRetries = 3
	c.RetryBaseDelay = 50 * time.Millisecond
	c.IssueRateLimit = 10
	c.HealthCheckInterval = 10 * time.Second
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment (and .env) and finally from
// command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
